package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/wolfeidau/edugate/internal/session"
)

type StatusCmd struct{}

func (s *StatusCmd) Run(ctx context.Context, globals *Globals) error {
	a, err := globals.setup(ctx, nil)
	if err != nil {
		return err
	}
	defer a.close()

	snap := a.store.Snapshot()
	if snap.Token == "" {
		fmt.Println("Not signed in.")
		fmt.Println()
		fmt.Println("To sign in:")
		fmt.Println("  edugate login <email>")
		return nil
	}

	maxIdle := a.profile.MaxIdle
	if maxIdle <= 0 {
		maxIdle = session.DefaultMaxIdle
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	if snap.User != nil {
		fmt.Fprintf(w, "User:\t%s <%s>\n", snap.User.Name, snap.User.Email)
		fmt.Fprintf(w, "Role:\t%s\n", snap.User.Role)
	}
	fmt.Fprintf(w, "Fingerprint:\t%s\n", session.Fingerprint(snap.Token))
	fmt.Fprintf(w, "Expires:\t%s\n", formatTime(snap.Expiry))
	fmt.Fprintf(w, "Expired:\t%t\n", snap.Expired)
	fmt.Fprintf(w, "Last activity:\t%s\n", formatTime(snap.LastActivity))
	fmt.Fprintf(w, "Idle:\t%t (max %s)\n", a.store.IsInactive(maxIdle), maxIdle)
	fmt.Fprintf(w, "Refresh token:\t%t\n", snap.RefreshToken != "")

	return w.Flush()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Local().Format(time.RFC3339)
}
