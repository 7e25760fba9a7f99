package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/wolfeidau/edugate/internal/guard"
	"github.com/wolfeidau/edugate/internal/navigate"
)

type GuardCmd struct {
	Admin      bool `help:"Evaluate an admin only route" xor:"mode"`
	PublicOnly bool `help:"Evaluate a public only route such as the login page" xor:"mode"`
}

func (g *GuardCmd) Run(ctx context.Context, globals *Globals) error {
	nav := &navigate.Recorder{}

	a, err := globals.setup(ctx, nav)
	if err != nil {
		return err
	}
	defer a.close()

	sched := &guard.ManualScheduler{}
	gd := guard.New(a.store, nav, sched, guard.Config{
		AdminRoles: a.profile.AdminRoles,
		MaxIdle:    a.profile.MaxIdle,
	})

	var d guard.Decision
	if g.PublicOnly {
		d = gd.PublicOnly()
	} else {
		d = gd.Protected(g.Admin)
	}
	sched.Flush()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "State:\t%s\n", d.State)
	fmt.Fprintf(w, "Render:\t%s\n", d.Render)
	if d.Reason != guard.ReasonNone {
		fmt.Fprintf(w, "Reason:\t%s\n", d.Reason)
	}
	if dest, ok := nav.Last(); ok {
		fmt.Fprintf(w, "Redirect:\t%s\n", dest)
	}
	return w.Flush()
}
