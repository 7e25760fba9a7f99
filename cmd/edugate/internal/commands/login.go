package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

type LoginCmd struct {
	Email    string `arg:"" help:"Account email"`
	Password string `help:"Account password, read from stdin when empty" env:"EDUGATE_PASSWORD"`
	OAuth    bool   `name:"oauth" help:"Use the OAuth2 password grant instead of the login endpoint"`
}

func (l *LoginCmd) Run(ctx context.Context, globals *Globals) error {
	a, err := globals.setup(ctx, nil)
	if err != nil {
		return err
	}
	defer a.close()

	password := l.Password
	if password == "" {
		fmt.Fprint(os.Stderr, "Password: ")
		password, err = readLine(os.Stdin)
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
	}

	login := a.login.Login
	if l.OAuth {
		login = a.login.OAuthLogin
	}

	user, err := login(ctx, l.Email, password)
	if err != nil {
		return err
	}

	fmt.Printf("Signed in as %s (%s)\n", user.Name, user.Role)
	return nil
}

func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("password is required")
	}
	return line, nil
}

type LogoutCmd struct{}

func (l *LogoutCmd) Run(ctx context.Context, globals *Globals) error {
	a, err := globals.setup(ctx, nil)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.login.Logout(ctx); err != nil {
		return err
	}

	fmt.Println("Signed out.")
	return nil
}
