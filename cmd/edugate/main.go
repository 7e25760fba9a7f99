package main

import (
	"context"

	"github.com/alecthomas/kong"
	"github.com/wolfeidau/edugate/cmd/edugate/internal/commands"
)

var (
	version = "dev"
	cli     struct {
		commands.Connection `embed:""`

		Login  commands.LoginCmd  `cmd:"" help:"Sign in to the data service"`
		Logout commands.LogoutCmd `cmd:"" help:"Sign out and clear the local session"`
		Status commands.StatusCmd `cmd:"" help:"Show the current session"`
		Get    commands.GetCmd    `cmd:"" help:"Read a resource from the data service"`
		Send   commands.SendCmd   `cmd:"" help:"Send a write request to the data service"`
		Guard  commands.GuardCmd  `cmd:"" help:"Show how the route guard would treat the current session"`
		Serve  commands.ServeCmd  `cmd:"" help:"Run the local web portal"`

		Debug   bool `help:"Enable debug mode." env:"EDUGATE_DEBUG"`
		Version kong.VersionFlag
	}
)

func main() {
	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Name("edugate"),
		kong.Description("Session aware client for the education data service."),
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&commands.Globals{Debug: cli.Debug, Version: version, Connection: cli.Connection})
	cmd.FatalIfErrorf(err)
}
