package main

import (
	"context"

	"github.com/alecthomas/kong"
	"github.com/wolfeidau/personlookup/cmd/server/internal/commands"
)

var (
	version = "dev"
	cli     struct {
		Debug    bool `help:"Enable debug mode."`
		Version  kong.VersionFlag
		Serve    commands.ServeCmd    `cmd:"" help:"Start the TLS person lookup server"`
		Lookup   commands.LookupCmd   `cmd:"" help:"Run a single lookup against a database file"`
		CertInfo commands.CertInfoCmd `cmd:"" name:"certinfo" help:"Validate the TLS certificate and key and print a summary"`
	}
)

func main() {
	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Name("personlookup"),
		kong.Description("TLS person lookup server backed by SQLite."),
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&commands.Globals{Debug: cli.Debug, Version: version})
	cmd.FatalIfErrorf(err)
}
