package main

import (
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/cicdsim/cmd/cicdsim/commands"
	ferrors "git.home.luguber.info/inful/cicdsim/internal/foundation/errors"
	"git.home.luguber.info/inful/cicdsim/internal/version"
)

func main() {
	cli := &commands.CLI{}
	parser := kong.Parse(cli,
		kong.Name("cicdsim"),
		kong.Description("Watch project directories and run a test, build and deploy pipeline after each burst of changes."),
		kong.UsageOnError(),
		kong.Vars{"version": version.Get().String()},
	)

	err := parser.Run(&commands.Global{Logger: slog.Default()}, cli)
	os.Exit(ferrors.NewCLIErrorAdapter(cli.Verbose, slog.Default()).Report(err))
}
