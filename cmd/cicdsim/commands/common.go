package commands

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/cicdsim/internal/config"
	ferrors "git.home.luguber.info/inful/cicdsim/internal/foundation/errors"
)

// Global carries state shared by every subcommand.
type Global struct {
	Logger *slog.Logger
	// Out receives user-facing output; stdout when nil.
	Out io.Writer
	// Ctx is the parent context of long-running commands; Background when nil.
	Ctx context.Context
}

func (g *Global) logger() *slog.Logger {
	if g == nil || g.Logger == nil {
		return slog.Default()
	}
	return g.Logger
}

func (g *Global) out() io.Writer {
	if g == nil || g.Out == nil {
		return os.Stdout
	}
	return g.Out
}

func (g *Global) context() context.Context {
	if g == nil || g.Ctx == nil {
		return context.Background()
	}
	return g.Ctx
}

// CLI definition & global flags.
type CLI struct {
	Config    string           `short:"c" help:"Agent configuration file path" default:"cicdsim.yaml"`
	Verbose   bool             `short:"v" help:"Enable verbose logging"`
	LogFormat string           `name:"log-format" help:"Log output format" enum:"text,json" default:"text"`
	Version   kong.VersionFlag `name:"version" help:"Show version and exit"`

	Run      RunCmd      `cmd:"" help:"Watch the configured roots and run the pipeline on change"`
	Build    BuildCmd    `cmd:"" help:"Run the pipeline once for a project root"`
	Validate ValidateCmd `cmd:"" help:"Check the project file of a root"`
	Init     InitCmd     `cmd:"" help:"Initialize a new configuration file"`
}

// AfterApply runs after flag parsing; setup logging once.
// nolint:unparam // AfterApply currently never returns an error.
func (c *CLI) AfterApply() error {
	level := slog.LevelInfo
	if c.Verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if c.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
	return nil
}

// loadConfig reads the agent configuration. The default path may be absent.
func loadConfig(path string) (*config.Config, error) {
	return config.Load(path, path == config.DefaultConfigFile)
}

// resolveRoot returns the absolute form of dir, which must be a directory.
func resolveRoot(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", ferrors.WrapError(err, ferrors.CategoryFileSystem, "resolve root").
			WithContext("root", dir).Build()
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", ferrors.WrapError(err, ferrors.CategoryFileSystem, "root is not accessible").
			WithContext("root", abs).Build()
	}
	if !info.IsDir() {
		return "", ferrors.ValidationError("root is not a directory").WithContext("root", abs).Build()
	}
	return abs, nil
}
