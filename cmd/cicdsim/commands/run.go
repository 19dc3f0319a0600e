package commands

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"

	"git.home.luguber.info/inful/cicdsim/internal/config"
	"git.home.luguber.info/inful/cicdsim/internal/daemon"
)

// RunCmd implements the 'run' command.
type RunCmd struct {
	Roots       []string `name:"root" short:"r" help:"Directory to watch, repeatable; replaces watch.roots" env:"CICDSIM_ROOT"`
	QuietWindow string   `name:"quiet-window" help:"Time without changes before a build starts, e.g. 60s"`
	Addr        string   `help:"HTTP listen address for the status API"`
}

func (r *RunCmd) Run(g *Global, root *CLI) error {
	cfg, err := loadConfig(root.Config)
	if err != nil {
		return err
	}
	if len(r.Roots) > 0 {
		cfg.Watch.Roots = r.Roots
	}
	if r.QuietWindow != "" {
		cfg.Watch.QuietWindow = r.QuietWindow
	}
	if r.Addr != "" {
		cfg.HTTP.Addr = r.Addr
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}
	return RunAgent(g.context(), cfg, g.logger())
}

// RunAgent runs the agent until SIGINT, SIGTERM or parent cancellation.
func RunAgent(parent context.Context, cfg *config.Config, logger *slog.Logger) error {
	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	agent, err := daemon.New(cfg, daemon.WithLogger(logger))
	if err != nil {
		return err
	}

	logger.Info("Starting agent", slog.String("config", cfg.String()))
	if err := agent.Run(ctx); err != nil {
		return err
	}
	logger.Info("Agent stopped successfully")
	return nil
}
