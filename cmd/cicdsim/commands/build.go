package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/cicdsim/internal/config"
	"git.home.luguber.info/inful/cicdsim/internal/daemon"
	ferrors "git.home.luguber.info/inful/cicdsim/internal/foundation/errors"
	"git.home.luguber.info/inful/cicdsim/internal/pipeline"
	"git.home.luguber.info/inful/cicdsim/internal/status"
)

// BuildCmd implements the 'build' command.
type BuildCmd struct {
	Root string `short:"r" help:"Project root to build" default:"."`
}

func (b *BuildCmd) Run(g *Global, root *CLI) error {
	cfg, err := loadConfig(root.Config)
	if err != nil {
		return err
	}
	dir, err := resolveRoot(b.Root)
	if err != nil {
		return err
	}

	rec, err := RunBuild(g.context(), cfg, dir, g.logger())
	if err != nil {
		return err
	}

	enc := json.NewEncoder(g.out())
	enc.SetIndent("", "  ")
	if err := enc.Encode(rec); err != nil {
		return ferrors.InternalError("failed to encode build record").WithCause(err).Build()
	}
	if rec.Status == status.StatusFailed {
		return fmt.Errorf("build %s failed: %s", rec.ID, rec.FailureReason)
	}
	return nil
}

// RunBuild runs the pipeline once for dir and returns the final record.
func RunBuild(ctx context.Context, cfg *config.Config, dir string, logger *slog.Logger) (status.Record, error) {
	store := status.NewStore(status.StoreConfig{MaxRecords: cfg.MaxRecordsLimit()})
	exec, err := pipeline.NewExecutor(store, daemon.NewCollaborators(cfg, logger), pipeline.WithLogger(logger))
	if err != nil {
		return status.Record{}, err
	}
	return exec.Run(ctx, pipeline.Trigger{
		ID:      "cli-" + uuid.NewString(),
		Root:    dir,
		FiredAt: time.Now(),
	})
}
