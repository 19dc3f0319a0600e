package daemon

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/cicdsim/internal/events"
	"git.home.luguber.info/inful/cicdsim/internal/logfields"
	"git.home.luguber.info/inful/cicdsim/internal/pipeline"
	"git.home.luguber.info/inful/cicdsim/internal/watcher"
)

// triggerFor returns the debouncer callback for one watched root. It runs the
// build, and any follow-up queued meanwhile, in the debouncer's goroutine.
func (a *Agent) triggerFor(root string) watcher.TriggerFunc {
	return func(ctx context.Context, f watcher.Fire) error {
		if _, err := a.bus.Publish(events.TriggerFired{
			TriggerID:  f.ID,
			Root:       root,
			Events:     f.Events,
			FirstEvent: f.FirstEvent,
			LastEvent:  f.LastEvent,
			FiredAt:    f.FiredAt,
		}); err != nil {
			a.logger.Debug("Trigger event not published", logfields.TriggerID(f.ID), logfields.Error(err))
		}

		err := a.dispatcher.Trigger(ctx, pipeline.Trigger{
			ID:      f.ID,
			Root:    root,
			Events:  f.Events,
			FiredAt: f.FiredAt,
		})
		if errors.Is(err, pipeline.ErrDispatcherStopped) {
			return nil
		}
		return err
	}
}

// TriggerBuild starts a build for root immediately, bypassing the quiet
// window. It blocks until the build, and any follow-up, is done.
func (a *Agent) TriggerBuild(ctx context.Context, root string) error {
	for _, r := range a.roots {
		if r.abs == root {
			return a.dispatcher.Trigger(ctx, pipeline.Trigger{
				ID:      "manual-" + uuid.NewString(),
				Root:    root,
				FiredAt: a.clock.Now(),
			})
		}
	}
	return errUnknownRoot(root)
}
