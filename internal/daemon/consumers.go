package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	ferrors "git.home.luguber.info/inful/cicdsim/internal/foundation/errors"
	"git.home.luguber.info/inful/cicdsim/internal/logfields"
)

// consumerGroup runs the agent's event consumers. Each consumer receives a
// context that is cancelled once Close gives up waiting for it.
type consumerGroup struct {
	logger *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	wg     sync.WaitGroup
	closed bool
}

func newConsumerGroup(logger *slog.Logger) *consumerGroup {
	ctx, cancel := context.WithCancel(context.Background())
	return &consumerGroup{logger: logger, ctx: ctx, cancel: cancel}
}

// Go starts fn unless the group is closed. A panicking consumer is logged and
// does not take the agent down.
func (g *consumerGroup) Go(name string, fn func(ctx context.Context)) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed || fn == nil {
		return false
	}

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				g.logger.Error("Event consumer panicked",
					slog.String("consumer", name),
					logfields.Error(fmt.Errorf("panic: %v", r)),
					slog.String("stack", string(debug.Stack())))
			}
		}()
		fn(g.ctx)
	}()
	return true
}

// Close stops new consumers from starting and waits for running ones until
// ctx is done. Consumers still running then have their context cancelled.
func (g *consumerGroup) Close(ctx context.Context) error {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()
	defer g.cancel()

	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ferrors.WrapError(ctx.Err(), ferrors.CategoryDaemon, "event consumers did not stop in time").Build()
	}
}
