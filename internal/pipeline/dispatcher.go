package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"git.home.luguber.info/inful/cicdsim/internal/events"
	ferrors "git.home.luguber.info/inful/cicdsim/internal/foundation/errors"
	"git.home.luguber.info/inful/cicdsim/internal/logfields"
	"git.home.luguber.info/inful/cicdsim/internal/metrics"
	"git.home.luguber.info/inful/cicdsim/internal/status"
)

var ErrDispatcherStopped = ferrors.DaemonError("dispatcher is shutting down").Build()

// Runner runs one build. *Executor implements it.
type Runner interface {
	Run(ctx context.Context, trig Trigger) (status.Record, error)
}

// Dispatcher serializes builds per root.
//
// Only one build per root runs at a time. Triggers that arrive while a build
// for the root is running collapse into a single pending follow-up, which
// starts as soon as the running build reaches a terminal state. Roots are
// independent of each other.
type Dispatcher struct {
	runner   Runner
	recorder metrics.Recorder
	events   EventPublisher
	logger   *slog.Logger

	mu       sync.Mutex
	roots    map[string]*rootState
	stopping bool
	wg       sync.WaitGroup
}

type rootState struct {
	running bool
	pending *Trigger
	folded  int // triggers folded into pending
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

func WithDispatcherRecorder(r metrics.Recorder) DispatcherOption {
	return func(d *Dispatcher) { d.recorder = r }
}

func WithDispatcherEvents(p EventPublisher) DispatcherOption {
	return func(d *Dispatcher) { d.events = p }
}

func WithDispatcherLogger(l *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.logger = l }
}

func NewDispatcher(runner Runner, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		runner:   runner,
		recorder: metrics.NoopRecorder{},
		logger:   slog.Default(),
		roots:    make(map[string]*rootState),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Trigger runs a build for trig.Root, plus any follow-up accumulated while it
// ran, in the calling goroutine. When a build for the root is already running
// the trigger is queued as the follow-up and Trigger returns immediately.
//
// The returned error joins store invariant violations from the builds that
// ran; failed builds are not errors.
func (d *Dispatcher) Trigger(ctx context.Context, trig Trigger) error {
	d.recorder.IncTrigger(trig.Root)

	d.mu.Lock()
	if d.stopping {
		d.mu.Unlock()
		d.logger.Warn("Trigger ignored during shutdown", logfields.Root(trig.Root), logfields.TriggerID(trig.ID))
		return ErrDispatcherStopped
	}
	rs := d.roots[trig.Root]
	if rs == nil {
		rs = &rootState{}
		d.roots[trig.Root] = rs
	}
	if rs.running {
		next := trig
		rs.pending = &next
		rs.folded++
		folded := rs.folded
		d.mu.Unlock()

		d.recorder.IncTriggerCoalesced(trig.Root)
		d.logger.Warn("Build already running for root, queued follow-up build",
			logfields.Root(trig.Root),
			logfields.TriggerID(trig.ID),
			slog.Int("coalesced", folded))
		d.publish(events.TriggerCoalesced{TriggerID: trig.ID, Root: trig.Root, At: trig.FiredAt})
		return nil
	}
	rs.running = true
	d.wg.Add(1)
	d.mu.Unlock()

	defer d.wg.Done()

	var errs []error
	for {
		if _, err := d.runner.Run(ctx, trig); err != nil {
			errs = append(errs, err)
		}

		d.mu.Lock()
		if rs.pending == nil {
			rs.running = false
			d.mu.Unlock()
			return errors.Join(errs...)
		}
		if d.stopping {
			dropped := rs.pending
			rs.pending = nil
			rs.folded = 0
			rs.running = false
			d.mu.Unlock()
			d.logger.Warn("Dropping queued follow-up build during shutdown",
				logfields.Root(dropped.Root),
				logfields.TriggerID(dropped.ID))
			return errors.Join(errs...)
		}
		trig = *rs.pending
		rs.pending = nil
		rs.folded = 0
		d.mu.Unlock()

		d.logger.Info("Starting queued follow-up build", logfields.Root(trig.Root), logfields.TriggerID(trig.ID))
	}
}

// Active reports whether a build for root is running.
func (d *Dispatcher) Active(root string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	rs := d.roots[root]
	return rs != nil && rs.running
}

// Running returns the number of roots with a build in progress.
func (d *Dispatcher) Running() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, rs := range d.roots {
		if rs.running {
			n++
		}
	}
	return n
}

// Pending reports whether a follow-up build is queued for root.
func (d *Dispatcher) Pending(root string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	rs := d.roots[root]
	return rs != nil && rs.pending != nil
}

// Shutdown stops accepting triggers, drops queued follow-ups and waits for
// running builds until ctx is done.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	d.stopping = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ferrors.WrapError(ctx.Err(), ferrors.CategoryDaemon, "timed out waiting for running builds").Build()
	}
}

func (d *Dispatcher) publish(evt any) {
	if d.events == nil {
		return
	}
	_, _ = d.events.Publish(evt)
}
