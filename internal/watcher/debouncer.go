package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	ferrors "git.home.luguber.info/inful/cicdsim/internal/foundation/errors"
	"git.home.luguber.info/inful/cicdsim/internal/logfields"
)

// Fire describes one elapsed quiet window.
type Fire struct {
	ID         string
	Root       string
	Events     int
	FirstEvent time.Time
	LastEvent  time.Time
	FiredAt    time.Time
}

// TriggerFunc is invoked once per elapsed quiet window.
type TriggerFunc func(ctx context.Context, fire Fire) error

// Debouncer coalesces bursts of qualifying events for one root into a single
// trigger call after a quiet window with no further qualifying events.
//
// The schedule is either idle or armed. Every qualifying event cancels the
// armed schedule and arms a new one. Each arm bumps a generation counter and
// a firing schedule only triggers when its generation is still current, so a
// cancel that races a fire never yields two triggers for one window.
type Debouncer struct {
	root    string
	quiet   time.Duration
	trigger TriggerFunc
	clock   clockwork.Clock
	logger  *slog.Logger
	ctx     context.Context

	mu      sync.Mutex
	timer   clockwork.Timer
	gen     uint64
	armed   bool
	stopped bool
	events  int
	first   time.Time
	last    time.Time

	inflight sync.WaitGroup
}

// DebouncerOption configures a Debouncer.
type DebouncerOption func(*Debouncer)

func WithClock(c clockwork.Clock) DebouncerOption {
	return func(d *Debouncer) { d.clock = c }
}

func WithDebouncerLogger(l *slog.Logger) DebouncerOption {
	return func(d *Debouncer) { d.logger = l }
}

// WithTriggerContext sets the context passed to trigger calls.
func WithTriggerContext(ctx context.Context) DebouncerOption {
	return func(d *Debouncer) { d.ctx = ctx }
}

func NewDebouncer(root string, quiet time.Duration, trigger TriggerFunc, opts ...DebouncerOption) (*Debouncer, error) {
	if quiet <= 0 {
		return nil, ferrors.ValidationError("quiet window must be > 0").Build()
	}
	if trigger == nil {
		return nil, ferrors.ValidationError("trigger is required").Build()
	}
	d := &Debouncer{
		root:    root,
		quiet:   quiet,
		trigger: trigger,
		clock:   clockwork.NewRealClock(),
		logger:  slog.Default(),
		ctx:     context.Background(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// HandleEvent arms or re-arms the quiet window for qualifying events and
// ignores everything else.
func (d *Debouncer) HandleEvent(ev Event) {
	if !ev.Qualifying() {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}

	now := ev.At
	if now.IsZero() {
		now = d.clock.Now()
	}
	if d.armed {
		d.timer.Stop()
	} else {
		d.events = 0
		d.first = now
	}
	d.events++
	d.last = now

	d.gen++
	gen := d.gen
	d.armed = true
	d.timer = d.clock.AfterFunc(d.quiet, func() { d.fire(gen) })
}

// Armed reports whether a quiet window is pending.
func (d *Debouncer) Armed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.armed
}

// Stop cancels any armed schedule. No trigger starts after Stop returns.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	d.stopped = true
	if d.armed {
		d.timer.Stop()
		d.armed = false
	}
	d.gen++
	d.mu.Unlock()
}

// Wait blocks until in-flight trigger calls return.
func (d *Debouncer) Wait() { d.inflight.Wait() }

func (d *Debouncer) fire(gen uint64) {
	d.mu.Lock()
	if d.stopped || !d.armed || gen != d.gen {
		d.mu.Unlock()
		return
	}
	d.armed = false
	f := Fire{
		ID:         uuid.NewString(),
		Root:       d.root,
		Events:     d.events,
		FirstEvent: d.first,
		LastEvent:  d.last,
		FiredAt:    d.clock.Now(),
	}
	d.inflight.Add(1)
	d.mu.Unlock()

	defer d.inflight.Done()
	d.invoke(f)
}

// invoke runs the trigger outside the lock. Errors and panics are logged so
// the watcher keeps monitoring.
func (d *Debouncer) invoke(f Fire) {
	logger := d.logger.With(logfields.Root(f.Root), logfields.TriggerID(f.ID))
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Trigger panicked",
				logfields.Error(fmt.Errorf("panic: %v", r)),
				slog.String("stack", string(debug.Stack())))
		}
	}()

	logger.Info("Quiet window elapsed, triggering pipeline", slog.Int("events", f.Events))
	if err := d.trigger(d.ctx, f); err != nil {
		logger.Error("Trigger failed", logfields.Error(err))
	}
}
