package daemon

import (
	"context"
	"log/slog"
	"net/http"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
	prom "github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"git.home.luguber.info/inful/cicdsim/internal/config"
	"git.home.luguber.info/inful/cicdsim/internal/events"
	ferrors "git.home.luguber.info/inful/cicdsim/internal/foundation/errors"
	"git.home.luguber.info/inful/cicdsim/internal/git"
	"git.home.luguber.info/inful/cicdsim/internal/image"
	"git.home.luguber.info/inful/cicdsim/internal/logfields"
	"git.home.luguber.info/inful/cicdsim/internal/metrics"
	"git.home.luguber.info/inful/cicdsim/internal/notify"
	"git.home.luguber.info/inful/cicdsim/internal/pipeline"
	"git.home.luguber.info/inful/cicdsim/internal/retry"
	"git.home.luguber.info/inful/cicdsim/internal/server/httpserver"
	"git.home.luguber.info/inful/cicdsim/internal/status"
	"git.home.luguber.info/inful/cicdsim/internal/testrunner"
	"git.home.luguber.info/inful/cicdsim/internal/watcher"
)

// Status represents the current state of the agent.
type Status string

const (
	StatusStopped  Status = "stopped"
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusStopping Status = "stopping"
	StatusError    Status = "error"
)

const (
	buildDrainTimeout    = 30 * time.Second
	consumerDrainTimeout = 5 * time.Second
	notifyBuffer         = 256
)

// Agent watches the configured roots and runs the pipeline for each burst of
// changes, serving build status over HTTP.
type Agent struct {
	cfg       *config.Config
	logger    *slog.Logger
	clock     clockwork.Clock
	status    atomic.Value // Status
	startTime time.Time

	registry *prom.Registry
	recorder metrics.Recorder

	store      *status.Store
	bus        *events.Bus
	executor   *pipeline.Executor
	dispatcher *pipeline.Dispatcher
	roots      []*watchedRoot
	server     *httpserver.Server
	scheduler  *Scheduler

	collab    *pipeline.Collaborators
	publisher notify.Publisher
	consumers *consumerGroup
}

type watchedRoot struct {
	abs       string
	watcher   *watcher.Watcher
	debouncer *watcher.Debouncer
}

// Option configures an Agent.
type Option func(*Agent)

func WithLogger(l *slog.Logger) Option {
	return func(a *Agent) { a.logger = l }
}

func WithClock(c clockwork.Clock) Option {
	return func(a *Agent) { a.clock = c }
}

// WithCollaborators replaces the engine-backed pipeline collaborators.
func WithCollaborators(c pipeline.Collaborators) Option {
	return func(a *Agent) { a.collab = &c }
}

// WithPublisher sends notifications through pub instead of dialing
// notify.nats_url.
func WithPublisher(pub notify.Publisher) Option {
	return func(a *Agent) { a.publisher = pub }
}

// NewCollaborators builds the production pipeline collaborators from cfg.
func NewCollaborators(cfg *config.Config, logger *slog.Logger) pipeline.Collaborators {
	engine := image.NewEngine(cfg.Image.Engine, cfg.Image.DryRun, logger)
	return pipeline.Collaborators{
		Loader:  config.NewProjectLoader(cfg.Project.ConfigFile),
		Tests:   testrunner.New(cfg.TestTimeoutDuration()),
		Builder: image.NewBuilder(engine),
		Deployer: image.NewDeployer(engine,
			image.BreakerSettings{
				Failures: cfg.Image.Breaker.Failures,
				Cooldown: cfg.BreakerCooldownDuration(),
			},
			image.WithPushRetry(retry.NewPolicy(
				retry.Mode(cfg.Image.PushRetry.Backoff),
				cfg.PushRetryInitialDelay(),
				cfg.PushRetryMaxDelay(),
				cfg.PushRetries()))),
		Commits: git.CommitResolver{},
	}
}

// New wires an agent from cfg. Every watch root must be an existing directory.
func New(cfg *config.Config, opts ...Option) (*Agent, error) {
	if cfg == nil {
		return nil, ferrors.ValidationError("configuration is required").Build()
	}

	a := &Agent{
		cfg:      cfg,
		logger:   slog.Default(),
		clock:    clockwork.NewRealClock(),
		recorder: metrics.NoopRecorder{},
	}
	for _, opt := range opts {
		opt(a)
	}
	a.status.Store(StatusStopped)
	a.consumers = newConsumerGroup(a.logger)

	if cfg.MetricsEnabled() {
		a.registry = metrics.NewRegistry()
		a.recorder = metrics.NewPrometheusRecorder(a.registry)
	}

	a.store = status.NewStore(status.StoreConfig{
		Clock:      a.clock,
		MaxRecords: cfg.MaxRecordsLimit(),
		Recorder:   a.recorder,
	})
	a.bus = events.NewBus(a.recorder)

	collab := NewCollaborators(cfg, a.logger)
	if a.collab != nil {
		collab = *a.collab
	}

	var err error
	a.executor, err = pipeline.NewExecutor(a.store, collab,
		pipeline.WithRecorder(a.recorder),
		pipeline.WithClock(a.clock),
		pipeline.WithEvents(a.bus),
		pipeline.WithLogger(a.logger))
	if err != nil {
		return nil, err
	}
	a.dispatcher = pipeline.NewDispatcher(a.executor,
		pipeline.WithDispatcherRecorder(a.recorder),
		pipeline.WithDispatcherEvents(a.bus),
		pipeline.WithDispatcherLogger(a.logger))

	for _, root := range cfg.Watch.Roots {
		wr, err := a.newWatchedRoot(root)
		if err != nil {
			return nil, err
		}
		a.roots = append(a.roots, wr)
	}

	srvOpts := httpserver.Options{
		Addr:    cfg.HTTP.Addr,
		Store:   a.store,
		Runtime: a,
		Logger:  a.logger,
	}
	if a.registry != nil {
		srvOpts.MetricsHandler = metrics.HTTPHandler(a.registry)
	}
	if a.server, err = httpserver.New(srvOpts); err != nil {
		return nil, err
	}

	if a.scheduler, err = NewScheduler(a.logger, gocron.WithClock(a.clock)); err != nil {
		return nil, err
	}
	if maxAge := cfg.MaxAgeDuration(); maxAge > 0 {
		if _, err := a.scheduler.ScheduleEvery("retention-sweep", cfg.SweepIntervalDuration(),
			retentionSweep(a.store, maxAge, a.logger)); err != nil {
			return nil, err
		}
	}
	return a, nil
}

func (a *Agent) newWatchedRoot(root string) (*watchedRoot, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryFileSystem, "resolve watch root").
			WithContext("root", root).Build()
	}
	logger := a.logger.With(logfields.Root(abs))

	d, err := watcher.NewDebouncer(abs, a.cfg.QuietWindowDuration(), a.triggerFor(abs),
		watcher.WithClock(a.clock),
		watcher.WithDebouncerLogger(logger))
	if err != nil {
		return nil, err
	}
	w, err := watcher.New(abs, d,
		watcher.WithIgnore(a.cfg.Watch.Ignore...),
		watcher.WithEventClock(a.clock),
		watcher.WithLogger(a.logger))
	if err != nil {
		return nil, err
	}
	return &watchedRoot{abs: abs, watcher: w, debouncer: d}, nil
}

// Run starts every component and blocks until ctx is done or a component
// fails, then shuts down. Running builds get up to 30s to finish.
func (a *Agent) Run(ctx context.Context) error {
	a.setStatus(StatusStarting)
	a.startTime = a.clock.Now()

	closeNotifier, err := a.startNotifier()
	if err != nil {
		a.setStatus(StatusError)
		return err
	}
	defer closeNotifier()

	a.scheduler.Start()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.server.Run(gctx) })
	for _, r := range a.roots {
		g.Go(func() error { return r.watcher.Run(gctx) })
	}

	a.setStatus(StatusRunning)
	a.logger.Info("Agent started",
		slog.Any("roots", a.Roots()),
		slog.String("addr", a.cfg.HTTP.Addr),
		slog.Duration("quiet_window", a.cfg.QuietWindowDuration()))

	runErr := g.Wait()
	a.shutdown()

	if runErr != nil {
		a.setStatus(StatusError)
		return runErr
	}
	a.setStatus(StatusStopped)
	return nil
}

func (a *Agent) startNotifier() (func(), error) {
	var n *notify.Notifier
	closeFn := func() {}
	switch {
	case a.publisher != nil:
		n = notify.New(a.publisher, a.cfg.Notify.Subject, a.logger)
	case a.cfg.Notify.NATSURL != "":
		var err error
		n, closeFn, err = notify.Connect(a.cfg.Notify.NATSURL, a.cfg.Notify.Subject, a.logger)
		if err != nil {
			return nil, err
		}
	default:
		return closeFn, nil
	}

	ch, _ := events.Subscribe[events.BuildTransitioned](a.bus, notifyBuffer)
	// The channel closes with the bus, which ends the loop.
	a.consumers.Go("notifier", func(ctx context.Context) { n.Run(ctx, ch) })
	return closeFn, nil
}

func (a *Agent) shutdown() {
	a.setStatus(StatusStopping)
	a.logger.Info("Agent stopping")

	for _, r := range a.roots {
		r.debouncer.Stop()
	}
	if err := a.scheduler.Stop(); err != nil {
		a.logger.Warn("Scheduler shutdown failed", logfields.Error(err))
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), buildDrainTimeout)
	defer cancel()
	if err := a.dispatcher.Shutdown(drainCtx); err != nil {
		a.logger.Warn("Builds still running at shutdown", logfields.Error(err))
	} else {
		for _, r := range a.roots {
			r.debouncer.Wait()
		}
	}

	a.bus.Close()
	consumerCtx, cancelConsumers := context.WithTimeout(context.Background(), consumerDrainTimeout)
	defer cancelConsumers()
	if err := a.consumers.Close(consumerCtx); err != nil {
		a.logger.Warn("Event consumers did not stop in time", logfields.Error(err))
	}
	a.logger.Info("Agent stopped")
}

func (a *Agent) setStatus(s Status) { a.status.Store(s) }

// GetStatus returns the agent lifecycle state.
func (a *Agent) GetStatus() Status { return a.status.Load().(Status) }

// Store returns the build status store.
func (a *Agent) Store() *status.Store { return a.store }

// Bus returns the lifecycle event bus.
func (a *Agent) Bus() *events.Bus { return a.bus }

// Handler returns the HTTP status API handler.
func (a *Agent) Handler() http.Handler { return a.server.Handler() }

// StartTime implements handlers.Runtime.
func (a *Agent) StartTime() time.Time { return a.startTime }

// Roots returns the absolute watched roots.
func (a *Agent) Roots() []string {
	out := make([]string, len(a.roots))
	for i, r := range a.roots {
		out[i] = r.abs
	}
	return out
}

// Builds returns the number of build records held.
func (a *Agent) Builds() int { return a.store.Len() }

// ActiveBuilds returns the number of roots with a build in progress.
func (a *Agent) ActiveBuilds() int { return a.dispatcher.Running() }

func errUnknownRoot(root string) error {
	return ferrors.NotFoundError("root is not watched").WithContext("root", root).Build()
}
