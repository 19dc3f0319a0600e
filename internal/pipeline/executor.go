package pipeline

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"git.home.luguber.info/inful/cicdsim/internal/config"
	"git.home.luguber.info/inful/cicdsim/internal/events"
	ferrors "git.home.luguber.info/inful/cicdsim/internal/foundation/errors"
	"git.home.luguber.info/inful/cicdsim/internal/image"
	"git.home.luguber.info/inful/cicdsim/internal/logfields"
	"git.home.luguber.info/inful/cicdsim/internal/metrics"
	"git.home.luguber.info/inful/cicdsim/internal/status"
)

// Executor runs builds against a status store.
type Executor struct {
	store    *status.Store
	collab   Collaborators
	ids      *status.IDGenerator
	events   EventPublisher
	recorder metrics.Recorder
	clock    clockwork.Clock
	logger   *slog.Logger
	extra    []Middleware
	stages   []Stage
}

// Option configures an Executor.
type Option func(*Executor)

func WithRecorder(r metrics.Recorder) Option {
	return func(e *Executor) { e.recorder = r }
}

func WithClock(c clockwork.Clock) Option {
	return func(e *Executor) { e.clock = c }
}

func WithEvents(p EventPublisher) Option {
	return func(e *Executor) { e.events = p }
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) { e.logger = l }
}

func WithIDGenerator(g *status.IDGenerator) Option {
	return func(e *Executor) { e.ids = g }
}

// WithMiddleware adds stage middleware inside the default logging, metrics
// and recovery layers.
func WithMiddleware(mw ...Middleware) Option {
	return func(e *Executor) { e.extra = append(e.extra, mw...) }
}

// NewExecutor wires an executor. Loader, Tests, Builder and Deployer are required.
func NewExecutor(store *status.Store, collab Collaborators, opts ...Option) (*Executor, error) {
	if store == nil {
		return nil, ferrors.ValidationError("status store is required").Build()
	}
	if collab.Loader == nil || collab.Tests == nil || collab.Builder == nil || collab.Deployer == nil {
		return nil, ferrors.ValidationError("loader, test runner, builder and deployer are required").Build()
	}

	e := &Executor{
		store:    store,
		collab:   collab,
		recorder: metrics.NoopRecorder{},
		clock:    clockwork.NewRealClock(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.ids == nil {
		e.ids = status.NewIDGenerator(e.clock)
	}

	mws := append([]Middleware{
		LoggingMiddleware(),
		MetricsMiddleware(e.recorder, e.clock),
		RecoveryMiddleware(),
	}, e.extra...)

	for _, st := range []Stage{
		{Status: status.StatusParsing, Run: e.parse},
		{Status: status.StatusTesting, Run: e.test},
		{Status: status.StatusBuilding, Run: e.build},
		{Status: status.StatusDeploying, Run: e.deploy},
	} {
		e.stages = append(e.stages, Chain(st, mws...))
	}
	return e, nil
}

// Store returns the status store the executor writes to.
func (e *Executor) Store() *status.Store { return e.store }

// Run executes one build to a terminal state and returns the final record.
// Stage failures end in a failed record and a nil error. The error is non-nil
// only when the status store rejects an operation, which is an invariant
// violation.
//
// Cancelling ctx does not interrupt a build once it has started.
func (e *Executor) Run(ctx context.Context, trig Trigger) (status.Record, error) {
	ctx = context.WithoutCancel(ctx)

	id, err := e.ids.Next()
	if err != nil {
		return status.Record{}, err
	}

	b := &Build{ID: id, Trigger: trig}
	if e.collab.Commits != nil {
		if commit, ok := e.collab.Commits.HeadCommit(trig.Root); ok {
			b.Commit = commit
		}
	}
	b.Logger = e.logger.With(
		logfields.BuildID(id),
		logfields.Root(trig.Root),
		logfields.TriggerID(trig.ID))

	rec, err := e.store.Create(id, status.Meta{Root: trig.Root, TriggerID: trig.ID, Commit: b.Commit})
	if err != nil {
		b.Logger.Error("Status store rejected new build", logfields.Error(err))
		return rec, err
	}
	b.Status = rec.Status
	e.publish(b, "", rec)

	start := e.clock.Now()
	b.Logger.Info("Pipeline started", logfields.Commit(b.Commit))

	var failure *Failure
	for _, st := range e.stages {
		if rec, err = e.transition(b, st.Status, ""); err != nil {
			return rec, err
		}
		if failure = st.Run(ctx, b); failure != nil {
			break
		}
	}

	final := status.StatusSuccess
	reason := ""
	if failure != nil {
		final = status.StatusFailed
		reason = failure.Reason
	}
	rec, err = e.transition(b, final, reason)
	if err != nil {
		return rec, err
	}

	elapsed := e.clock.Since(start)
	e.recorder.ObserveBuildDuration(elapsed)
	e.recorder.IncBuildOutcome(string(final))

	if failure != nil {
		b.Logger.Warn("Pipeline failed",
			logfields.Stage(string(failure.Stage)),
			logfields.Reason(failure.Reason),
			slog.String("kind", string(failure.Kind)),
			logfields.Duration(elapsed),
			logfields.Error(failure.Err))
	} else {
		b.Logger.Info("Pipeline succeeded",
			logfields.Image(b.Image),
			logfields.Duration(elapsed))
	}
	return rec, nil
}

func (e *Executor) transition(b *Build, to status.Status, reason string) (status.Record, error) {
	from := b.Status
	rec, err := e.store.Transition(b.ID, to, reason)
	if err != nil {
		b.Logger.Error("Status store invariant violated",
			logfields.Status(string(to)),
			slog.String("from", string(from)),
			logfields.Error(err))
		return rec, err
	}
	b.Status = rec.Status
	b.Logger.Debug("Build status changed", logfields.Status(string(to)))
	e.publish(b, from, rec)
	return rec, nil
}

func (e *Executor) publish(b *Build, from status.Status, rec status.Record) {
	if e.events == nil {
		return
	}
	evt := events.BuildTransitioned{
		BuildID:       rec.ID,
		Root:          rec.Root,
		TriggerID:     rec.TriggerID,
		From:          from,
		To:            rec.Status,
		FailureReason: rec.FailureReason,
		Image:         rec.Image,
		Commit:        rec.Commit,
		At:            rec.UpdatedAt,
	}
	if _, err := e.events.Publish(evt); err != nil {
		b.Logger.Debug("Transition event not published", logfields.Error(err))
	}
}

func (e *Executor) parse(_ context.Context, b *Build) *Failure {
	cfg, err := e.collab.Loader.Load(b.Trigger.Root)
	if err != nil {
		kind := KindConfigMalformed
		if errors.Is(err, config.ErrProjectConfigNotFound) {
			kind = KindConfigNotFound
		}
		return newFailure(kind, status.StatusParsing, err)
	}
	if cfg == nil {
		return newFailure(KindConfigMalformed, status.StatusParsing, config.ErrProjectConfigMalformed)
	}
	b.Project = cfg
	return nil
}

func (e *Executor) test(ctx context.Context, b *Build) *Failure {
	command := b.Project.Test.Command
	if command == "" {
		b.Logger.Info("No test command configured, skipping tests")
		return nil
	}

	res, err := e.collab.Tests.Run(ctx, b.Trigger.Root, command)
	if err != nil {
		b.Logger.Error("Tests failed",
			logfields.Command(command),
			logfields.ExitCode(res.ExitCode),
			logfields.Stdout(res.Stdout),
			logfields.Stderr(res.Stderr),
			logfields.Duration(res.Duration),
			logfields.Error(err))
		return newFailure(KindTestFailure, status.StatusTesting, err)
	}

	b.Logger.Info("Tests passed",
		logfields.Command(command),
		logfields.Stdout(res.Stdout),
		logfields.Stderr(res.Stderr),
		logfields.Duration(res.Duration))
	return nil
}

func (e *Executor) build(ctx context.Context, b *Build) *Failure {
	ref := b.Project.ImageRef()
	if ref == "" {
		return newFailure(KindMissingBuildName, status.StatusBuilding,
			ferrors.ConfigError("build.base_name is not set").Build())
	}

	b.Image = ref
	if _, err := e.store.Annotate(b.ID, status.Annotations{Image: ref}); err != nil {
		return newFailure(KindInternalError, status.StatusBuilding, err)
	}

	err := e.collab.Builder.Build(ctx, image.BuildRequest{
		ContextDir: b.Trigger.Root,
		Dockerfile: b.Project.DockerfilePath(b.Trigger.Root),
		Image:      ref,
	})
	if err != nil {
		return newFailure(KindBuildFailure, status.StatusBuilding, err)
	}
	return nil
}

func (e *Executor) deploy(ctx context.Context, b *Build) *Failure {
	registry := b.Project.Deploy.Registry
	if b.Image == "" || registry == "" {
		return newFailure(KindMissingDeployTarget, status.StatusDeploying,
			ferrors.ConfigError("deploy target is incomplete").
				WithContext("image", b.Image).
				WithContext("registry", registry).
				Build())
	}

	if err := e.collab.Deployer.Push(ctx, image.PushRequest{Image: b.Image, Registry: registry}); err != nil {
		return newFailure(KindDeployFailure, status.StatusDeploying, err)
	}
	b.Logger.Info("Image deployed", logfields.Image(b.Image), logfields.Registry(registry))
	return nil
}
