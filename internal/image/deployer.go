package image

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sony/gobreaker"

	ferrors "git.home.luguber.info/inful/cicdsim/internal/foundation/errors"
	"git.home.luguber.info/inful/cicdsim/internal/logfields"
	"git.home.luguber.info/inful/cicdsim/internal/retry"
)

var (
	ErrPushFailed  = ferrors.DeployError("image push failed").Build()
	ErrBreakerOpen = ferrors.DeployError("registry circuit open").Build()
)

// PushRequest describes one registry push.
type PushRequest struct {
	Image    string
	Registry string
}

// BreakerSettings tunes the circuit breaker guarding pushes.
type BreakerSettings struct {
	// Failures is the number of consecutive failed pushes that opens the circuit.
	Failures int
	// Cooldown is how long the circuit stays open before a trial push is allowed.
	Cooldown time.Duration
}

// Deployer tags an image for a registry and pushes it.
type Deployer struct {
	engine  *Engine
	breaker *gobreaker.CircuitBreaker
	policy  retry.Policy
	clock   clockwork.Clock
}

// DeployerOption configures a Deployer.
type DeployerOption func(*Deployer)

// WithPushRetry retries failed pushes according to p. Pushes are not retried by default.
func WithPushRetry(p retry.Policy) DeployerOption {
	return func(d *Deployer) { d.policy = p }
}

// WithDeployClock sets the clock used to wait between push attempts.
func WithDeployClock(c clockwork.Clock) DeployerOption {
	return func(d *Deployer) { d.clock = c }
}

// NewDeployer wraps engine pushes in a circuit breaker.
func NewDeployer(engine *Engine, settings BreakerSettings, opts ...DeployerOption) *Deployer {
	if settings.Failures <= 0 {
		settings.Failures = 3
	}
	if settings.Cooldown <= 0 {
		settings.Cooldown = time.Minute
	}
	threshold := uint32(settings.Failures) // #nosec G115 -- validated positive

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "registry-push",
		Timeout: settings.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			engine.logger.Warn("Registry circuit breaker state changed",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
		},
	})

	d := &Deployer{engine: engine, breaker: cb, policy: retry.None(), clock: clockwork.NewRealClock()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// TargetRef returns the registry-qualified image reference.
func TargetRef(registry, image string) string {
	return strings.TrimSuffix(registry, "/") + "/" + image
}

// Push tags req.Image as <registry>/<image> and pushes it, retrying failed
// attempts per the retry policy. When the circuit is open the engine is not
// invoked and no further attempts are made.
func (d *Deployer) Push(ctx context.Context, req PushRequest) error {
	if req.Image == "" || req.Registry == "" {
		return ferrors.ValidationError("image and registry are required").
			WithContext("image", req.Image).
			WithContext("registry", req.Registry).
			Build()
	}

	target := TargetRef(req.Registry, req.Image)
	d.engine.logger.Info("Pushing image",
		logfields.Image(req.Image),
		logfields.Registry(req.Registry))

	for attempt := 0; ; attempt++ {
		err := d.pushOnce(ctx, req, target)
		if err == nil || errors.Is(err, ErrBreakerOpen) || attempt >= d.policy.MaxRetries {
			return err
		}
		d.engine.logger.Warn("Image push failed, retrying",
			logfields.Image(req.Image),
			logfields.Registry(req.Registry),
			slog.Int("attempt", attempt+1),
			logfields.Duration(d.policy.Delay(attempt+1)),
			logfields.Error(err))
		if serr := d.policy.Sleep(ctx, d.clock, attempt+1); serr != nil {
			return err
		}
	}
}

func (d *Deployer) pushOnce(ctx context.Context, req PushRequest, target string) error {
	_, err := d.breaker.Execute(func() (interface{}, error) {
		if err := d.engine.run(ctx, ferrors.CategoryDeploy, ErrPushFailed.Message(), "tag", req.Image, target); err != nil {
			return nil, err
		}
		return nil, d.engine.run(ctx, ferrors.CategoryDeploy, ErrPushFailed.Message(), "push", target)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ferrors.WrapError(err, ferrors.CategoryDeploy, ErrBreakerOpen.Message()).
			WithContext("registry", req.Registry).
			Build()
	}
	return err
}

// BreakerState reports the circuit state ("closed", "open" or "half-open").
func (d *Deployer) BreakerState() string {
	return d.breaker.State().String()
}
