package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/jonboulle/clockwork"

	ferrors "git.home.luguber.info/inful/cicdsim/internal/foundation/errors"
	"git.home.luguber.info/inful/cicdsim/internal/logfields"
	"git.home.luguber.info/inful/cicdsim/internal/metrics"
	"git.home.luguber.info/inful/cicdsim/internal/status"
)

// StageFunc does the work of one stage. A nil return means success.
type StageFunc func(ctx context.Context, b *Build) *Failure

// Stage binds a StageFunc to the status the record holds while it runs.
type Stage struct {
	Status status.Status
	Run    StageFunc
}

// Middleware wraps a stage with a cross-cutting concern.
type Middleware func(Stage) Stage

// Chain applies middlewares so that the first one is the outermost.
func Chain(stage Stage, middlewares ...Middleware) Stage {
	for i := len(middlewares) - 1; i >= 0; i-- {
		stage = middlewares[i](stage)
	}
	return stage
}

func wrap(stage Stage, run StageFunc) Stage {
	return Stage{Status: stage.Status, Run: run}
}

// RecoveryMiddleware turns a panicking collaborator into an InternalError failure.
func RecoveryMiddleware() Middleware {
	return func(stage Stage) Stage {
		return wrap(stage, func(ctx context.Context, b *Build) (f *Failure) {
			defer func() {
				if r := recover(); r != nil {
					b.Logger.Error("Stage panicked",
						logfields.Stage(string(stage.Status)),
						logfields.Error(fmt.Errorf("%v", r)),
						slog.String("stack", string(debug.Stack())))
					err := ferrors.InternalError("stage panicked").
						WithContext("panic", fmt.Sprint(r)).
						Build()
					f = newFailure(KindInternalError, stage.Status, err)
				}
			}()
			return stage.Run(ctx, b)
		})
	}
}

// LoggingMiddleware logs stage start and outcome.
func LoggingMiddleware() Middleware {
	return func(stage Stage) Stage {
		return wrap(stage, func(ctx context.Context, b *Build) *Failure {
			b.Logger.Debug("Stage started", logfields.Stage(string(stage.Status)))
			f := stage.Run(ctx, b)
			if f != nil {
				b.Logger.Warn("Stage failed",
					logfields.Stage(string(stage.Status)),
					logfields.Reason(f.Reason),
					slog.String("kind", string(f.Kind)),
					logfields.Error(f.Err))
				return f
			}
			b.Logger.Debug("Stage completed", logfields.Stage(string(stage.Status)))
			return nil
		})
	}
}

// MetricsMiddleware records stage duration and result.
func MetricsMiddleware(recorder metrics.Recorder, clock clockwork.Clock) Middleware {
	return func(stage Stage) Stage {
		return wrap(stage, func(ctx context.Context, b *Build) *Failure {
			start := clock.Now()
			f := stage.Run(ctx, b)
			recorder.ObserveStageDuration(string(stage.Status), clock.Since(start))
			if f != nil {
				recorder.IncStageResult(string(stage.Status), metrics.ResultFailed)
			} else {
				recorder.IncStageResult(string(stage.Status), metrics.ResultSuccess)
			}
			return f
		})
	}
}
