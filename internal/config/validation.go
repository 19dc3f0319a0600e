package config

import (
	"fmt"
	"strings"
	"time"

	ferrors "git.home.luguber.info/inful/cicdsim/internal/foundation/errors"
)

var knownBackoffs = map[string]struct{}{
	"fixed":       {},
	"linear":      {},
	"exponential": {},
}

var knownEngines = map[string]struct{}{
	"docker": {},
	"podman": {},
}

// Validate checks a defaulted configuration.
func Validate(cfg *Config) error {
	if err := validateWatch(cfg); err != nil {
		return err
	}
	if err := validateDurations(cfg); err != nil {
		return err
	}
	if _, ok := knownEngines[cfg.Image.Engine]; !ok {
		return ferrors.ValidationError("unsupported image engine").
			WithContext("engine", cfg.Image.Engine).
			Build()
	}
	if _, ok := knownBackoffs[cfg.Image.PushRetry.Backoff]; !ok {
		return ferrors.ValidationError("unsupported push retry backoff").
			WithContext("backoff", cfg.Image.PushRetry.Backoff).
			Build()
	}
	if cfg.Image.PushRetry.MaxRetries != nil && *cfg.Image.PushRetry.MaxRetries < 0 {
		return ferrors.ValidationError("image.push_retry.max_retries must not be negative").Build()
	}
	if cfg.Retention.MaxRecords != nil && *cfg.Retention.MaxRecords < 0 {
		return ferrors.ValidationError("retention.max_records must not be negative").Build()
	}
	if cfg.Notify.NATSURL != "" && strings.TrimSpace(cfg.Notify.Subject) == "" {
		return ferrors.ValidationError("notify.subject is required when notify.nats_url is set").Build()
	}
	return nil
}

func validateWatch(cfg *Config) error {
	seen := make(map[string]struct{}, len(cfg.Watch.Roots))
	for i, root := range cfg.Watch.Roots {
		if strings.TrimSpace(root) == "" {
			return ferrors.ValidationError(fmt.Sprintf("watch.roots[%d] is empty", i)).Build()
		}
		if _, dup := seen[root]; dup {
			return ferrors.ValidationError("duplicate watch root").WithContext("root", root).Build()
		}
		seen[root] = struct{}{}
	}
	return nil
}

func validateDurations(cfg *Config) error {
	checks := []struct {
		field    string
		value    string
		positive bool
	}{
		{"watch.quiet_window", cfg.Watch.QuietWindow, true},
		{"pipeline.test_timeout", cfg.Pipeline.TestTimeout, true},
		{"image.breaker.cooldown", cfg.Image.Breaker.Cooldown, true},
		{"image.push_retry.initial_delay", cfg.Image.PushRetry.InitialDelay, true},
		{"image.push_retry.max_delay", cfg.Image.PushRetry.MaxDelay, true},
		{"retention.sweep_interval", cfg.Retention.SweepInterval, true},
		{"retention.max_age", cfg.Retention.MaxAge, false},
	}
	for _, c := range checks {
		if c.value == "" && !c.positive {
			continue
		}
		d, err := time.ParseDuration(c.value)
		if err != nil {
			return ferrors.ValidationError("invalid duration").
				WithCause(err).
				WithContext("field", c.field).
				WithContext("value", c.value).
				Build()
		}
		if d < 0 || (c.positive && d == 0) {
			return ferrors.ValidationError("duration out of range").
				WithContext("field", c.field).
				WithContext("value", c.value).
				Build()
		}
	}
	return nil
}
