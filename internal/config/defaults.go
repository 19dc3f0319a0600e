package config

const (
	defaultRoot          = "sample_project"
	defaultQuietWindow   = "60s"
	defaultProjectFile   = ".cicd.yml"
	defaultTestTimeout   = "10m"
	defaultEngine        = "docker"
	defaultBreakerFails  = 3
	defaultBreakerCool   = "1m"
	defaultPushBackoff   = "linear"
	defaultPushInitial   = "2s"
	defaultPushMaxDelay  = "30s"
	defaultPushRetries   = 1
	defaultHTTPAddr      = ":8000"
	defaultMaxRecords    = 100
	defaultSweepInterval = "1m"
	defaultSubject       = "cicdsim.builds"
)

// DefaultIgnore lists path segments that are never watched.
var DefaultIgnore = []string{".git"}

func applyDefaults(cfg *Config) {
	if len(cfg.Watch.Roots) == 0 {
		cfg.Watch.Roots = []string{defaultRoot}
	}
	if cfg.Watch.QuietWindow == "" {
		cfg.Watch.QuietWindow = defaultQuietWindow
	}
	if cfg.Watch.Ignore == nil {
		cfg.Watch.Ignore = append([]string(nil), DefaultIgnore...)
	}

	if cfg.Project.ConfigFile == "" {
		cfg.Project.ConfigFile = defaultProjectFile
	}

	if cfg.Pipeline.TestTimeout == "" {
		cfg.Pipeline.TestTimeout = defaultTestTimeout
	}

	if cfg.Image.Engine == "" {
		cfg.Image.Engine = defaultEngine
	}
	if cfg.Image.Breaker.Failures <= 0 {
		cfg.Image.Breaker.Failures = defaultBreakerFails
	}
	if cfg.Image.Breaker.Cooldown == "" {
		cfg.Image.Breaker.Cooldown = defaultBreakerCool
	}

	if cfg.Image.PushRetry.Backoff == "" {
		cfg.Image.PushRetry.Backoff = defaultPushBackoff
	}
	if cfg.Image.PushRetry.InitialDelay == "" {
		cfg.Image.PushRetry.InitialDelay = defaultPushInitial
	}
	if cfg.Image.PushRetry.MaxDelay == "" {
		cfg.Image.PushRetry.MaxDelay = defaultPushMaxDelay
	}
	if cfg.Image.PushRetry.MaxRetries == nil {
		retries := defaultPushRetries
		cfg.Image.PushRetry.MaxRetries = &retries
	}

	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = defaultHTTPAddr
	}

	if cfg.Retention.MaxRecords == nil {
		maxRecords := defaultMaxRecords
		cfg.Retention.MaxRecords = &maxRecords
	}
	if cfg.Retention.SweepInterval == "" {
		cfg.Retention.SweepInterval = defaultSweepInterval
	}

	if cfg.Notify.Subject == "" {
		cfg.Notify.Subject = defaultSubject
	}

	if cfg.Metrics.Enabled == nil {
		enabled := true
		cfg.Metrics.Enabled = &enabled
	}
}
