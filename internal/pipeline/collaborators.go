package pipeline

import (
	"context"
	"log/slog"
	"time"

	"git.home.luguber.info/inful/cicdsim/internal/config"
	"git.home.luguber.info/inful/cicdsim/internal/image"
	"git.home.luguber.info/inful/cicdsim/internal/status"
	"git.home.luguber.info/inful/cicdsim/internal/testrunner"
)

// ConfigLoader reads the project configuration of a root. It is called once per run.
type ConfigLoader interface {
	Load(root string) (*config.ProjectConfig, error)
}

// TestRunner runs a test command inside a root.
type TestRunner interface {
	Run(ctx context.Context, dir, command string) (testrunner.Result, error)
}

// ImageBuilder builds a container image.
type ImageBuilder interface {
	Build(ctx context.Context, req image.BuildRequest) error
}

// ImageDeployer pushes a built image to a registry.
type ImageDeployer interface {
	Push(ctx context.Context, req image.PushRequest) error
}

// CommitResolver reports the source revision of a root, when it has one.
type CommitResolver interface {
	HeadCommit(root string) (string, bool)
}

// EventPublisher receives build transition events. It must not block.
type EventPublisher interface {
	Publish(evt any) (int, error)
}

// Collaborators groups the external systems a run talks to.
type Collaborators struct {
	Loader   ConfigLoader
	Tests    TestRunner
	Builder  ImageBuilder
	Deployer ImageDeployer
	Commits  CommitResolver // optional
}

// Trigger asks for one pipeline run of a root.
type Trigger struct {
	ID      string
	Root    string
	Events  int
	FiredAt time.Time
}

// Build is the mutable state of one run, shared by its stages.
type Build struct {
	ID      string
	Trigger Trigger
	Commit  string
	Status  status.Status
	Project *config.ProjectConfig
	Image   string
	Logger  *slog.Logger
}
