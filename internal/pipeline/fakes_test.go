package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/cicdsim/internal/config"
	"git.home.luguber.info/inful/cicdsim/internal/image"
	"git.home.luguber.info/inful/cicdsim/internal/status"
	"git.home.luguber.info/inful/cicdsim/internal/testrunner"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// projectRoot writes content as .cicd.yml in a fresh directory.
func projectRoot(t *testing.T, content string) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, ".cicd.yml"), []byte(content), 0o600))
	return root
}

type fakeTests struct {
	mu       sync.Mutex
	commands []string
	err      error
}

func (f *fakeTests) Run(_ context.Context, _ string, command string) (testrunner.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, command)
	if f.err != nil {
		return testrunner.Result{Command: command, ExitCode: 1, Stderr: "FAIL"}, f.err
	}
	return testrunner.Result{Command: command, Stdout: "ok"}, nil
}

func (f *fakeTests) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.commands)
}

type fakeBuilder struct {
	mu       sync.Mutex
	requests []image.BuildRequest
	err      error
	panicMsg string
}

func (f *fakeBuilder) Build(_ context.Context, req image.BuildRequest) error {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	err, panicMsg := f.err, f.panicMsg
	f.mu.Unlock()
	if panicMsg != "" {
		panic(panicMsg)
	}
	return err
}

func (f *fakeBuilder) calls() []image.BuildRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]image.BuildRequest(nil), f.requests...)
}

type fakeDeployer struct {
	mu       sync.Mutex
	requests []image.PushRequest
	err      error
}

func (f *fakeDeployer) Push(_ context.Context, req image.PushRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	return f.err
}

func (f *fakeDeployer) calls() []image.PushRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]image.PushRequest(nil), f.requests...)
}

type fakeCommits struct{ commit string }

func (f fakeCommits) HeadCommit(string) (string, bool) { return f.commit, f.commit != "" }

type errLoader struct{ err error }

func (l errLoader) Load(string) (*config.ProjectConfig, error) { return nil, l.err }

type fakeEvents struct {
	mu     sync.Mutex
	events []any
}

func (f *fakeEvents) Publish(evt any) (int, error) {
	if evt == nil {
		return 0, errors.New("nil event")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, evt)
	return 1, nil
}

func (f *fakeEvents) snapshot() []any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]any(nil), f.events...)
}

type harness struct {
	store    *status.Store
	tests    *fakeTests
	builder  *fakeBuilder
	deployer *fakeDeployer
	events   *fakeEvents
	exec     *Executor
}

func newHarness(t *testing.T, loader ConfigLoader, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		store:    status.NewStore(status.StoreConfig{}),
		tests:    &fakeTests{},
		builder:  &fakeBuilder{},
		deployer: &fakeDeployer{},
		events:   &fakeEvents{},
	}
	if loader == nil {
		loader = config.NewProjectLoader("")
	}
	opts = append([]Option{WithLogger(discardLogger()), WithEvents(h.events)}, opts...)
	exec, err := NewExecutor(h.store, Collaborators{
		Loader:   loader,
		Tests:    h.tests,
		Builder:  h.builder,
		Deployer: h.deployer,
	}, opts...)
	require.NoError(t, err)
	h.exec = exec
	return h
}
