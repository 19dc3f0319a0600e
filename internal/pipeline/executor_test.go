package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/cicdsim/internal/config"
	"git.home.luguber.info/inful/cicdsim/internal/events"
	"git.home.luguber.info/inful/cicdsim/internal/image"
	"git.home.luguber.info/inful/cicdsim/internal/metrics"
	"git.home.luguber.info/inful/cicdsim/internal/status"
	"git.home.luguber.info/inful/cicdsim/internal/testrunner"
)

const fullProject = `
build:
  base_name: app
  version: "1.2"
test:
  command: "true"
deploy:
  registry: registry.example.com
`

func fullChain() []status.Status {
	return []status.Status{
		status.StatusPending, status.StatusParsing, status.StatusTesting,
		status.StatusBuilding, status.StatusDeploying, status.StatusSuccess,
	}
}

func TestExecutor_Success(t *testing.T) {
	h := newHarness(t, nil)
	root := projectRoot(t, fullProject)

	rec, err := h.exec.Run(t.Context(), Trigger{ID: "trig-1", Root: root})
	require.NoError(t, err)

	assert.Equal(t, status.StatusSuccess, rec.Status)
	assert.Empty(t, rec.FailureReason)
	assert.Equal(t, fullChain(), rec.Statuses())
	assert.Equal(t, "app:1.2", rec.Image)
	assert.Equal(t, "trig-1", rec.TriggerID)
	assert.Equal(t, root, rec.Root)
	require.NotNil(t, rec.FinishedAt)

	assert.Equal(t, []string{"true"}, h.tests.commands)
	assert.Equal(t, []image.BuildRequest{{
		ContextDir: root,
		Dockerfile: filepath.Join(root, "Dockerfile"),
		Image:      "app:1.2",
	}}, h.builder.calls())
	assert.Equal(t, []image.PushRequest{{Image: "app:1.2", Registry: "registry.example.com"}}, h.deployer.calls())

	stored, err := h.store.Get(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec, stored)
}

func TestExecutor_PublishesEveryTransition(t *testing.T) {
	h := newHarness(t, nil)

	rec, err := h.exec.Run(t.Context(), Trigger{Root: projectRoot(t, fullProject)})
	require.NoError(t, err)

	var seen []status.Status
	var from []status.Status
	for _, evt := range h.events.snapshot() {
		bt, ok := evt.(events.BuildTransitioned)
		require.True(t, ok)
		assert.Equal(t, rec.ID, bt.BuildID)
		seen = append(seen, bt.To)
		from = append(from, bt.From)
	}
	assert.Equal(t, fullChain(), seen)
	assert.Equal(t, status.Status(""), from[0])
	assert.Equal(t, status.StatusDeploying, from[len(from)-1])
}

func TestExecutor_MissingRegistryNeverCallsDeployer(t *testing.T) {
	h := newHarness(t, nil)
	root := projectRoot(t, "build:\n  base_name: app\n  version: \"1.2\"\ntest:\n  command: \"true\"\n")

	rec, err := h.exec.Run(t.Context(), Trigger{Root: root})
	require.NoError(t, err)

	assert.Equal(t, status.StatusFailed, rec.Status)
	assert.Equal(t, "missing deploy target", rec.FailureReason)
	assert.Equal(t, []status.Status{
		status.StatusPending, status.StatusParsing, status.StatusTesting,
		status.StatusBuilding, status.StatusDeploying, status.StatusFailed,
	}, rec.Statuses())
	assert.Len(t, h.builder.calls(), 1)
	assert.Empty(t, h.deployer.calls())
}

func TestExecutor_MissingBaseNameNeverCallsBuilder(t *testing.T) {
	h := newHarness(t, nil)
	root := projectRoot(t, "build:\n  version: \"1.2\"\ndeploy:\n  registry: registry.example.com\n")

	rec, err := h.exec.Run(t.Context(), Trigger{Root: root})
	require.NoError(t, err)

	assert.Equal(t, status.StatusFailed, rec.Status)
	assert.Equal(t, "missing base_name", rec.FailureReason)
	assert.Equal(t, status.StatusBuilding, rec.Statuses()[len(rec.Statuses())-2])
	assert.Empty(t, rec.Image)
	assert.Empty(t, h.builder.calls())
	assert.Empty(t, h.deployer.calls())
}

func TestExecutor_NoTestCommandIsNotAFailure(t *testing.T) {
	h := newHarness(t, nil)
	root := projectRoot(t, "build:\n  base_name: app\ndeploy:\n  registry: registry.example.com\n")

	rec, err := h.exec.Run(t.Context(), Trigger{Root: root})
	require.NoError(t, err)

	assert.Equal(t, status.StatusSuccess, rec.Status)
	assert.Contains(t, rec.Statuses(), status.StatusBuilding)
	assert.NotContains(t, rec.Statuses(), status.StatusFailed)
	assert.Zero(t, h.tests.calls())
	assert.Equal(t, "app:latest", h.builder.calls()[0].Image)
}

func TestExecutor_ShellVariablesReachTestCommand(t *testing.T) {
	t.Setenv("X", "agent")
	root := projectRoot(t, "build:\n  base_name: app\n"+
		"test:\n  command: 'X=ok; test \"$X\" = ok'\n"+
		"deploy:\n  registry: registry.example.com\n")

	exec, err := NewExecutor(status.NewStore(status.StoreConfig{}), Collaborators{
		Loader:   config.NewProjectLoader(""),
		Tests:    testrunner.New(time.Minute),
		Builder:  &fakeBuilder{},
		Deployer: &fakeDeployer{},
	}, WithLogger(discardLogger()))
	require.NoError(t, err)

	rec, err := exec.Run(t.Context(), Trigger{Root: root})
	require.NoError(t, err)
	assert.Equal(t, status.StatusSuccess, rec.Status, rec.FailureReason)
}

func TestExecutor_ConfigErrors(t *testing.T) {
	cases := map[string]struct {
		root func(t *testing.T) string
	}{
		"not found": {root: func(t *testing.T) string { return t.TempDir() }},
		"malformed": {root: func(t *testing.T) string { return projectRoot(t, "build: [oops") }},
		"empty":     {root: func(t *testing.T) string { return projectRoot(t, "") }},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t, nil)

			rec, err := h.exec.Run(t.Context(), Trigger{Root: tc.root(t)})
			require.NoError(t, err)

			assert.Equal(t, status.StatusFailed, rec.Status)
			assert.Equal(t, "config error", rec.FailureReason)
			assert.Equal(t, []status.Status{status.StatusPending, status.StatusParsing, status.StatusFailed}, rec.Statuses())
			assert.Zero(t, h.tests.calls())
			assert.Empty(t, h.builder.calls())
		})
	}
}

func TestExecutor_StageFailures(t *testing.T) {
	cases := []struct {
		name       string
		setup      func(h *harness)
		reason     string
		lastActive status.Status
	}{
		{
			name:       "tests failed",
			setup:      func(h *harness) { h.tests.err = errors.New("exit status 1") },
			reason:     "tests failed",
			lastActive: status.StatusTesting,
		},
		{
			name:       "build failed",
			setup:      func(h *harness) { h.builder.err = image.ErrBuildFailed },
			reason:     "build failed",
			lastActive: status.StatusBuilding,
		},
		{
			name:       "deploy failed",
			setup:      func(h *harness) { h.deployer.err = image.ErrPushFailed },
			reason:     "deploy failed",
			lastActive: status.StatusDeploying,
		},
		{
			name:       "builder panic",
			setup:      func(h *harness) { h.builder.panicMsg = "engine exploded" },
			reason:     "internal error",
			lastActive: status.StatusBuilding,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, nil)
			tc.setup(h)

			rec, err := h.exec.Run(t.Context(), Trigger{Root: projectRoot(t, fullProject)})
			require.NoError(t, err)

			statuses := rec.Statuses()
			assert.Equal(t, status.StatusFailed, rec.Status)
			assert.Equal(t, tc.reason, rec.FailureReason)
			assert.Equal(t, tc.lastActive, statuses[len(statuses)-2])
		})
	}
}

func TestExecutor_LaterStagesSkippedAfterFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.tests.err = errors.New("exit status 2")

	_, err := h.exec.Run(t.Context(), Trigger{Root: projectRoot(t, fullProject)})
	require.NoError(t, err)

	assert.Empty(t, h.builder.calls())
	assert.Empty(t, h.deployer.calls())
}

func TestExecutor_KeepsWorkingAfterPanic(t *testing.T) {
	h := newHarness(t, nil)
	root := projectRoot(t, fullProject)

	h.builder.panicMsg = "boom"
	first, err := h.exec.Run(t.Context(), Trigger{Root: root})
	require.NoError(t, err)
	require.Equal(t, status.StatusFailed, first.Status)

	h.builder.panicMsg = ""
	second, err := h.exec.Run(t.Context(), Trigger{Root: root})
	require.NoError(t, err)
	assert.Equal(t, status.StatusSuccess, second.Status)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestExecutor_LoaderErrorClassification(t *testing.T) {
	h := newHarness(t, errLoader{err: config.ErrProjectConfigNotFound})
	rec, err := h.exec.Run(t.Context(), Trigger{Root: "/nowhere"})
	require.NoError(t, err)
	assert.Equal(t, "config error", rec.FailureReason)

	f := newFailure(KindConfigNotFound, status.StatusParsing, config.ErrProjectConfigNotFound)
	assert.True(t, errors.Is(f, config.ErrProjectConfigNotFound))
	assert.Equal(t, "parsing: config error: [not_found:error] project config not found", f.Error())
}

func TestExecutor_StampsCommit(t *testing.T) {
	store := status.NewStore(status.StoreConfig{})
	exec, err := NewExecutor(store, Collaborators{
		Loader:   config.NewProjectLoader(""),
		Tests:    &fakeTests{},
		Builder:  &fakeBuilder{},
		Deployer: &fakeDeployer{},
		Commits:  fakeCommits{commit: "0123abcd"},
	}, WithLogger(discardLogger()))
	require.NoError(t, err)

	rec, err := exec.Run(t.Context(), Trigger{Root: projectRoot(t, fullProject)})
	require.NoError(t, err)
	assert.Equal(t, "0123abcd", rec.Commit)
}

func TestExecutor_CancelledContextStillCompletes(t *testing.T) {
	h := newHarness(t, nil)
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	rec, err := h.exec.Run(ctx, Trigger{Root: projectRoot(t, fullProject)})
	require.NoError(t, err)
	assert.Equal(t, status.StatusSuccess, rec.Status)
}

func TestExecutor_UniqueIDsUnderFrozenClock(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC))
	h := newHarness(t, nil, WithClock(clock))
	root := projectRoot(t, fullProject)

	seen := make(map[string]struct{})
	for range 20 {
		rec, err := h.exec.Run(t.Context(), Trigger{Root: root})
		require.NoError(t, err)
		_, dup := seen[rec.ID]
		require.False(t, dup, "duplicate id %s", rec.ID)
		seen[rec.ID] = struct{}{}
	}
	assert.Equal(t, 20, h.store.Len())
}

type countingRecorder struct {
	metrics.NoopRecorder
	mu       sync.Mutex
	stages   map[string]metrics.ResultLabel
	outcomes []string
}

func (c *countingRecorder) IncStageResult(stage string, result metrics.ResultLabel) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stages == nil {
		c.stages = make(map[string]metrics.ResultLabel)
	}
	c.stages[stage] = result
}

func (c *countingRecorder) IncBuildOutcome(outcome string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outcomes = append(c.outcomes, outcome)
}

func TestExecutor_RecordsMetrics(t *testing.T) {
	rec := &countingRecorder{}
	h := newHarness(t, nil, WithRecorder(rec))
	h.deployer.err = image.ErrPushFailed

	_, err := h.exec.Run(t.Context(), Trigger{Root: projectRoot(t, fullProject)})
	require.NoError(t, err)

	assert.Equal(t, map[string]metrics.ResultLabel{
		"parsing":   metrics.ResultSuccess,
		"testing":   metrics.ResultSuccess,
		"building":  metrics.ResultSuccess,
		"deploying": metrics.ResultFailed,
	}, rec.stages)
	assert.Equal(t, []string{"failed"}, rec.outcomes)
}

func TestExecutor_ExtraMiddlewareSeesEveryStage(t *testing.T) {
	var mu sync.Mutex
	var order []status.Status
	trace := func(stage Stage) Stage {
		return Stage{Status: stage.Status, Run: func(ctx context.Context, b *Build) *Failure {
			mu.Lock()
			order = append(order, stage.Status)
			mu.Unlock()
			return stage.Run(ctx, b)
		}}
	}
	h := newHarness(t, nil, WithMiddleware(trace))

	_, err := h.exec.Run(t.Context(), Trigger{Root: projectRoot(t, fullProject)})
	require.NoError(t, err)
	assert.Equal(t, []status.Status{
		status.StatusParsing, status.StatusTesting, status.StatusBuilding, status.StatusDeploying,
	}, order)
}

func TestNewExecutor_RequiresCollaborators(t *testing.T) {
	_, err := NewExecutor(nil, Collaborators{})
	require.Error(t, err)

	_, err = NewExecutor(status.NewStore(status.StoreConfig{}), Collaborators{Loader: config.NewProjectLoader("")})
	require.Error(t, err)
}

func TestFailureKindReasons(t *testing.T) {
	assert.Equal(t, "config error", KindConfigMalformed.Reason())
	assert.Equal(t, "missing base_name", KindMissingBuildName.Reason())
	assert.Equal(t, "internal error", FailureKind("unknown").Reason())
}
