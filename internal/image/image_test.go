package image

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferrors "git.home.luguber.info/inful/cicdsim/internal/foundation/errors"
	"git.home.luguber.info/inful/cicdsim/internal/retry"
)

// fakeEngine writes a shell script that records its arguments and fails when
// invoked with the subcommand named by failOn.
func fakeEngine(t *testing.T, failOn string) (binary, logPath string) {
	t.Helper()
	dir := t.TempDir()
	logPath = filepath.Join(dir, "calls.log")
	binary = filepath.Join(dir, "docker")

	script := fmt.Sprintf(`#!/bin/sh
echo "$@" >> %q
if [ "$1" = "build" ]; then
  echo "Step 1/2 : FROM scratch"
  printf "Step 2/2 : COPY . ."
fi
if [ "$1" = %q ]; then
  echo "denied: requested access to the resource is denied" >&2
  exit 1
fi
exit 0
`, logPath, failOn)
	require.NoError(t, os.WriteFile(binary, []byte(script), 0o700)) // #nosec G306 -- test script must be executable
	return binary, logPath
}

func calls(t *testing.T, logPath string) []string {
	t.Helper()
	data, err := os.ReadFile(logPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	require.NoError(t, err)
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBuilder_InvokesEngine(t *testing.T) {
	bin, log := fakeEngine(t, "")
	root := t.TempDir()
	b := NewBuilder(NewEngine(bin, false, quietLogger()))

	err := b.Build(t.Context(), BuildRequest{
		ContextDir: root,
		Dockerfile: filepath.Join(root, "Dockerfile"),
		Image:      "app:1.2",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{
		fmt.Sprintf("build -f %s -t app:1.2 %s", filepath.Join(root, "Dockerfile"), root),
	}, calls(t, log))
}

func TestBuilder_FailureCarriesOutputTail(t *testing.T) {
	bin, _ := fakeEngine(t, "build")
	b := NewBuilder(NewEngine(bin, false, quietLogger()))

	err := b.Build(t.Context(), BuildRequest{ContextDir: t.TempDir(), Dockerfile: "Dockerfile", Image: "app:latest"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBuildFailed))

	ce, ok := ferrors.AsClassified(err)
	require.True(t, ok)
	output, _ := ce.Context().GetString("output")
	assert.Contains(t, output, "Step 2/2 : COPY . .")
	assert.Contains(t, output, "denied")
}

func TestBuilder_MissingBinary(t *testing.T) {
	b := NewBuilder(NewEngine(filepath.Join(t.TempDir(), "nope"), false, quietLogger()))

	err := b.Build(t.Context(), BuildRequest{ContextDir: t.TempDir(), Dockerfile: "Dockerfile", Image: "app:latest"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBuildFailed))
}

func TestBuilder_RequiresImage(t *testing.T) {
	bin, log := fakeEngine(t, "")
	b := NewBuilder(NewEngine(bin, false, quietLogger()))

	err := b.Build(t.Context(), BuildRequest{ContextDir: t.TempDir(), Dockerfile: "Dockerfile"})
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryValidation))
	assert.Empty(t, calls(t, log))
}

func TestDeployer_TagsThenPushes(t *testing.T) {
	bin, log := fakeEngine(t, "")
	d := NewDeployer(NewEngine(bin, false, quietLogger()), BreakerSettings{})

	err := d.Push(t.Context(), PushRequest{Image: "app:1.2", Registry: "registry.example.com/"})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"tag app:1.2 registry.example.com/app:1.2",
		"push registry.example.com/app:1.2",
	}, calls(t, log))
}

func TestDeployer_PushFailure(t *testing.T) {
	bin, _ := fakeEngine(t, "push")
	d := NewDeployer(NewEngine(bin, false, quietLogger()), BreakerSettings{Failures: 5, Cooldown: time.Minute})

	err := d.Push(t.Context(), PushRequest{Image: "app:1.2", Registry: "registry.example.com"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPushFailed))
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryDeploy))
}

func TestDeployer_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	bin, log := fakeEngine(t, "push")
	d := NewDeployer(NewEngine(bin, false, quietLogger()), BreakerSettings{Failures: 2, Cooldown: time.Hour})
	req := PushRequest{Image: "app:1.2", Registry: "registry.example.com"}

	for range 2 {
		err := d.Push(t.Context(), req)
		require.True(t, errors.Is(err, ErrPushFailed))
	}
	assert.Equal(t, "open", d.BreakerState())
	invoked := len(calls(t, log))

	err := d.Push(t.Context(), req)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBreakerOpen))
	assert.Len(t, calls(t, log), invoked, "engine must not run while the circuit is open")
}

func TestDeployer_RetriesFailedPush(t *testing.T) {
	bin, log := fakeEngine(t, "push")
	d := NewDeployer(NewEngine(bin, false, quietLogger()), BreakerSettings{Failures: 10, Cooldown: time.Hour},
		WithPushRetry(retry.NewPolicy(retry.ModeFixed, time.Millisecond, time.Millisecond, 2)))

	err := d.Push(t.Context(), PushRequest{Image: "app:1.2", Registry: "registry.example.com"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPushFailed))
	assert.Len(t, calls(t, log), 6, "one attempt plus two retries, each tag then push")
}

func TestDeployer_OpenCircuitStopsRetries(t *testing.T) {
	bin, log := fakeEngine(t, "push")
	d := NewDeployer(NewEngine(bin, false, quietLogger()), BreakerSettings{Failures: 1, Cooldown: time.Hour},
		WithPushRetry(retry.NewPolicy(retry.ModeFixed, time.Millisecond, time.Millisecond, 3)))

	err := d.Push(t.Context(), PushRequest{Image: "app:1.2", Registry: "registry.example.com"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBreakerOpen))
	assert.Len(t, calls(t, log), 2)
}

func TestDeployer_RequiresTarget(t *testing.T) {
	bin, log := fakeEngine(t, "")
	d := NewDeployer(NewEngine(bin, false, quietLogger()), BreakerSettings{})

	err := d.Push(t.Context(), PushRequest{Image: "app:1.2"})
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryValidation))
	assert.Empty(t, calls(t, log))
}

func TestDryRun_DoesNotInvokeEngine(t *testing.T) {
	engine := NewEngine(filepath.Join(t.TempDir(), "missing-engine"), true, quietLogger())

	require.NoError(t, NewBuilder(engine).Build(t.Context(), BuildRequest{ContextDir: ".", Dockerfile: "Dockerfile", Image: "app:1"}))
	require.NoError(t, NewDeployer(engine, BreakerSettings{}).Push(t.Context(), PushRequest{Image: "app:1", Registry: "r.example.com"}))
}

func TestTargetRef(t *testing.T) {
	assert.Equal(t, "r.example.com/app:1", TargetRef("r.example.com", "app:1"))
	assert.Equal(t, "r.example.com/team/app:1", TargetRef("r.example.com/team/", "app:1"))
}

func TestLineLogger_SplitsPartialWrites(t *testing.T) {
	l := &lineLogger{logger: quietLogger(), command: "build"}

	_, _ = l.Write([]byte("first li"))
	_, _ = l.Write([]byte("ne\nsecond\nthi"))
	l.flush()

	assert.Equal(t, "first line\nsecond\nthi", l.tail())
}
