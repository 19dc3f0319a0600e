// Package testrunner executes a project's test command in its root directory.
package testrunner

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"time"

	ferrors "git.home.luguber.info/inful/cicdsim/internal/foundation/errors"
)

// DefaultTimeout bounds a test command when the runner has no explicit timeout.
const DefaultTimeout = 10 * time.Minute

var (
	ErrCommandFailed = ferrors.TestError("test command failed").Build()
	ErrTimeout       = ferrors.TestError("test command timed out").Build()
)

// Result is the outcome of one test command invocation.
type Result struct {
	Command  string
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// Runner runs test commands through a POSIX shell.
type Runner struct {
	Shell   string
	Timeout time.Duration
	// WaitDelay bounds how long Run waits for output pipes after the shell exits.
	WaitDelay time.Duration
}

// New returns a Runner using sh with the given timeout.
func New(timeout time.Duration) *Runner {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Runner{Shell: "sh", Timeout: timeout, WaitDelay: 5 * time.Second}
}

// Run executes command with `sh -c` in dir. A non-zero exit, a start failure
// or a timeout is returned as an error; Result is populated in every case.
func (r *Runner) Run(ctx context.Context, dir, command string) (Result, error) {
	res := Result{Command: command, ExitCode: -1}
	if strings.TrimSpace(command) == "" {
		return res, ferrors.ValidationError("test command is empty").Build()
	}

	shell := r.Shell
	if shell == "" {
		shell = "sh"
	}
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// #nosec G204 -- the command comes from the project's own pipeline file
	cmd := exec.CommandContext(runCtx, shell, "-c", command)
	cmd.Dir = dir
	cmd.WaitDelay = r.WaitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	res.Duration = time.Since(start)
	res.Stdout = stdout.String()
	res.Stderr = stderr.String()

	if err == nil {
		res.ExitCode = 0
		return res, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
	}

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return res, ferrors.WrapError(err, ferrors.CategoryTest, ErrTimeout.Message()).
			WithContext("timeout", timeout.String()).
			WithContext("command", command).
			Build()
	}

	return res, ferrors.WrapError(err, ferrors.CategoryTest, ErrCommandFailed.Message()).
		WithContext("exit_code", res.ExitCode).
		WithContext("command", command).
		Build()
}
