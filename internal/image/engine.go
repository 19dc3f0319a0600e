// Package image drives a container engine CLI (docker or podman) to build
// and push the images produced by the pipeline.
package image

import (
	"bytes"
	"context"
	"log/slog"
	"os/exec"
	"strings"
	"sync"

	ferrors "git.home.luguber.info/inful/cicdsim/internal/foundation/errors"
	"git.home.luguber.info/inful/cicdsim/internal/logfields"
)

// tailLines is how many trailing output lines are kept for error context.
const tailLines = 20

// Engine invokes a container engine binary.
type Engine struct {
	Binary string
	DryRun bool
	logger *slog.Logger
}

// NewEngine returns an Engine for binary ("docker" when empty).
func NewEngine(binary string, dryRun bool, logger *slog.Logger) *Engine {
	if binary == "" {
		binary = "docker"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{Binary: binary, DryRun: dryRun, logger: logger}
}

// run executes the engine with args, streaming output lines to the debug log.
// On failure the returned error carries the last lines of output.
func (e *Engine) run(ctx context.Context, category ferrors.ErrorCategory, message string, args ...string) error {
	command := e.Binary + " " + strings.Join(args, " ")
	if e.DryRun {
		e.logger.Info("Dry run: skipping engine command", logfields.Command(command))
		return nil
	}

	e.logger.Debug("Running engine command", logfields.Command(command))

	out := &lineLogger{logger: e.logger, command: args[0]}
	// #nosec G204 -- binary and arguments come from agent and project configuration
	cmd := exec.CommandContext(ctx, e.Binary, args...)
	cmd.Stdout = out
	cmd.Stderr = out

	err := cmd.Run()
	out.flush()
	if err != nil {
		return ferrors.WrapError(err, category, message).
			WithContext("command", command).
			WithContext("output", out.tail()).
			Build()
	}
	return nil
}

// lineLogger is an io.Writer that logs each complete line at debug level.
type lineLogger struct {
	logger  *slog.Logger
	command string

	mu    sync.Mutex
	buf   bytes.Buffer
	lines []string
}

func (l *lineLogger) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.buf.Write(p)
	for {
		line, err := l.buf.ReadString('\n')
		if err != nil {
			// Partial line: keep it for the next write.
			l.buf.Reset()
			l.buf.WriteString(line)
			break
		}
		l.emit(strings.TrimRight(line, "\r\n"))
	}
	return len(p), nil
}

func (l *lineLogger) flush() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.buf.Len() > 0 {
		l.emit(l.buf.String())
		l.buf.Reset()
	}
}

func (l *lineLogger) emit(line string) {
	l.logger.Debug(line, slog.String("engine", l.command))
	l.lines = append(l.lines, line)
	if len(l.lines) > tailLines {
		l.lines = l.lines[len(l.lines)-tailLines:]
	}
}

func (l *lineLogger) tail() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return strings.Join(l.lines, "\n")
}
