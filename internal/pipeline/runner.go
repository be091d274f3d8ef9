// XBackup - Per-User Backup Artifact Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/xbackup

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/xbackup/internal/errs"
	"github.com/tomtom215/xbackup/internal/logging"
	"github.com/tomtom215/xbackup/internal/metrics"
)

const stderrTailSize = 4 * 1024

// Command describes one child process invocation.
type Command struct {
	// Tool labels the invocation in logs and metrics.
	Tool string

	// Path is the executable; Args excludes it.
	Path string
	Args []string

	// Dir is the working directory, empty for the current one.
	Dir string

	// Secret is masked wherever Args is logged.
	Secret string

	// Stdin, when set, is written to the child's standard input.
	Stdin string

	// Stdout, when set, is a file path that receives the child's standard output.
	Stdout string

	// Output is the path that must exist for the invocation to count as a success.
	Output string
}

// ToolError reports a child process that exited unsuccessfully.
type ToolError struct {
	Tool     string
	ExitCode int
	Stderr   string
}

func (e *ToolError) Error() string {
	msg := fmt.Sprintf("%s exited with status %d", e.Tool, e.ExitCode)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

// runner executes Commands.
type runner struct {
	log zerolog.Logger
}

// run starts cmd, waits for it and classifies the outcome. Partial output is
// removed on any failure.
//
//nolint:gosec // G204: argument vectors are built from fixed flags and pipeline paths
func (r *runner) run(ctx context.Context, cmd Command) (err error) {
	started := time.Now()
	result := "ok"
	defer func() {
		metrics.RecordToolInvocation(cmd.Tool, result)
		if err != nil {
			removeQuiet(cmd.Stdout)
			removeQuiet(cmd.Output)
		}
	}()

	c := exec.CommandContext(ctx, cmd.Path, cmd.Args...)
	c.Dir = cmd.Dir
	if cmd.Stdin != "" {
		c.Stdin = strings.NewReader(cmd.Stdin)
	}
	stderr := &tailBuffer{max: stderrTailSize}
	c.Stderr = stderr
	configureProcess(c)

	var out *os.File
	if cmd.Stdout != "" {
		out, err = os.OpenFile(cmd.Stdout, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
		if err != nil {
			result = "error"
			return fmt.Errorf("%s: open output: %w", cmd.Tool, err)
		}
		c.Stdout = out
	}

	r.log.Debug().
		Str("tool", cmd.Tool).
		Str("path", cmd.Path).
		Strs("args", logging.RedactArgs(cmd.Args, cmd.Secret)).
		Msg("Starting external tool")

	if err = c.Start(); err != nil {
		if out != nil {
			out.Close() //nolint:errcheck // nothing was written
		}
		result = "spawn_failed"
		return errs.E(errs.ToolSpawnFailed, cmd.Tool, cmd.Path, err)
	}

	waitErr := c.Wait()
	var closeErr error
	if out != nil {
		closeErr = out.Close()
	}

	if waitErr != nil {
		result = "exit_nonzero"
		toolErr := &ToolError{Tool: cmd.Tool, ExitCode: -1, Stderr: strings.TrimSpace(stderr.String())}
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			toolErr.ExitCode = exitErr.ExitCode()
		}
		cause := error(toolErr)
		if ctxErr := ctx.Err(); ctxErr != nil {
			cause = errors.Join(toolErr, ctxErr)
		}
		return errs.E(errs.ToolExitedNonZero, cmd.Tool, cmd.Path, cause)
	}
	if closeErr != nil {
		result = "error"
		return fmt.Errorf("%s: close output: %w", cmd.Tool, closeErr)
	}

	if cmd.Output != "" {
		if _, statErr := os.Stat(cmd.Output); statErr != nil {
			result = "output_missing"
			return errs.E(errs.OutputMissing, cmd.Tool, cmd.Output, statErr)
		}
	}

	r.log.Debug().
		Str("tool", cmd.Tool).
		Dur("duration", time.Since(started)).
		Msg("External tool finished")
	return nil
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	max int
	buf []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	return string(t.buf)
}
