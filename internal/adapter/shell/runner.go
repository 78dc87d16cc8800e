// Package shell runs external administrative tools synchronously and turns
// each invocation into a CommandOutcome.
package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"unicode/utf8"

	"github.com/adomasb/backstop/internal/domain"
)

type Logger interface {
	Warnf(template string, args ...interface{})
}

type Runner struct {
	logger Logger
}

func New(logger Logger) *Runner {
	return &Runner{logger: logger}
}

// Run executes name with args in dir (empty dir means the process working
// directory), blocking until the command exits. Stdout and stderr are
// buffered in full; command outputs here are administrative-tool sized, so
// no streaming is needed. There is no timeout beyond ctx: a hung tool hangs
// the run.
func (r *Runner) Run(ctx context.Context, dir, name string, args ...string) domain.CommandOutcome {
	var stdout, stderr bytes.Buffer
	return r.run(ctx, dir, name, args, &stdout, &stderr)
}

// RunDiscardStdout is Run with stdout thrown away. Used for tools whose
// stdout is an unbounded per-file listing that would bloat the run log.
func (r *Runner) RunDiscardStdout(ctx context.Context, dir, name string, args ...string) domain.CommandOutcome {
	var stderr bytes.Buffer
	return r.run(ctx, dir, name, args, nil, &stderr)
}

func (r *Runner) run(ctx context.Context, dir, name string, args []string, stdout, stderr *bytes.Buffer) domain.CommandOutcome {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	if stdout != nil {
		cmd.Stdout = stdout
	} else {
		cmd.Stdout = io.Discard
	}
	cmd.Stderr = stderr

	err := cmd.Run()

	outcome := domain.CommandOutcome{
		Stderr: r.decode(stderr.Bytes()),
	}
	if stdout != nil {
		outcome.Stdout = r.decode(stdout.Bytes())
	}

	// Descriptions carry only the tool name: argument lists can contain
	// credentials (archive passphrases, dump flags).
	switch {
	case err == nil:
		outcome.Succeeded = true
		outcome.Description = fmt.Sprintf("%s completed successfully.", name)
	default:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			outcome.Description = fmt.Sprintf("%s finished with return code %d.", name, exitErr.ExitCode())
		} else {
			outcome.Description = fmt.Sprintf("%s could not be run: %v.", name, err)
			if outcome.Stderr == "" {
				outcome.Stderr = err.Error()
			}
		}
	}

	return outcome
}

// decode normalizes captured bytes to valid UTF-8, replacing undecodable
// sequences with U+FFFD and noting the substitution.
func (r *Runner) decode(b []byte) string {
	s := string(b)
	if !utf8.ValidString(s) {
		r.logger.Warnf("process output is not valid UTF-8, bad bytes replaced with U+FFFD")
		s = strings.ToValidUTF8(s, "�")
	}
	return strings.TrimRight(s, "\r\n")
}
