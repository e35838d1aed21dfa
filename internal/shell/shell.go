package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"
)

// ExitError wraps a non-zero exit from a subprocess.
type ExitError struct {
	Code   int
	Stderr string
	Cmd    string
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s exited with code %d: %s", e.Cmd, e.Code, e.Stderr)
}

// Result holds the full outcome of a captured subprocess invocation,
// including non-zero exits. Used where the caller classifies failures
// itself instead of treating them as errors.
type Result struct {
	Cmd      string
	ExitCode int
	Stdout   string
	Stderr   string
	TimedOut bool
}

// Combined returns stdout and stderr joined, for pattern matching.
func (res Result) Combined() string {
	return res.Stdout + "\n" + res.Stderr
}

// Runner executes subprocesses with a shared working directory and
// environment. Each call takes a hard wall-clock timeout; on expiry the
// entire process group is killed so grandchildren cannot outlive the call.
type Runner struct {
	Dir string
	Env []string
}

// Run executes a command and returns its stdout. Stderr is captured and
// included in the error on non-zero exit. A timeout of 0 means no limit.
func (r *Runner) Run(ctx context.Context, timeout time.Duration, name string, args ...string) (string, error) {
	return r.run(ctx, timeout, "", name, args...)
}

// RunWithStdin executes a command, piping the given string to stdin, and
// returns stdout. Non-zero exit is an *ExitError, like Run.
func (r *Runner) RunWithStdin(ctx context.Context, timeout time.Duration, stdin, name string, args ...string) (string, error) {
	return r.run(ctx, timeout, stdin, name, args...)
}

func (r *Runner) run(ctx context.Context, timeout time.Duration, stdin, name string, args ...string) (string, error) {
	res, err := r.Capture(ctx, timeout, stdin, name, args...)
	if err != nil {
		return "", err
	}
	if res.TimedOut {
		return res.Stdout, fmt.Errorf("%s timed out after %s", res.Cmd, timeout)
	}
	if res.ExitCode != 0 {
		return res.Stdout, &ExitError{Code: res.ExitCode, Stderr: strings.TrimSpace(res.Stderr), Cmd: res.Cmd}
	}
	return res.Stdout, nil
}

// Capture executes a command and returns the full Result regardless of exit
// code. The error is non-nil only when the process could not be started.
// On timeout, partial output is preserved and Result.TimedOut is set.
func (r *Runner) Capture(ctx context.Context, timeout time.Duration, stdin, name string, args ...string) (Result, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = r.Dir
	cmd.Env = r.environ()
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}

	// Run each subprocess in its own process group so that a timeout kill
	// takes down the whole tree, not just the direct child.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = 5 * time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	res := Result{Cmd: name + " " + strings.Join(args, " ")}
	err := cmd.Run()
	res.Stdout = stdout.String()
	res.Stderr = stderr.String()

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		res.TimedOut = true
		res.ExitCode = -1
		return res, nil
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		return res, fmt.Errorf("running %s: %w", name, err)
	}

	return res, nil
}

func (r *Runner) environ() []string {
	if len(r.Env) == 0 {
		return nil // inherit parent
	}
	return append(os.Environ(), r.Env...)
}
