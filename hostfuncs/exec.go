package hostfuncs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"time"

	"github.com/reglet-dev/exthost/domain/ports"
)

// ExecOption is a functional option for configuring execution behavior.
type ExecOption func(*execConfig)

type execConfig struct {
	envGetter     CapabilityGetter
	timeout       time.Duration
	maxTimeout    time.Duration
	maxOutputSize int
}

func defaultExecConfig() execConfig {
	return execConfig{
		timeout:       30 * time.Second,
		maxTimeout:    10 * time.Minute,
		maxOutputSize: DefaultMaxOutputSize,
		envGetter:     func(string, string) bool { return true },
	}
}

// WithExecTimeout sets the default execution timeout.
func WithExecTimeout(d time.Duration) ExecOption {
	return func(c *execConfig) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithMaxExecTimeout caps the timeout a guest may request.
func WithMaxExecTimeout(d time.Duration) ExecOption {
	return func(c *execConfig) {
		if d > 0 {
			c.maxTimeout = d
		}
	}
}

// WithMaxOutputSize limits captured stdout and stderr, each.
func WithMaxOutputSize(n int) ExecOption {
	return func(c *execConfig) {
		if n > 0 {
			c.maxOutputSize = n
		}
	}
}

// WithEnvCapabilities decides which capability-gated environment variables
// (PATH, HOME, NODE_OPTIONS, ...) an extension may pass to a process.
// By default they are all allowed once process:exec itself is granted.
func WithEnvCapabilities(getter CapabilityGetter) ExecOption {
	return func(c *execConfig) {
		c.envGetter = getter
	}
}

// ExecRunner runs commands on the host with bounded output capture.
// It is the default ports.CommandRunner behind process_exec and the npm proxy.
type ExecRunner struct {
	config execConfig
}

var _ ports.CommandRunner = (*ExecRunner)(nil)

// NewExecRunner creates an ExecRunner.
func NewExecRunner(opts ...ExecOption) *ExecRunner {
	cfg := defaultExecConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &ExecRunner{config: cfg}
}

// Run executes a command. A non-zero exit status is a result, not an error;
// an error means the process could not be started.
func (r *ExecRunner) Run(ctx context.Context, req ports.CommandRequest) (*ports.CommandResult, error) {
	if req.Command == "" {
		return nil, errors.New("command is required")
	}

	timeout := r.config.timeout
	if req.Timeout > 0 {
		timeout = min(time.Duration(req.Timeout)*time.Millisecond, r.config.maxTimeout)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	//nolint:gosec // G204: Command execution is the purpose of this function
	cmd := exec.CommandContext(ctx, req.Command, req.Args...)
	cmd.Dir = req.Dir
	if len(req.Env) > 0 {
		cmd.Env = req.Env
	}

	stdout := NewBoundedBuffer(r.config.maxOutputSize)
	stderr := NewBoundedBuffer(r.config.maxOutputSize)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	start := time.Now()
	err := cmd.Run()

	result := &ports.CommandResult{
		Stdout:          stdout.String(),
		Stderr:          stderr.String(),
		StdoutTruncated: stdout.Truncated,
		StderrTruncated: stderr.Truncated,
		DurationMs:      time.Since(start).Milliseconds(),
	}
	if stdout.Truncated || stderr.Truncated {
		slog.DebugContext(ctx, "hostfuncs: process output truncated",
			"command", req.Command,
			"stdout_dropped", stdout.Dropped,
			"stderr_dropped", stderr.Dropped)
	}

	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			result.IsTimeout = true
			result.ExitCode = -1
			return result, nil
		}

		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}

		return nil, fmt.Errorf("failed to run %s: %w", req.Command, err)
	}

	return result, nil
}
