package hostfuncs

import (
	"context"
	"log/slog"
	"sort"

	"github.com/reglet-dev/exthost/domain/entities"
	domainerrors "github.com/reglet-dev/exthost/domain/errors"
	"github.com/reglet-dev/exthost/domain/ports"
	"github.com/reglet-dev/exthost/wireformat"
)

// ProcessBundle returns a bundle with the process host functions:
// process_exec. Every call is gated by the instance's process:exec capability.
func ProcessBundle(runner ports.CommandRunner, opts ...ExecOption) HostFuncBundle {
	cfg := defaultExecConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if runner == nil {
		runner = NewExecRunner(opts...)
	}
	return &staticBundle{
		handlers: map[string]ByteHandler{
			FuncProcessExec: NewJSONHandler(processExec(cfg, runner)),
		},
	}
}

func processExec(cfg execConfig, runner ports.CommandRunner) HostFunc[wireformat.ProcessExecRequest, *wireformat.ProcessOutput] {
	return func(ctx context.Context, req wireformat.ProcessExecRequest) (*wireformat.ProcessOutput, error) {
		inst, err := requireInstance(ctx)
		if err != nil {
			return nil, err
		}
		if req.Command == "" {
			return nil, NewValidationError("command is required").Err()
		}

		if err := inst.Granter().Check(entities.ProcessExecRequest{Command: req.Command, Args: req.Args}); err != nil {
			return nil, err
		}

		if kind := ClassifyExecution(req.Command, req.Args); kind != ExecutionBinary {
			slog.WarnContext(ctx, "hostfuncs: granted process_exec runs "+string(kind),
				"extension", inst.ExtensionID(),
				"command", req.Command)
		}

		env := SanitizeEnv(ctx, envList(req.Env), inst.ExtensionID(), cfg.envGetter)

		res, err := runner.Run(ctx, ports.CommandRequest{
			Command: req.Command,
			Args:    req.Args,
			Dir:     inst.WorkDir(),
			Env:     env,
			Timeout: req.TimeoutMs,
		})
		if err != nil {
			return nil, &domainerrors.ExecError{Command: req.Command, Err: err}
		}

		out := &wireformat.ProcessOutput{
			Stdout:          res.Stdout,
			Stderr:          res.Stderr,
			StdoutTruncated: res.StdoutTruncated,
			StderrTruncated: res.StderrTruncated,
		}
		// A process killed on timeout has no exit status.
		if !res.IsTimeout {
			status := res.ExitCode
			out.Status = &status
		}
		return out, nil
	}
}

func envList(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+env[k])
	}
	return out
}
