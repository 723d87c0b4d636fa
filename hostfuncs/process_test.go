package hostfuncs

import (
	"context"
	"errors"
	"testing"

	"github.com/reglet-dev/exthost/domain/entities"
	"github.com/reglet-dev/exthost/domain/ports"
	"github.com/reglet-dev/exthost/wireformat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	err    error
	result *ports.CommandResult
	got    ports.CommandRequest
	calls  int
}

func (r *fakeRunner) Run(_ context.Context, req ports.CommandRequest) (*ports.CommandResult, error) {
	r.calls++
	r.got = req
	if r.err != nil {
		return nil, r.err
	}
	return r.result, nil
}

func TestProcessExec(t *testing.T) {
	runner := &fakeRunner{result: &ports.CommandResult{Stdout: "1.2.0\n", ExitCode: 0}}
	reg, err := NewRegistry(WithBundle(ProcessBundle(runner)))
	require.NoError(t, err)

	inst := newInstance(t, entities.ProcessExec("gleam", "--version"))
	resp, err := reg.Invoke(instanceContext(inst), FuncProcessExec, mustJSON(t, wireformat.ProcessExecRequest{
		Command:   "gleam",
		Args:      []string{"--version"},
		Env:       map[string]string{"LD_PRELOAD": "/tmp/evil.so", "TERM": "xterm"},
		TimeoutMs: 500,
	}))
	require.NoError(t, err)

	var out wireformat.ProcessOutput
	decodeOk(t, resp, &out)
	require.NotNil(t, out.Status)
	assert.Equal(t, 0, *out.Status)
	assert.Equal(t, "1.2.0\n", out.Stdout)

	assert.Equal(t, inst.WorkDir(), runner.got.Dir)
	assert.Equal(t, []string{"TERM=xterm"}, runner.got.Env)
	assert.Equal(t, 500, runner.got.Timeout)
}

func TestProcessExec_Outcomes(t *testing.T) {
	tests := []struct {
		name       string
		caps       []entities.ExtensionCapability
		req        wireformat.ProcessExecRequest
		runner     *fakeRunner
		wantCode   string
		wantStatus *int
		wantRun    bool
	}{
		{
			name:     "not declared is denied",
			req:      wireformat.ProcessExecRequest{Command: "rm", Args: []string{"-rf", "/"}},
			runner:   &fakeRunner{},
			wantCode: "CAPABILITY_DENIED",
		},
		{
			name:     "declared with other args is denied",
			caps:     []entities.ExtensionCapability{entities.ProcessExec("gleam", "--version")},
			req:      wireformat.ProcessExecRequest{Command: "gleam", Args: []string{"build"}},
			runner:   &fakeRunner{},
			wantCode: "CAPABILITY_DENIED",
		},
		{
			name:     "empty command",
			caps:     []entities.ExtensionCapability{entities.ProcessExec("*", "**")},
			runner:   &fakeRunner{},
			wantCode: "VALIDATION_ERROR",
		},
		{
			name:     "start failure is an exec error",
			caps:     []entities.ExtensionCapability{entities.ProcessExec("*", "**")},
			req:      wireformat.ProcessExecRequest{Command: "missing-tool"},
			runner:   &fakeRunner{err: errors.New("executable file not found")},
			wantCode: "exit_0",
			wantRun:  true,
		},
		{
			name:       "non-zero exit is returned as status",
			caps:       []entities.ExtensionCapability{entities.ProcessExec("*", "**")},
			req:        wireformat.ProcessExecRequest{Command: "false"},
			runner:     &fakeRunner{result: &ports.CommandResult{ExitCode: 1}},
			wantStatus: ptr(1),
			wantRun:    true,
		},
		{
			name:    "timeout has no status",
			caps:    []entities.ExtensionCapability{entities.ProcessExec("sleep", "**")},
			req:     wireformat.ProcessExecRequest{Command: "sleep", Args: []string{"60"}},
			runner:  &fakeRunner{result: &ports.CommandResult{ExitCode: -1, IsTimeout: true}},
			wantRun: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg, err := NewRegistry(WithBundle(ProcessBundle(tt.runner)))
			require.NoError(t, err)

			resp, err := reg.Invoke(instanceContext(newInstance(t, tt.caps...)), FuncProcessExec, mustJSON(t, tt.req))
			require.NoError(t, err, "denials and failures reach the guest as envelopes")
			assert.Equal(t, tt.wantRun, tt.runner.calls > 0)

			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, decodeErr(t, resp).Code)
				return
			}
			var out wireformat.ProcessOutput
			decodeOk(t, resp, &out)
			assert.Equal(t, tt.wantStatus, out.Status)
		})
	}
}

func TestEnvList(t *testing.T) {
	assert.Nil(t, envList(nil))
	assert.Equal(t, []string{"A=1", "B=2"}, envList(map[string]string{"B": "2", "A": "1"}))
}

func ptr[T any](v T) *T { return &v }
