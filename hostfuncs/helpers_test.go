package hostfuncs

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/reglet-dev/exthost/domain/entities"
	domainerrors "github.com/reglet-dev/exthost/domain/errors"
	"github.com/reglet-dev/exthost/domain/policy"
	"github.com/reglet-dev/exthost/domain/ports"
	"github.com/reglet-dev/exthost/wireformat"
	"github.com/stretchr/testify/require"
)

type fakeInstance struct {
	granter   ports.CapabilityGranter
	resources map[uint32]any
	id        string
	workDir   string
}

func (f *fakeInstance) ExtensionID() string              { return f.id }
func (f *fakeInstance) WorkDir() string                  { return f.workDir }
func (f *fakeInstance) Granter() ports.CapabilityGranter { return f.granter }

func (f *fakeInstance) Resource(handle uint32) (any, error) {
	v, ok := f.resources[handle]
	if !ok {
		return nil, fmt.Errorf("%w: %d", domainerrors.ErrInvalidHandle, handle)
	}
	return v, nil
}

// newInstance builds an instance whose manifest declares caps and whose
// host grants everything.
func newInstance(t *testing.T, caps ...entities.ExtensionCapability) *fakeInstance {
	t.Helper()
	manifest := &entities.ExtensionManifest{ID: "test-ext", Capabilities: caps}
	return &fakeInstance{
		id:        "test-ext",
		workDir:   t.TempDir(),
		granter:   policy.NewGranter(manifest, entities.DefaultGrantedCapabilities()),
		resources: map[uint32]any{},
	}
}

func instanceContext(inst Instance) context.Context {
	return WithInstance(context.Background(), inst)
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

// decodeOk asserts an ok envelope and unmarshals its value into out.
func decodeOk(t *testing.T, resp []byte, out any) {
	t.Helper()
	env, err := wireformat.Decode(resp)
	require.NoError(t, err, "response: %s", resp)
	require.Nil(t, env.Err, "unexpected err envelope: %s", resp)
	if out != nil {
		require.NoError(t, json.Unmarshal(env.Ok, out))
	}
}

// decodeErr asserts an err envelope and returns its detail.
func decodeErr(t *testing.T, resp []byte) *entities.ErrorDetail {
	t.Helper()
	env, err := wireformat.Decode(resp)
	require.NoError(t, err, "response: %s", resp)
	require.NotNil(t, env.Err, "expected err envelope, got: %s", resp)
	return env.Err
}

// status returns the numeric status carried in an error detail.
func status(d *entities.ErrorDetail) int {
	switch v := d.Details["status"].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}

type fakeWorktree struct {
	files map[string]string
	bins  map[string]string
	env   map[string]string
	root  string
	id    uint64
}

func (w *fakeWorktree) ID() uint64       { return w.id }
func (w *fakeWorktree) RootPath() string { return w.root }

func (w *fakeWorktree) ReadTextFile(_ context.Context, path string) (string, error) {
	text, ok := w.files[path]
	if !ok {
		return "", fmt.Errorf("no such file: %s", path)
	}
	return text, nil
}

func (w *fakeWorktree) Which(_ context.Context, name string) (string, bool) {
	p, ok := w.bins[name]
	return p, ok
}

func (w *fakeWorktree) ShellEnv(context.Context) map[string]string { return w.env }

type fakeProject struct {
	ids []uint64
}

func (p *fakeProject) WorktreeIDs() []uint64 { return p.ids }

type fakeKeyValueStore struct {
	data map[string]string
}

func (s *fakeKeyValueStore) Insert(_ context.Context, key, value string) error {
	s.data[key] = value
	return nil
}
