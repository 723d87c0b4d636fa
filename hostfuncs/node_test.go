package hostfuncs

import (
	"testing"

	"github.com/reglet-dev/exthost/domain/entities"
	"github.com/reglet-dev/exthost/wireformat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNodeBundle(t *testing.T) {
	node := &fakeNode{installed: map[string]string{"typescript": "5.4.0"}}
	reg, err := NewRegistry(WithBundle(NodeBundle(node)))
	require.NoError(t, err)

	inst := newInstance(t, entities.NpmInstallPackage("@types/*"))
	ctx := instanceContext(inst)

	tests := []struct {
		name     string
		fn       string
		req      any
		want     string
		wantCode string
	}{
		{name: "binary path", fn: FuncNodeBinaryPath, want: `"/usr/bin/node"`},
		{name: "latest version", fn: FuncNpmLatestVersion, req: wireformat.NpmPackageRequest{Package: "typescript"}, want: `"typescript-9.9.9"`},
		{name: "latest version needs a package", fn: FuncNpmLatestVersion, req: wireformat.NpmPackageRequest{}, wantCode: "VALIDATION_ERROR"},
		{name: "installed version", fn: FuncNpmInstalledVersion, req: wireformat.NpmPackageRequest{Package: "typescript"}, want: `"5.4.0"`},
		{name: "not installed is null", fn: FuncNpmInstalledVersion, req: wireformat.NpmPackageRequest{Package: "eslint"}, want: `null`},
		{name: "install granted package", fn: FuncNpmInstallPackage, req: wireformat.NpmPackageRequest{Package: "@types/node", Version: "20.1.0"}, want: `null`},
		{name: "install undeclared package", fn: FuncNpmInstallPackage, req: wireformat.NpmPackageRequest{Package: "left-pad"}, wantCode: "CAPABILITY_DENIED"},
		{name: "install needs a package", fn: FuncNpmInstallPackage, req: wireformat.NpmPackageRequest{}, wantCode: "VALIDATION_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var payload []byte
			if tt.req != nil {
				payload = mustJSON(t, tt.req)
			}
			resp, err := reg.Invoke(ctx, tt.fn, payload)
			require.NoError(t, err)

			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, decodeErr(t, resp).Code)
				return
			}
			env, err := wireformat.Decode(resp)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(env.Ok))
		})
	}

	assert.Equal(t, "20.1.0", node.installed["@types/node"])
	assert.NotContains(t, node.installed, "left-pad")
	assert.Equal(t, inst.WorkDir(), node.dir)
}

func TestNodeBundle_DefaultsToLatest(t *testing.T) {
	node := &fakeNode{}
	reg, err := NewRegistry(WithBundle(NodeBundle(node)))
	require.NoError(t, err)

	inst := newInstance(t, entities.NpmInstallPackage("*"))
	resp, err := reg.Invoke(instanceContext(inst), FuncNpmInstallPackage, mustJSON(t, wireformat.NpmPackageRequest{Package: "prettier"}))
	require.NoError(t, err)
	decodeOk(t, resp, nil)
	assert.Equal(t, "latest", node.installed["prettier"])
}
