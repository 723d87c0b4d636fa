package grantstore_test

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/reglet-dev/exthost/domain/entities"
	"github.com/reglet-dev/exthost/infrastructure/grantstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_LoadMissingFile(t *testing.T) {
	s := grantstore.NewFileStore(grantstore.WithPath(filepath.Join(t.TempDir(), "grants.yaml")))

	grants, err := s.Load()
	require.NoError(t, err)
	assert.True(t, grants.IsEmpty())
}

func TestFileStore_LoadEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grants.yaml")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	grants, err := grantstore.NewFileStore(grantstore.WithPath(path)).Load()
	require.NoError(t, err)
	assert.True(t, grants.IsEmpty())
}

func TestFileStore_SaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "grants.yaml")
	s := grantstore.NewFileStore(grantstore.WithPath(path))

	want := entities.NewGrantedCapabilitySet(
		entities.ProcessExec("cargo", "build", "**"),
		entities.DownloadFile("github.com", "rust-lang", "**"),
		entities.NpmInstallPackage("typescript"),
	)
	require.NoError(t, s.Save(want))

	got, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, path, s.ConfigPath())

	if runtime.GOOS != "windows" {
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files are cleaned up")
}

func TestFileStore_LoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grants.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
granted_extension_capabilities:
  - kind: process:exec
    command: git
    args: ["status", "**"]
  - kind: npm:install_package
    package: "@types/*"
`), 0o600))

	grants, err := grantstore.NewFileStore(grantstore.WithPath(path)).Load()
	require.NoError(t, err)
	assert.True(t, grants.Contains(entities.ProcessExec("git", "status", "**")))
	assert.True(t, grants.Contains(entities.NpmInstallPackage("@types/*")))
}

func TestFileStore_RejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grants.yaml")
	require.NoError(t, os.WriteFile(path, []byte("granted_capabilities: []\n"), 0o600))

	_, err := grantstore.NewFileStore(grantstore.WithPath(path)).Load()
	assert.ErrorContains(t, err, "failed to parse grant store")
}

func TestFileStore_GrantAndRevoke(t *testing.T) {
	s := grantstore.NewFileStore(grantstore.WithPath(filepath.Join(t.TempDir(), "grants.yaml")))
	npm := entities.NpmInstallPackage("typescript")

	merged, err := s.Grant(entities.NewGrantedCapabilitySet(npm, npm))
	require.NoError(t, err)
	assert.Len(t, merged.Capabilities, 1)

	removed, err := s.Revoke(npm)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = s.Revoke(npm)
	require.NoError(t, err)
	assert.False(t, removed)

	grants, err := s.Load()
	require.NoError(t, err)
	assert.True(t, grants.IsEmpty())
}

func TestDefaultPath(t *testing.T) {
	assert.Equal(t, "grants.yaml", filepath.Base(grantstore.DefaultPath()))
	assert.Equal(t, "exthost", filepath.Base(filepath.Dir(grantstore.DefaultPath())))
}
