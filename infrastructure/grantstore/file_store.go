// Package grantstore persists the host-wide granted capability set as YAML.
package grantstore

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/reglet-dev/exthost/domain/entities"
	"github.com/reglet-dev/exthost/domain/ports"
	"gopkg.in/yaml.v3"
)

// fileStoreConfig holds configuration for the FileStore.
type fileStoreConfig struct {
	path     string      // Path to the grants file
	dirPerm  os.FileMode // Permission for created directories
	filePerm os.FileMode // Permission for the grants file
}

func defaultFileStoreConfig() fileStoreConfig {
	return fileStoreConfig{
		path:     DefaultPath(),
		dirPerm:  0o755, // User config directory
		filePerm: 0o600, // User-only read/write (secure default)
	}
}

// DefaultPath is the grants file used when no path is configured.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = filepath.Join(os.Getenv("HOME"), ".config")
	}
	return filepath.Join(dir, "exthost", "grants.yaml")
}

// FileStoreOption configures a FileStore instance.
type FileStoreOption func(*fileStoreConfig)

// WithPath sets the path to the grants file.
func WithPath(path string) FileStoreOption {
	return func(c *fileStoreConfig) {
		if path != "" {
			c.path = path
		}
	}
}

// WithFilePermissions sets the file permissions for the grants file.
// Default is 0o600 (user-only). Use with caution.
func WithFilePermissions(perm os.FileMode) FileStoreOption {
	return func(c *fileStoreConfig) {
		c.filePerm = perm
	}
}

// WithDirPermissions sets the directory permissions for the grants directory.
// Default is 0o755.
func WithDirPermissions(perm os.FileMode) FileStoreOption {
	return func(c *fileStoreConfig) {
		c.dirPerm = perm
	}
}

// FileStore provides file-based persistence for capability grants.
type FileStore struct {
	config fileStoreConfig
}

var _ ports.GrantStore = (*FileStore)(nil)

// NewFileStore creates a new FileStore with the given options.
func NewFileStore(opts ...FileStoreOption) *FileStore {
	cfg := defaultFileStoreConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &FileStore{config: cfg}
}

// Load retrieves all granted capabilities. A missing or empty file yields an
// empty set. Unknown keys are rejected so a typo never widens or drops a grant
// silently.
func (s *FileStore) Load() (entities.GrantedCapabilitySet, error) {
	data, err := os.ReadFile(s.config.path)
	if errors.Is(err, fs.ErrNotExist) {
		return entities.GrantedCapabilitySet{}, nil
	}
	if err != nil {
		return entities.GrantedCapabilitySet{}, fmt.Errorf("failed to read grant store: %w", err)
	}

	var grants entities.GrantedCapabilitySet
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&grants); err != nil && !errors.Is(err, io.EOF) {
		return entities.GrantedCapabilitySet{}, fmt.Errorf("failed to parse grant store %s: %w", s.config.path, err)
	}
	return grants, nil
}

// Save persists the granted capabilities. The file is replaced atomically so a
// concurrent watcher never reads a partial write.
func (s *FileStore) Save(grants entities.GrantedCapabilitySet) error {
	if grants.Capabilities == nil {
		grants.Capabilities = []entities.ExtensionCapability{}
	}
	data, err := yaml.Marshal(grants)
	if err != nil {
		return fmt.Errorf("failed to marshal grants: %w", err)
	}

	dir := filepath.Dir(s.config.path)
	if err := os.MkdirAll(dir, s.config.dirPerm); err != nil {
		return fmt.Errorf("failed to create grant store directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".grants-*.yaml")
	if err != nil {
		return fmt.Errorf("failed to write grant store: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write grant store: %w", err)
	}
	if err := tmp.Chmod(s.config.filePerm); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write grant store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write grant store: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.config.path); err != nil {
		return fmt.Errorf("failed to write grant store: %w", err)
	}
	return nil
}

// Grant merges caps into the persisted set and saves it.
func (s *FileStore) Grant(caps entities.GrantedCapabilitySet) (entities.GrantedCapabilitySet, error) {
	current, err := s.Load()
	if err != nil {
		return entities.GrantedCapabilitySet{}, err
	}
	current.Merge(caps)
	if err := s.Save(current); err != nil {
		return entities.GrantedCapabilitySet{}, err
	}
	return current, nil
}

// Revoke removes c from the persisted set and reports whether it was present.
func (s *FileStore) Revoke(c entities.ExtensionCapability) (bool, error) {
	current, err := s.Load()
	if err != nil {
		return false, err
	}
	if !current.Remove(c) {
		return false, nil
	}
	return true, s.Save(current)
}

// ConfigPath returns the path to the backing store.
func (s *FileStore) ConfigPath() string {
	return s.config.path
}
