// Package delegates provides local-filesystem implementations of the
// worktree, project, and key-value store delegates.
package delegates

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/reglet-dev/exthost/domain/ports"
)

// maxTextFileSize bounds ReadTextFile.
const maxTextFileSize = 16 << 20

// worktreeConfig holds configuration for a LocalWorktree.
type worktreeConfig struct {
	env map[string]string
}

// WorktreeOption configures a LocalWorktree.
type WorktreeOption func(*worktreeConfig)

// WithShellEnv replaces the environment reported by ShellEnv and used by Which.
func WithShellEnv(env map[string]string) WorktreeOption {
	return func(c *worktreeConfig) {
		c.env = env
	}
}

// LocalWorktree is a worktree rooted at a local directory. Reads are
// confined to the root.
type LocalWorktree struct {
	id   uint64
	root *os.Root
	path string
	env  map[string]string
}

var _ ports.WorktreeDelegate = (*LocalWorktree)(nil)

// OpenWorktree opens dir as worktree id. Close releases the root handle.
func OpenWorktree(id uint64, dir string, opts ...WorktreeOption) (*LocalWorktree, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve worktree %s: %w", dir, err)
	}
	root, err := os.OpenRoot(abs)
	if err != nil {
		return nil, fmt.Errorf("open worktree %s: %w", abs, err)
	}

	cfg := worktreeConfig{env: environ()}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &LocalWorktree{id: id, root: root, path: abs, env: cfg.env}, nil
}

func (w *LocalWorktree) ID() uint64       { return w.id }
func (w *LocalWorktree) RootPath() string { return w.path }

// ReadTextFile reads a file relative to the worktree root.
func (w *LocalWorktree) ReadTextFile(_ context.Context, path string) (string, error) {
	f, err := w.root.Open(filepath.FromSlash(path))
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	data, err := io.ReadAll(io.LimitReader(f, maxTextFileSize+1))
	if err != nil {
		return "", err
	}
	if len(data) > maxTextFileSize {
		return "", fmt.Errorf("%s exceeds %d bytes", path, maxTextFileSize)
	}
	return string(data), nil
}

// Which searches the worktree's PATH for an executable.
func (w *LocalWorktree) Which(_ context.Context, binaryName string) (string, bool) {
	if binaryName == "" || strings.ContainsAny(binaryName, `/\`) {
		return "", false
	}

	exts := []string{""}
	if runtime.GOOS == "windows" {
		exts = append(exts, filepath.SplitList(strings.ToLower(w.env["PATHEXT"]))...)
	}
	for _, dir := range filepath.SplitList(w.env["PATH"]) {
		if dir == "" || !filepath.IsAbs(dir) {
			continue
		}
		for _, ext := range exts {
			candidate := filepath.Join(dir, binaryName+ext)
			if isExecutable(candidate) {
				return candidate, true
			}
		}
	}
	return "", false
}

// ShellEnv returns a copy of the worktree's environment.
func (w *LocalWorktree) ShellEnv(context.Context) map[string]string {
	out := make(map[string]string, len(w.env))
	for k, v := range w.env {
		out[k] = v
	}
	return out
}

// Close releases the worktree root.
func (w *LocalWorktree) Close() error {
	return w.root.Close()
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode().Perm()&0o111 != 0
}

func environ() map[string]string {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok && k != "" {
			env[k] = v
		}
	}
	return env
}

// Project is a fixed set of worktrees.
type Project struct {
	ids []uint64
}

var _ ports.ProjectDelegate = (*Project)(nil)

// NewProject creates a project over the given worktrees.
func NewProject(worktrees ...ports.WorktreeDelegate) *Project {
	p := &Project{}
	for _, w := range worktrees {
		p.ids = append(p.ids, w.ID())
	}
	return p
}

func (p *Project) WorktreeIDs() []uint64 {
	return append([]uint64(nil), p.ids...)
}

// ErrEmptyKey is returned for an insert without a key.
var ErrEmptyKey = errors.New("key is required")

// MemoryStore is an in-memory key-value store.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]string
}

var _ ports.KeyValueStoreDelegate = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]string)}
}

// Insert stores value under key, replacing any previous value.
func (s *MemoryStore) Insert(_ context.Context, key, value string) error {
	if key == "" {
		return ErrEmptyKey
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

// Get returns the value stored under key.
func (s *MemoryStore) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	return v, ok
}

// Len returns the number of keys.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
