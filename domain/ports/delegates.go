package ports

import "context"

// WorktreeDelegate gives an extension read access to one worktree.
// Implementations must be safe to share across goroutines.
type WorktreeDelegate interface {
	ID() uint64
	RootPath() string
	ReadTextFile(ctx context.Context, path string) (string, error)
	// Which resolves a binary name on the worktree's shell PATH.
	Which(ctx context.Context, binaryName string) (string, bool)
	ShellEnv(ctx context.Context) map[string]string
}

// ProjectDelegate exposes the project an extension runs in.
type ProjectDelegate interface {
	WorktreeIDs() []uint64
}

// KeyValueStoreDelegate is a host-owned store an extension may write to.
type KeyValueStoreDelegate interface {
	Insert(ctx context.Context, key, value string) error
}
