package host

import (
	"errors"
	"fmt"
	"math"
	"sync"

	domainerrors "github.com/reglet-dev/exthost/domain/errors"
	"github.com/reglet-dev/exthost/domain/ports"
)

// errTableExhausted is returned once every handle has been minted.
var errTableExhausted = errors.New("resource table exhausted")

// ResourceTable maps opaque handles to host objects passed into a guest
// call. Handles start at 1, increase monotonically and are never reused;
// handle 0 is never valid.
type ResourceTable struct {
	entries map[uint32]any
	next    uint32
	mu      sync.Mutex
}

// NewResourceTable creates an empty table.
func NewResourceTable() *ResourceTable {
	return &ResourceTable{entries: make(map[uint32]any), next: 1}
}

// Push stores obj and returns its handle.
func (t *ResourceTable) Push(obj any) (uint32, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.next == 0 {
		return 0, errTableExhausted
	}
	h := t.next
	t.entries[h] = obj
	if h == math.MaxUint32 {
		t.next = 0
	} else {
		t.next++
	}
	return h, nil
}

// Get resolves a handle.
func (t *ResourceTable) Get(handle uint32) (any, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	obj, ok := t.entries[handle]
	if !ok {
		return nil, fmt.Errorf("%w: %d", domainerrors.ErrInvalidHandle, handle)
	}
	return obj, nil
}

// Remove drops a handle. Unknown handles are ignored.
func (t *ResourceTable) Remove(handle uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, handle)
}

// Clear drops every entry. Handle numbering continues where it left off.
func (t *ResourceTable) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	clear(t.entries)
}

// Len returns the number of live handles.
func (t *ResourceTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// GetWorktree resolves a worktree handle.
func (t *ResourceTable) GetWorktree(handle uint32) (ports.WorktreeDelegate, error) {
	return getTyped[ports.WorktreeDelegate](t, handle)
}

// GetProject resolves a project handle.
func (t *ResourceTable) GetProject(handle uint32) (ports.ProjectDelegate, error) {
	return getTyped[ports.ProjectDelegate](t, handle)
}

// GetKeyValueStore resolves a key-value store handle.
func (t *ResourceTable) GetKeyValueStore(handle uint32) (ports.KeyValueStoreDelegate, error) {
	return getTyped[ports.KeyValueStoreDelegate](t, handle)
}

func getTyped[T any](t *ResourceTable, handle uint32) (T, error) {
	var zero T
	obj, err := t.Get(handle)
	if err != nil {
		return zero, err
	}
	v, ok := obj.(T)
	if !ok {
		return zero, fmt.Errorf("%w: handle %d holds %T", domainerrors.ErrInvalidHandle, handle, obj)
	}
	return v, nil
}
