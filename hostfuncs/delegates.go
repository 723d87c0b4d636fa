package hostfuncs

import (
	"context"
	"fmt"
	"sort"

	domainerrors "github.com/reglet-dev/exthost/domain/errors"
	"github.com/reglet-dev/exthost/domain/ports"
	"github.com/reglet-dev/exthost/wireformat"
)

// DelegateBundle returns the host functions that read delegates passed into
// a call by handle: worktree_id, worktree_root_path, worktree_read_text_file,
// worktree_which, worktree_shell_env, project_worktree_ids, key_value_store_insert.
func DelegateBundle() HostFuncBundle {
	return &staticBundle{
		handlers: map[string]ByteHandler{
			FuncWorktreeID:          NewJSONHandler(worktreeID),
			FuncWorktreeRootPath:    NewJSONHandler(worktreeRootPath),
			FuncWorktreeReadText:    NewJSONHandler(worktreeReadTextFile),
			FuncWorktreeWhich:       NewJSONHandler(worktreeWhich),
			FuncWorktreeShellEnv:    NewJSONHandler(worktreeShellEnv),
			FuncProjectWorktreeIDs:  NewJSONHandler(projectWorktreeIDs),
			FuncKeyValueStoreInsert: NewJSONHandler(keyValueStoreInsert),
		},
	}
}

// resource resolves a guest-supplied handle to a delegate of type T.
// Unknown handles and handles of another type are both ErrInvalidHandle.
func resource[T any](ctx context.Context, handle uint32) (T, error) {
	var zero T
	inst, err := requireInstance(ctx)
	if err != nil {
		return zero, err
	}
	obj, err := inst.Resource(handle)
	if err != nil {
		return zero, err
	}
	v, ok := obj.(T)
	if !ok {
		return zero, fmt.Errorf("%w: handle %d holds %T", domainerrors.ErrInvalidHandle, handle, obj)
	}
	return v, nil
}

func worktreeID(ctx context.Context, req wireformat.HandleRequest) (uint64, error) {
	wt, err := resource[ports.WorktreeDelegate](ctx, req.Handle)
	if err != nil {
		return 0, err
	}
	return wt.ID(), nil
}

func worktreeRootPath(ctx context.Context, req wireformat.HandleRequest) (string, error) {
	wt, err := resource[ports.WorktreeDelegate](ctx, req.Handle)
	if err != nil {
		return "", err
	}
	return wt.RootPath(), nil
}

func worktreeReadTextFile(ctx context.Context, req wireformat.ReadTextFileRequest) (string, error) {
	wt, err := resource[ports.WorktreeDelegate](ctx, req.Handle)
	if err != nil {
		return "", err
	}
	if req.Path == "" {
		return "", NewValidationError("path is required").Err()
	}
	return wt.ReadTextFile(ctx, req.Path)
}

func worktreeWhich(ctx context.Context, req wireformat.WhichRequest) (*string, error) {
	wt, err := resource[ports.WorktreeDelegate](ctx, req.Handle)
	if err != nil {
		return nil, err
	}
	path, ok := wt.Which(ctx, req.BinaryName)
	if !ok {
		return nil, nil
	}
	return &path, nil
}

func worktreeShellEnv(ctx context.Context, req wireformat.HandleRequest) ([]wireformat.EnvPair, error) {
	wt, err := resource[ports.WorktreeDelegate](ctx, req.Handle)
	if err != nil {
		return nil, err
	}
	env := wt.ShellEnv(ctx)
	pairs := make([]wireformat.EnvPair, 0, len(env))
	for k, v := range env {
		pairs = append(pairs, wireformat.EnvPair{k, v})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i][0] < pairs[j][0] })
	return pairs, nil
}

func projectWorktreeIDs(ctx context.Context, req wireformat.HandleRequest) ([]uint64, error) {
	project, err := resource[ports.ProjectDelegate](ctx, req.Handle)
	if err != nil {
		return nil, err
	}
	ids := project.WorktreeIDs()
	if ids == nil {
		ids = []uint64{}
	}
	return ids, nil
}

func keyValueStoreInsert(ctx context.Context, req wireformat.KeyValueInsertRequest) (any, error) {
	kv, err := resource[ports.KeyValueStoreDelegate](ctx, req.Handle)
	if err != nil {
		return nil, err
	}
	if err := kv.Insert(ctx, req.Key, req.Value); err != nil {
		return nil, err
	}
	return nil, nil
}
