package hostfuncs

import (
	"maps"
	"slices"

	"github.com/reglet-dev/exthost/domain/ports"
)

// Host import names. Guests import them from the "zed" module.
const (
	FuncWorktreeID          = "worktree_id"
	FuncWorktreeRootPath    = "worktree_root_path"
	FuncWorktreeReadText    = "worktree_read_text_file"
	FuncWorktreeWhich       = "worktree_which"
	FuncWorktreeShellEnv    = "worktree_shell_env"
	FuncProjectWorktreeIDs  = "project_worktree_ids"
	FuncKeyValueStoreInsert = "key_value_store_insert"
	FuncProcessExec         = "process_exec"
	FuncDownloadFile        = "download_file"
	FuncMakeFileExecutable  = "make_file_executable"
	FuncNodeBinaryPath      = "node_binary_path"
	FuncNpmLatestVersion    = "npm_package_latest_version"
	FuncNpmInstalledVersion = "npm_package_installed_version"
	FuncNpmInstallPackage   = "npm_install_package"
	FuncGetSettings         = "get_settings"
)

// ImportNames lists every packed request/response host import, sorted.
// The runtime links exactly these names; which handler serves each one is
// decided per call by the registry attached to the call context.
func ImportNames() []string {
	names := []string{
		FuncWorktreeID,
		FuncWorktreeRootPath,
		FuncWorktreeReadText,
		FuncWorktreeWhich,
		FuncWorktreeShellEnv,
		FuncProjectWorktreeIDs,
		FuncKeyValueStoreInsert,
		FuncProcessExec,
		FuncDownloadFile,
		FuncMakeFileExecutable,
		FuncNodeBinaryPath,
		FuncNpmLatestVersion,
		FuncNpmInstalledVersion,
		FuncNpmInstallPackage,
		FuncGetSettings,
	}
	slices.Sort(names)
	return names
}

// HostFuncBundle is a pre-configured set of related host functions.
// Bundles allow registering multiple handlers at once.
type HostFuncBundle interface {
	// Handlers returns a map of handler names to ByteHandler functions.
	Handlers() map[string]ByteHandler
}

type staticBundle struct {
	handlers map[string]ByteHandler
}

func (b *staticBundle) Handlers() map[string]ByteHandler {
	return b.handlers
}

type compositeBundle struct {
	bundles []HostFuncBundle
}

func (b *compositeBundle) Handlers() map[string]ByteHandler {
	result := make(map[string]ByteHandler)
	for _, bundle := range b.bundles {
		maps.Copy(result, bundle.Handlers())
	}
	return result
}

// Services are the shared host services the standard bundles run against.
// A nil service leaves its bundle out, and guests calling one of its
// functions receive a NOT_FOUND error.
type Services struct {
	Commands ports.CommandRunner
	HTTP     ports.HTTPClient
	Node     ports.NodeRuntime
	Settings SettingsReader
	Exec     []ExecOption
	Download []DownloadOption
}

// StandardBundles combines the delegate bundle with every bundle whose
// service is configured.
func StandardBundles(s Services) HostFuncBundle {
	bundles := []HostFuncBundle{
		DelegateBundle(),
		ProcessBundle(s.Commands, s.Exec...),
		DownloadBundle(s.HTTP, s.Download...),
	}
	if s.Node != nil {
		bundles = append(bundles, NodeBundle(s.Node))
	}
	if s.Settings != nil {
		bundles = append(bundles, SettingsBundle(s.Settings))
	}
	return &compositeBundle{bundles: bundles}
}

// Combine merges bundles. Later bundles win on name clashes.
func Combine(bundles ...HostFuncBundle) HostFuncBundle {
	return &compositeBundle{bundles: bundles}
}

// WithBundle registers all handlers from a bundle.
func WithBundle(bundle HostFuncBundle) RegistryOption {
	return func(b *registryBuilder) {
		for name, handler := range bundle.Handlers() {
			if err := b.addHandler(name, handler); err != nil {
				b.errors = append(b.errors, err)
			}
		}
	}
}

// WithHandler registers a typed host function with automatic JSON handling.
//
// Example usage:
//
//	WithHandler("custom_func", func(ctx context.Context, req MyRequest) (MyResponse, error) {
//	    return MyResponse{Result: req.Input}, nil
//	})
func WithHandler[Req any, Resp any](name string, fn HostFunc[Req, Resp]) RegistryOption {
	return func(b *registryBuilder) {
		if err := b.addHandler(name, NewJSONHandler(fn)); err != nil {
			b.errors = append(b.errors, err)
		}
	}
}
