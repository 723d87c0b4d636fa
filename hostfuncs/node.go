package hostfuncs

import (
	"context"

	"github.com/reglet-dev/exthost/domain/entities"
	"github.com/reglet-dev/exthost/domain/ports"
	"github.com/reglet-dev/exthost/wireformat"
)

// NodeBundle returns the Node.js proxy host functions: node_binary_path,
// npm_package_latest_version, npm_package_installed_version and
// npm_install_package (gated by npm:install_package). Packages are
// installed into the extension work directory.
func NodeBundle(node ports.NodeRuntime) HostFuncBundle {
	return &staticBundle{
		handlers: map[string]ByteHandler{
			FuncNodeBinaryPath: NewJSONHandler(func(ctx context.Context, _ struct{}) (string, error) {
				return node.BinaryPath(ctx)
			}),
			FuncNpmLatestVersion: NewJSONHandler(func(ctx context.Context, req wireformat.NpmPackageRequest) (string, error) {
				if req.Package == "" {
					return "", NewValidationError("package is required").Err()
				}
				return node.NpmPackageLatestVersion(ctx, req.Package)
			}),
			FuncNpmInstalledVersion: NewJSONHandler(func(ctx context.Context, req wireformat.NpmPackageRequest) (*string, error) {
				inst, err := requireInstance(ctx)
				if err != nil {
					return nil, err
				}
				version, ok, err := node.NpmPackageInstalledVersion(ctx, inst.WorkDir(), req.Package)
				if err != nil || !ok {
					return nil, err
				}
				return &version, nil
			}),
			FuncNpmInstallPackage: NewJSONHandler(func(ctx context.Context, req wireformat.NpmPackageRequest) (any, error) {
				inst, err := requireInstance(ctx)
				if err != nil {
					return nil, err
				}
				if req.Package == "" {
					return nil, NewValidationError("package is required").Err()
				}
				if err := inst.Granter().Check(entities.NpmInstallPackageRequest{Package: req.Package}); err != nil {
					return nil, err
				}
				version := req.Version
				if version == "" {
					version = "latest"
				}
				return nil, node.NpmInstallPackages(ctx, inst.WorkDir(), map[string]string{req.Package: version})
			}),
		},
	}
}
