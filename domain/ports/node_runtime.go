package ports

import "context"

// NodeRuntime is the shared Node.js/npm service extensions reach through host functions.
type NodeRuntime interface {
	BinaryPath(ctx context.Context) (string, error)
	NpmPackageLatestVersion(ctx context.Context, name string) (string, error)
	NpmPackageInstalledVersion(ctx context.Context, dir, name string) (string, bool, error)
	NpmInstallPackages(ctx context.Context, dir string, packages map[string]string) error
}
