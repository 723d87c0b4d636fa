// Package node provides the shared Node.js and npm service extensions reach
// through host functions. npm runs through a ports.CommandRunner.
package node

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/reglet-dev/exthost/domain/ports"
)

// runtimeConfig holds configuration for the Runtime.
type runtimeConfig struct {
	nodePath string
	npmPath  string
	timeout  time.Duration
	env      []string
}

func defaultRuntimeConfig() runtimeConfig {
	return runtimeConfig{
		timeout: 5 * time.Minute,
	}
}

// RuntimeOption configures a Runtime.
type RuntimeOption func(*runtimeConfig)

// WithNodePath pins the node binary instead of searching PATH.
func WithNodePath(path string) RuntimeOption {
	return func(c *runtimeConfig) {
		c.nodePath = path
	}
}

// WithNpmPath pins the npm binary instead of searching PATH.
func WithNpmPath(path string) RuntimeOption {
	return func(c *runtimeConfig) {
		c.npmPath = path
	}
}

// WithTimeout bounds each npm invocation.
func WithTimeout(d time.Duration) RuntimeOption {
	return func(c *runtimeConfig) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithEnv sets extra environment for npm, e.g. a registry override.
func WithEnv(env ...string) RuntimeOption {
	return func(c *runtimeConfig) {
		c.env = append(c.env, env...)
	}
}

// Runtime implements ports.NodeRuntime.
type Runtime struct {
	runner ports.CommandRunner
	config runtimeConfig
}

var _ ports.NodeRuntime = (*Runtime)(nil)

// NewRuntime creates a Runtime that runs npm through runner.
func NewRuntime(runner ports.CommandRunner, opts ...RuntimeOption) *Runtime {
	cfg := defaultRuntimeConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Runtime{runner: runner, config: cfg}
}

// BinaryPath returns the node binary.
func (r *Runtime) BinaryPath(context.Context) (string, error) {
	return resolve(r.config.nodePath, "node")
}

// NpmPackageLatestVersion asks the registry for the latest published version.
func (r *Runtime) NpmPackageLatestVersion(ctx context.Context, name string) (string, error) {
	if err := validPackageName(name); err != nil {
		return "", err
	}
	out, err := r.npm(ctx, "", "view", name, "version", "--json")
	if err != nil {
		return "", err
	}

	var version string
	if err := json.Unmarshal([]byte(out), &version); err != nil {
		// Packages with several matching versions print a list.
		var versions []string
		if listErr := json.Unmarshal([]byte(out), &versions); listErr != nil || len(versions) == 0 {
			return "", fmt.Errorf("npm view %s: unexpected output %q", name, strings.TrimSpace(out))
		}
		version = versions[len(versions)-1]
	}
	return version, nil
}

// NpmPackageInstalledVersion reads the version installed under dir, if any.
func (r *Runtime) NpmPackageInstalledVersion(_ context.Context, dir, name string) (string, bool, error) {
	if err := validPackageName(name); err != nil {
		return "", false, err
	}

	data, err := os.ReadFile(filepath.Join(dir, "node_modules", filepath.FromSlash(name), "package.json"))
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read installed %s: %w", name, err)
	}

	var pkg struct {
		Version string `json:"version"`
	}
	if err := json.Unmarshal(data, &pkg); err != nil {
		return "", false, fmt.Errorf("parse installed %s: %w", name, err)
	}
	if pkg.Version == "" {
		return "", false, nil
	}
	return pkg.Version, true, nil
}

// NpmInstallPackages installs exact versions into dir.
func (r *Runtime) NpmInstallPackages(ctx context.Context, dir string, packages map[string]string) error {
	if len(packages) == 0 {
		return nil
	}

	names := make([]string, 0, len(packages))
	for name := range packages {
		if err := validPackageName(name); err != nil {
			return err
		}
		names = append(names, name)
	}
	sort.Strings(names)

	args := []string{
		"install",
		"--save-exact",
		"--no-audit",
		"--no-fund",
		"--fetch-retry-mintimeout", "2000",
		"--fetch-retry-maxtimeout", "5000",
		"--fetch-timeout", "5000",
	}
	for _, name := range names {
		version := packages[name]
		if strings.HasPrefix(version, "-") || strings.ContainsAny(version, " \t\n") {
			return fmt.Errorf("invalid version %q for %s", version, name)
		}
		args = append(args, name+"@"+version)
	}

	_, err := r.npm(ctx, dir, args...)
	return err
}

func (r *Runtime) npm(ctx context.Context, dir string, args ...string) (string, error) {
	npm, err := resolve(r.config.npmPath, "npm")
	if err != nil {
		return "", err
	}

	res, err := r.runner.Run(ctx, ports.CommandRequest{
		Command: npm,
		Args:    args,
		Dir:     dir,
		Env:     r.config.env,
		Timeout: int(r.config.timeout / time.Millisecond),
	})
	if err != nil {
		return "", fmt.Errorf("npm %s: %w", args[0], err)
	}
	if res.IsTimeout {
		return "", fmt.Errorf("npm %s: timed out after %s", args[0], r.config.timeout)
	}
	if res.ExitCode != 0 {
		return "", fmt.Errorf("npm %s: exit code %d: %s", args[0], res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	return res.Stdout, nil
}

func resolve(configured, name string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%s not found: %w", name, err)
	}
	return path, nil
}

// validPackageName rejects names that could be read as npm flags or escape
// node_modules.
func validPackageName(name string) error {
	if name == "" || strings.HasPrefix(name, "-") || strings.HasPrefix(name, ".") ||
		strings.ContainsAny(name, " \t\n\\") || !filepath.IsLocal(filepath.FromSlash(name)) {
		return fmt.Errorf("invalid npm package name %q", name)
	}
	for _, seg := range strings.Split(name, "/") {
		if seg == ".." || seg == "." {
			return fmt.Errorf("invalid npm package name %q", name)
		}
	}
	return nil
}
