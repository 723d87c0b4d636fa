package entities

import (
	"fmt"
	"strings"
)

// Capability kinds understood by the host. The set is closed per host build;
// extensions cannot introduce new kinds.
const (
	CapabilityProcessExec       = "process:exec"
	CapabilityDownloadFile      = "download_file"
	CapabilityNpmInstallPackage = "npm:install_package"
)

// CapabilityKinds lists every known capability kind.
var CapabilityKinds = []string{
	CapabilityProcessExec,
	CapabilityDownloadFile,
	CapabilityNpmInstallPackage,
}

// ExtensionCapability is one capability rule. The same shape is used for what
// an extension manifest declares and for what settings grant. Fields are
// doublestar patterns; which fields apply depends on Kind.
type ExtensionCapability struct {
	// Kind selects the privileged operation family.
	Kind string `json:"kind" yaml:"kind" toml:"kind" validate:"required,oneof=process:exec download_file npm:install_package" jsonschema:"enum=process:exec,enum=download_file,enum=npm:install_package"`

	// Command is the executable pattern for process:exec.
	Command string `json:"command,omitempty" yaml:"command,omitempty" toml:"command,omitempty" validate:"required_if=Kind process:exec"`

	// Args are per-argument patterns for process:exec. A trailing "**" matches any remaining arguments.
	Args []string `json:"args,omitempty" yaml:"args,omitempty" toml:"args,omitempty"`

	// Host is the host pattern for download_file.
	Host string `json:"host,omitempty" yaml:"host,omitempty" toml:"host,omitempty" validate:"required_if=Kind download_file"`

	// Path holds URL path segment patterns for download_file.
	Path []string `json:"path,omitempty" yaml:"path,omitempty" toml:"path,omitempty"`

	// Package is the package name pattern for npm:install_package.
	Package string `json:"package,omitempty" yaml:"package,omitempty" toml:"package,omitempty" validate:"required_if=Kind npm:install_package"`
}

// ProcessExec builds a process:exec capability.
func ProcessExec(command string, args ...string) ExtensionCapability {
	return ExtensionCapability{Kind: CapabilityProcessExec, Command: command, Args: args}
}

// DownloadFile builds a download_file capability.
func DownloadFile(host string, path ...string) ExtensionCapability {
	return ExtensionCapability{Kind: CapabilityDownloadFile, Host: host, Path: path}
}

// NpmInstallPackage builds an npm:install_package capability.
func NpmInstallPackage(pkg string) ExtensionCapability {
	return ExtensionCapability{Kind: CapabilityNpmInstallPackage, Package: pkg}
}

// Equal reports structural equality.
func (c ExtensionCapability) Equal(other ExtensionCapability) bool {
	return c.Kind == other.Kind &&
		c.Command == other.Command &&
		c.Host == other.Host &&
		c.Package == other.Package &&
		equalStrings(c.Args, other.Args) &&
		equalStrings(c.Path, other.Path)
}

// String renders the capability in a compact human-readable form.
func (c ExtensionCapability) String() string {
	switch c.Kind {
	case CapabilityProcessExec:
		if len(c.Args) == 0 {
			return fmt.Sprintf("%s %s", c.Kind, c.Command)
		}
		return fmt.Sprintf("%s %s %s", c.Kind, c.Command, strings.Join(c.Args, " "))
	case CapabilityDownloadFile:
		return fmt.Sprintf("%s %s/%s", c.Kind, c.Host, strings.Join(c.Path, "/"))
	case CapabilityNpmInstallPackage:
		return fmt.Sprintf("%s %s", c.Kind, c.Package)
	default:
		return c.Kind
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
