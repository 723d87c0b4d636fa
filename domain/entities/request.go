package entities

import (
	"fmt"
	"net/url"
	"strings"
)

// Operation is a concrete privileged request made by guest code at runtime.
// It is checked against capability rules of the same Kind.
type Operation interface {
	Kind() string
	String() string
}

// ProcessExecRequest represents a runtime request to spawn a process.
type ProcessExecRequest struct {
	Command string
	Args    []string
}

func (r ProcessExecRequest) Kind() string { return CapabilityProcessExec }

func (r ProcessExecRequest) String() string {
	return strings.TrimSpace(r.Command + " " + strings.Join(r.Args, " "))
}

// DownloadFileRequest represents a runtime request to fetch a file over the network.
type DownloadFileRequest struct {
	Host string
	Path []string
}

func (r DownloadFileRequest) Kind() string { return CapabilityDownloadFile }

func (r DownloadFileRequest) String() string {
	return r.Host + "/" + strings.Join(r.Path, "/")
}

// NewDownloadFileRequest splits a URL into host and path segments.
func NewDownloadFileRequest(rawURL string) (DownloadFileRequest, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return DownloadFileRequest{}, fmt.Errorf("invalid download url %q: %w", rawURL, err)
	}
	if u.Host == "" {
		return DownloadFileRequest{}, fmt.Errorf("invalid download url %q: missing host", rawURL)
	}

	var segments []string
	for _, s := range strings.Split(strings.Trim(u.Path, "/"), "/") {
		if s != "" {
			segments = append(segments, s)
		}
	}
	return DownloadFileRequest{Host: u.Hostname(), Path: segments}, nil
}

// NpmInstallPackageRequest represents a runtime request to install an npm package.
type NpmInstallPackageRequest struct {
	Package string
}

func (r NpmInstallPackageRequest) Kind() string { return CapabilityNpmInstallPackage }

func (r NpmInstallPackageRequest) String() string { return r.Package }
