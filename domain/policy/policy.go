package policy

import (
	"path/filepath"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/reglet-dev/exthost/domain/entities"
	"github.com/reglet-dev/exthost/domain/ports"
)

// wildcardAll matches any value of a field, including ones that contain "/".
const wildcardAll = "*"

// wildcardRest, as the last argument pattern, matches any remaining arguments.
const wildcardRest = "**"

// policyConfig holds configuration for the Policy engine.
type policyConfig struct {
	cleanCommands bool // Clean command paths before matching
}

func defaultPolicyConfig() policyConfig {
	return policyConfig{
		cleanCommands: true, // Secure default
	}
}

// PolicyOption configures the Policy.
type PolicyOption func(*policyConfig)

// WithCommandCleaning enables/disables filepath.Clean on exec commands.
// Default is true (secure). Disable only for testing.
func WithCommandCleaning(enabled bool) PolicyOption {
	return func(c *policyConfig) {
		c.cleanCommands = enabled
	}
}

// Policy matches capability rules against operations using doublestar patterns.
// It is stateless apart from a cache of pattern validity.
type Policy struct {
	config   policyConfig
	patterns sync.Map // key: pattern string, value: bool (valid)
}

// NewPolicy creates a new Policy.
func NewPolicy(opts ...PolicyOption) *Policy {
	cfg := defaultPolicyConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Policy{config: cfg}
}

var _ ports.Policy = (*Policy)(nil)

// Matches reports whether rule covers op. Rules of a different kind never match.
func (p *Policy) Matches(rule entities.ExtensionCapability, op entities.Operation) bool {
	if op == nil || rule.Kind != op.Kind() {
		return false
	}

	switch req := op.(type) {
	case entities.ProcessExecRequest:
		return p.matchExec(rule, req)
	case *entities.ProcessExecRequest:
		return req != nil && p.matchExec(rule, *req)
	case entities.DownloadFileRequest:
		return p.matchDownload(rule, req)
	case *entities.DownloadFileRequest:
		return req != nil && p.matchDownload(rule, *req)
	case entities.NpmInstallPackageRequest:
		return p.match(rule.Package, req.Package)
	case *entities.NpmInstallPackageRequest:
		return req != nil && p.match(rule.Package, req.Package)
	default:
		return false
	}
}

// MatchesAny reports whether any of rules covers op.
func (p *Policy) MatchesAny(rules []entities.ExtensionCapability, op entities.Operation) bool {
	for _, rule := range rules {
		if p.Matches(rule, op) {
			return true
		}
	}
	return false
}

func (p *Policy) matchExec(rule entities.ExtensionCapability, req entities.ProcessExecRequest) bool {
	cmd := req.Command
	if p.config.cleanCommands && cmd != "" {
		cmd = filepath.Clean(cmd)
	}
	if !p.match(rule.Command, cmd) {
		return false
	}
	return p.matchArgs(rule.Args, req.Args)
}

func (p *Policy) matchArgs(patterns, args []string) bool {
	for i, pattern := range patterns {
		if pattern == wildcardRest && i == len(patterns)-1 {
			return true
		}
		if i >= len(args) {
			return false
		}
		if !p.match(pattern, args[i]) {
			return false
		}
	}
	return len(args) == len(patterns)
}

func (p *Policy) matchDownload(rule entities.ExtensionCapability, req entities.DownloadFileRequest) bool {
	if !p.match(rule.Host, strings.ToLower(req.Host)) {
		return false
	}
	if len(rule.Path) == 0 {
		return len(req.Path) == 0
	}
	return p.match(strings.Join(rule.Path, "/"), strings.Join(req.Path, "/"))
}

// match applies a single pattern. "*" is a full wildcard; anything else is a
// doublestar pattern, so "*" inside a pattern does not cross "/".
func (p *Policy) match(pattern, value string) bool {
	if pattern == wildcardAll || pattern == wildcardRest {
		return true
	}
	if pattern == value {
		return true
	}
	if !p.validPattern(pattern) {
		return false
	}
	matched, _ := doublestar.Match(pattern, value)
	return matched
}

func (p *Policy) validPattern(pattern string) bool {
	if v, ok := p.patterns.Load(pattern); ok {
		return v.(bool)
	}
	valid := doublestar.ValidatePattern(pattern)
	p.patterns.Store(pattern, valid)
	return valid
}
