package entities

import (
	"path"
	"strings"
)

// RiskLevel represents the security risk level of a capability or grant set.
type RiskLevel int

const (
	RiskLevelLow    RiskLevel = iota // Specific, narrow permissions
	RiskLevelMedium                  // Network access, package installs, specific commands
	RiskLevelHigh                    // Wildcards, shells, arbitrary execution
)

// String returns the human-readable name of the risk level.
func (r RiskLevel) String() string {
	switch r {
	case RiskLevelLow:
		return "Low"
	case RiskLevelMedium:
		return "Medium"
	case RiskLevelHigh:
		return "High"
	default:
		return "Unknown"
	}
}

var (
	// DangerousShells allow arbitrary command execution.
	DangerousShells = []string{"bash", "sh", "zsh", "fish", "dash", "cmd", "powershell", "pwsh"}

	// DangerousInterpreters run arbitrary scripts. Versioned variants such as
	// python3.12 match too.
	DangerousInterpreters = []string{
		"python", "perl", "ruby", "node", "nodejs",
		"php", "lua", "awk", "gawk", "tclsh", "deno", "bun",
	}
)

// riskAssessorConfig holds configuration for the RiskAssessor.
type riskAssessorConfig struct {
	highRiskCommands []string
}

func defaultRiskAssessorConfig() riskAssessorConfig {
	return riskAssessorConfig{}
}

// RiskAssessorOption configures a RiskAssessor instance.
type RiskAssessorOption func(*riskAssessorConfig)

// WithHighRiskCommands marks additional process:exec commands as high risk.
func WithHighRiskCommands(commands ...string) RiskAssessorOption {
	return func(c *riskAssessorConfig) {
		c.highRiskCommands = append(c.highRiskCommands, commands...)
	}
}

// RiskAssessor evaluates the security risk of capabilities.
type RiskAssessor struct {
	config riskAssessorConfig
}

// NewRiskAssessor creates a new RiskAssessor with the given options.
func NewRiskAssessor(opts ...RiskAssessorOption) *RiskAssessor {
	cfg := defaultRiskAssessorConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &RiskAssessor{config: cfg}
}

// AssessCapability rates a single capability rule.
func (a *RiskAssessor) AssessCapability(c ExtensionCapability) RiskLevel {
	switch c.Kind {
	case CapabilityProcessExec:
		if isWildcard(c.Command) || a.isDangerousCommand(c.Command) {
			return RiskLevelHigh
		}
		return RiskLevelMedium
	case CapabilityDownloadFile:
		if isWildcard(c.Host) {
			return RiskLevelHigh
		}
		if strings.ContainsAny(c.Host, "*?[{") {
			return RiskLevelMedium
		}
		return RiskLevelLow
	case CapabilityNpmInstallPackage:
		if strings.ContainsAny(c.Package, "*?[{") {
			return RiskLevelMedium
		}
		return RiskLevelLow
	default:
		return RiskLevelHigh
	}
}

// AssessGrantSet returns the highest risk of any rule in the set.
func (a *RiskAssessor) AssessGrantSet(g GrantedCapabilitySet) RiskLevel {
	level := RiskLevelLow
	for _, c := range g.Capabilities {
		level = max(level, a.AssessCapability(c))
	}
	return level
}

// Describe renders a one-line description for a capability prompt.
func (a *RiskAssessor) Describe(c ExtensionCapability) string {
	switch c.Kind {
	case CapabilityProcessExec:
		if len(c.Args) == 0 {
			return "Run " + c.Command
		}
		return "Run " + c.Command + " " + strings.Join(c.Args, " ")
	case CapabilityDownloadFile:
		if len(c.Path) == 0 {
			return "Download files from " + c.Host
		}
		return "Download files from " + c.Host + "/" + strings.Join(c.Path, "/")
	case CapabilityNpmInstallPackage:
		return "Install npm package " + c.Package
	default:
		return c.String()
	}
}

// Request builds the prompt shown for a capability the extension declares.
func (a *RiskAssessor) Request(extensionID string, c ExtensionCapability) CapabilityRequest {
	return CapabilityRequest{
		Extension:   extensionID,
		Capability:  c,
		Description: a.Describe(c),
		RiskLevel:   a.AssessCapability(c),
	}
}

func (a *RiskAssessor) isDangerousCommand(command string) bool {
	base := path.Base(strings.ReplaceAll(command, `\`, "/"))
	base = strings.TrimSuffix(strings.ToLower(base), ".exe")
	for _, c := range a.config.highRiskCommands {
		if base == c || command == c {
			return true
		}
	}
	for _, shell := range DangerousShells {
		if base == shell {
			return true
		}
	}
	for _, interp := range DangerousInterpreters {
		if base == interp || (strings.HasPrefix(base, interp) && isVersionSuffix(base[len(interp):])) {
			return true
		}
	}
	return false
}

func isVersionSuffix(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if (r < '0' || r > '9') && r != '.' && r != '-' {
			return false
		}
	}
	return true
}

func isWildcard(pattern string) bool {
	return pattern == "*" || pattern == "**"
}

// CapabilityRequest is a declared capability that still needs a grant.
type CapabilityRequest struct {
	Extension   string
	Description string
	Capability  ExtensionCapability
	RiskLevel   RiskLevel
}
