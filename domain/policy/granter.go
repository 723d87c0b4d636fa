package policy

import (
	"github.com/reglet-dev/exthost/domain/entities"
	"github.com/reglet-dev/exthost/domain/errors"
	"github.com/reglet-dev/exthost/domain/ports"
)

// Denial reasons reported to handlers and carried in CapabilityError.
const (
	ReasonNotDeclared = "not declared in extension manifest"
	ReasonNotGranted  = "not granted by settings"
)

type granterConfig struct {
	policy        ports.Policy
	denialHandler ports.DenialHandler
}

func defaultGranterConfig() granterConfig {
	return granterConfig{
		policy:        NewPolicy(),
		denialHandler: &NopDenialHandler{},
	}
}

// GranterOption configures a Granter.
type GranterOption func(*granterConfig)

// WithPolicy sets the rule matcher.
func WithPolicy(p ports.Policy) GranterOption {
	return func(c *granterConfig) {
		if p != nil {
			c.policy = p
		}
	}
}

// WithDenialHandler sets the denial handler.
func WithDenialHandler(h ports.DenialHandler) GranterOption {
	return func(c *granterConfig) {
		if h != nil {
			c.denialHandler = h
		}
	}
}

// Granter gates privileged operations for one extension instance. An
// operation is allowed only when a declared rule and a granted rule both
// cover it. The decision depends on nothing else, so repeated checks agree.
type Granter struct {
	config      granterConfig
	extensionID string
	declared    []entities.ExtensionCapability
	granted     []entities.ExtensionCapability
}

var _ ports.CapabilityGranter = (*Granter)(nil)

// NewGranter pairs the manifest's declared capabilities with the host-wide
// granted set. The granted set is copied, so a later reload does not affect
// this instance.
func NewGranter(manifest *entities.ExtensionManifest, granted entities.GrantedCapabilitySet, opts ...GranterOption) *Granter {
	cfg := defaultGranterConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	g := &Granter{
		config:  cfg,
		granted: granted.Clone().Capabilities,
	}
	if manifest != nil {
		g.extensionID = manifest.ID
		g.declared = entities.NewGrantedCapabilitySet(manifest.Capabilities...).Clone().Capabilities
	}
	return g
}

// Check returns nil if op is allowed, or a *errors.CapabilityError.
func (g *Granter) Check(op entities.Operation) error {
	if op == nil {
		return &errors.CapabilityError{Extension: g.extensionID, Reason: "empty operation"}
	}
	if !g.covered(g.declared, op) {
		return g.deny(op, ReasonNotDeclared)
	}
	if !g.covered(g.granted, op) {
		return g.deny(op, ReasonNotGranted)
	}
	return nil
}

// GrantExec checks a process:exec operation.
func (g *Granter) GrantExec(command string, args []string) error {
	return g.Check(entities.ProcessExecRequest{Command: command, Args: args})
}

// GrantDownloadFile checks a download_file operation for a URL.
func (g *Granter) GrantDownloadFile(rawURL string) error {
	req, err := entities.NewDownloadFileRequest(rawURL)
	if err != nil {
		return &errors.CapabilityError{
			Extension: g.extensionID,
			Kind:      entities.CapabilityDownloadFile,
			Target:    rawURL,
			Reason:    err.Error(),
		}
	}
	return g.Check(req)
}

// GrantNpmInstallPackage checks an npm:install_package operation.
func (g *Granter) GrantNpmInstallPackage(pkg string) error {
	return g.Check(entities.NpmInstallPackageRequest{Package: pkg})
}

// ExtensionID returns the extension this granter belongs to.
func (g *Granter) ExtensionID() string {
	return g.extensionID
}

func (g *Granter) covered(rules []entities.ExtensionCapability, op entities.Operation) bool {
	for _, rule := range rules {
		if g.config.policy.Matches(rule, op) {
			return true
		}
	}
	return false
}

func (g *Granter) deny(op entities.Operation, reason string) error {
	g.config.denialHandler.OnDenial(g.extensionID, op, reason)
	return &errors.CapabilityError{
		Extension: g.extensionID,
		Kind:      op.Kind(),
		Target:    op.String(),
		Reason:    reason,
	}
}
