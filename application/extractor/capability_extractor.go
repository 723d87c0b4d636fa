// Package extractor works out which declared extension capabilities still
// need a grant before the extension can use them.
package extractor

import (
	"fmt"

	"github.com/reglet-dev/exthost/domain/entities"
	"github.com/reglet-dev/exthost/domain/policy"
	"github.com/reglet-dev/exthost/domain/ports"
)

// CapabilityExtractor compares a manifest's declared capabilities against a
// granted set.
type CapabilityExtractor struct {
	policy   *policy.Policy
	assessor *entities.RiskAssessor
}

// CapabilityExtractorOption configures the CapabilityExtractor.
type CapabilityExtractorOption func(*CapabilityExtractor)

// WithPolicy sets the matcher used to decide whether a grant covers a declaration.
func WithPolicy(p *policy.Policy) CapabilityExtractorOption {
	return func(e *CapabilityExtractor) {
		if p != nil {
			e.policy = p
		}
	}
}

// WithRiskAssessor sets the assessor used to rate missing capabilities.
func WithRiskAssessor(a *entities.RiskAssessor) CapabilityExtractorOption {
	return func(e *CapabilityExtractor) {
		if a != nil {
			e.assessor = a
		}
	}
}

// NewCapabilityExtractor creates a new CapabilityExtractor.
func NewCapabilityExtractor(opts ...CapabilityExtractorOption) *CapabilityExtractor {
	e := &CapabilityExtractor{
		policy:   policy.NewPolicy(),
		assessor: entities.NewRiskAssessor(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Missing returns a request for every declared capability that no granted
// rule covers. A declaration is covered when an identical rule is granted or
// when a granted pattern matches the declaration read as a literal operation.
func (e *CapabilityExtractor) Missing(manifest *entities.ExtensionManifest, granted entities.GrantedCapabilitySet) []entities.CapabilityRequest {
	if manifest == nil {
		return nil
	}

	var missing []entities.CapabilityRequest
	for _, declared := range manifest.Capabilities {
		if granted.Contains(declared) {
			continue
		}
		if op := asOperation(declared); op != nil && e.policy.MatchesAny(granted.OfKind(declared.Kind), op) {
			continue
		}
		missing = append(missing, e.assessor.Request(manifest.ID, declared))
	}
	return missing
}

// Review asks the prompter to approve missing capabilities and returns the
// approved set. Nothing is prompted when every declaration is already covered.
func (e *CapabilityExtractor) Review(manifest *entities.ExtensionManifest, granted entities.GrantedCapabilitySet, prompter ports.Prompter) (entities.GrantedCapabilitySet, error) {
	missing := e.Missing(manifest, granted)
	if len(missing) == 0 {
		return entities.GrantedCapabilitySet{}, nil
	}
	if prompter == nil {
		return entities.GrantedCapabilitySet{}, fmt.Errorf("extension %s needs %d ungranted capabilities and no prompter is configured", manifest.ID, len(missing))
	}
	if !prompter.IsInteractive() {
		return entities.GrantedCapabilitySet{}, prompter.FormatNonInteractiveError(missing)
	}

	approved, err := prompter.PromptForCapabilities(missing)
	if err != nil {
		return entities.GrantedCapabilitySet{}, fmt.Errorf("failed to review capabilities for %s: %w", manifest.ID, err)
	}
	return approved, nil
}

func asOperation(c entities.ExtensionCapability) entities.Operation {
	switch c.Kind {
	case entities.CapabilityProcessExec:
		return entities.ProcessExecRequest{Command: c.Command, Args: c.Args}
	case entities.CapabilityDownloadFile:
		return entities.DownloadFileRequest{Host: c.Host, Path: c.Path}
	case entities.CapabilityNpmInstallPackage:
		return entities.NpmInstallPackageRequest{Package: c.Package}
	default:
		return nil
	}
}
