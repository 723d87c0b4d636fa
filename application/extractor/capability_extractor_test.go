package extractor_test

import (
	"errors"
	"testing"

	"github.com/reglet-dev/exthost/application/extractor"
	"github.com/reglet-dev/exthost/domain/entities"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPrompter struct {
	interactive bool
	approve     entities.GrantedCapabilitySet
	err         error
	seen        []entities.CapabilityRequest
}

func (p *stubPrompter) IsInteractive() bool { return p.interactive }

func (p *stubPrompter) PromptForCapability(entities.CapabilityRequest) (bool, bool, error) {
	return false, false, nil
}

func (p *stubPrompter) PromptForCapabilities(reqs []entities.CapabilityRequest) (entities.GrantedCapabilitySet, error) {
	p.seen = reqs
	return p.approve, p.err
}

func (p *stubPrompter) FormatNonInteractiveError(missing []entities.CapabilityRequest) error {
	return errors.New("non-interactive")
}

func manifestDeclaring(caps ...entities.ExtensionCapability) *entities.ExtensionManifest {
	return &entities.ExtensionManifest{ID: "rust", Name: "Rust", Version: "0.1.0", Capabilities: caps}
}

func TestCapabilityExtractor_Missing(t *testing.T) {
	declared := []entities.ExtensionCapability{
		entities.ProcessExec("cargo", "build", "**"),
		entities.DownloadFile("github.com", "rust-lang", "**"),
		entities.NpmInstallPackage("typescript"),
	}

	tests := []struct {
		name    string
		granted entities.GrantedCapabilitySet
		want    []string
	}{
		{
			name:    "nothing granted",
			granted: entities.GrantedCapabilitySet{},
			want:    []string{entities.CapabilityProcessExec, entities.CapabilityDownloadFile, entities.CapabilityNpmInstallPackage},
		},
		{
			name:    "default grants cover everything",
			granted: entities.DefaultGrantedCapabilities(),
		},
		{
			name:    "identical rule",
			granted: entities.NewGrantedCapabilitySet(entities.ProcessExec("cargo", "build", "**")),
			want:    []string{entities.CapabilityDownloadFile, entities.CapabilityNpmInstallPackage},
		},
		{
			name: "broader patterns",
			granted: entities.NewGrantedCapabilitySet(
				entities.DownloadFile("github.com", "**"),
				entities.NpmInstallPackage("*"),
			),
			want: []string{entities.CapabilityProcessExec},
		},
		{
			name:    "narrower grant does not cover a wildcard declaration",
			granted: entities.NewGrantedCapabilitySet(entities.ProcessExec("cargo", "build", "--release")),
			want:    []string{entities.CapabilityProcessExec, entities.CapabilityDownloadFile, entities.CapabilityNpmInstallPackage},
		},
	}

	ex := extractor.NewCapabilityExtractor()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			missing := ex.Missing(manifestDeclaring(declared...), tt.granted)

			var kinds []string
			for _, req := range missing {
				assert.Equal(t, "rust", req.Extension)
				assert.NotEmpty(t, req.Description)
				kinds = append(kinds, req.Capability.Kind)
			}
			assert.Equal(t, tt.want, kinds)
		})
	}
}

func TestCapabilityExtractor_MissingRatesRisk(t *testing.T) {
	ex := extractor.NewCapabilityExtractor()
	missing := ex.Missing(manifestDeclaring(entities.ProcessExec("bash", "-c", "**")), entities.GrantedCapabilitySet{})
	require.Len(t, missing, 1)
	assert.Equal(t, entities.RiskLevelHigh, missing[0].RiskLevel)
}

func TestCapabilityExtractor_NilManifest(t *testing.T) {
	assert.Empty(t, extractor.NewCapabilityExtractor().Missing(nil, entities.GrantedCapabilitySet{}))
}

func TestCapabilityExtractor_Review(t *testing.T) {
	manifest := manifestDeclaring(entities.NpmInstallPackage("typescript"))
	ex := extractor.NewCapabilityExtractor()

	t.Run("covered manifest skips the prompter", func(t *testing.T) {
		p := &stubPrompter{interactive: true}
		approved, err := ex.Review(manifest, entities.DefaultGrantedCapabilities(), p)
		require.NoError(t, err)
		assert.True(t, approved.IsEmpty())
		assert.Nil(t, p.seen)
	})

	t.Run("interactive approval", func(t *testing.T) {
		p := &stubPrompter{
			interactive: true,
			approve:     entities.NewGrantedCapabilitySet(entities.NpmInstallPackage("typescript")),
		}
		approved, err := ex.Review(manifest, entities.GrantedCapabilitySet{}, p)
		require.NoError(t, err)
		assert.True(t, approved.Contains(entities.NpmInstallPackage("typescript")))
		assert.Len(t, p.seen, 1)
	})

	t.Run("non-interactive fails", func(t *testing.T) {
		_, err := ex.Review(manifest, entities.GrantedCapabilitySet{}, &stubPrompter{})
		assert.EqualError(t, err, "non-interactive")
	})

	t.Run("prompter error is wrapped", func(t *testing.T) {
		p := &stubPrompter{interactive: true, err: errors.New("eof")}
		_, err := ex.Review(manifest, entities.GrantedCapabilitySet{}, p)
		assert.ErrorContains(t, err, "failed to review capabilities for rust: eof")
	})

	t.Run("missing prompter", func(t *testing.T) {
		_, err := ex.Review(manifest, entities.GrantedCapabilitySet{}, nil)
		assert.ErrorContains(t, err, "no prompter is configured")
	})
}
