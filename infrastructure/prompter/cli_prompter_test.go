package prompter_test

import (
	"bytes"
	"io"
	"testing"

	"github.com/reglet-dev/exthost/domain/entities"
	"github.com/reglet-dev/exthost/infrastructure/prompter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCliPrompter_PromptForCapability(t *testing.T) {
	req := entities.CapabilityRequest{
		Extension:   "rust",
		Description: "Download files from github.com/rust-lang/**",
		Capability:  entities.DownloadFile("github.com", "rust-lang", "**"),
		RiskLevel:   entities.RiskLevelLow,
	}

	tests := []struct {
		name    string
		input   string
		granted bool
		always  bool
	}{
		{"Grant", "y\n", true, false},
		{"Grant Always", "always\n", true, true},
		{"Deny", "n\n", false, false},
		{"Unknown answer denies", "maybe\n", false, false},
		{"Answer without newline", "yes", true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := &bytes.Buffer{}
			p := prompter.NewCliPrompter(bytes.NewBufferString(tt.input), out)

			granted, always, err := p.PromptForCapability(req)
			require.NoError(t, err)
			assert.Equal(t, tt.granted, granted)
			assert.Equal(t, tt.always, always)
			assert.Contains(t, out.String(), "Extension rust requests: Download files from github.com/rust-lang/**")
			assert.Contains(t, out.String(), "Risk: Low")
		})
	}

	t.Run("EOF", func(t *testing.T) {
		p := prompter.NewCliPrompter(bytes.NewBuffer(nil), nil)
		_, _, err := p.PromptForCapability(req)
		assert.ErrorIs(t, err, io.EOF)
	})
}

func TestCliPrompter_SequentialPromptsShareInput(t *testing.T) {
	req := entities.CapabilityRequest{Extension: "rust", Capability: entities.NpmInstallPackage("typescript")}
	p := prompter.NewCliPrompter(bytes.NewBufferString("n\ny\n"), nil)

	granted, _, err := p.PromptForCapability(req)
	require.NoError(t, err)
	assert.False(t, granted)

	granted, _, err = p.PromptForCapability(req)
	require.NoError(t, err)
	assert.True(t, granted)
}

func TestCliPrompter_PromptForCapabilities(t *testing.T) {
	reqs := []entities.CapabilityRequest{
		{
			Extension:   "rust",
			Description: "Download files from github.com/**",
			Capability:  entities.DownloadFile("github.com", "**"),
			RiskLevel:   entities.RiskLevelLow,
		},
		{
			Extension:   "rust",
			Description: "Run cargo **",
			Capability:  entities.ProcessExec("cargo", "**"),
			RiskLevel:   entities.RiskLevelMedium,
		},
	}

	t.Run("Grant All", func(t *testing.T) {
		out := &bytes.Buffer{}
		p := prompter.NewCliPrompter(bytes.NewBufferString("y\n"), out)

		gs, err := p.PromptForCapabilities(reqs)
		require.NoError(t, err)
		assert.Len(t, gs.Capabilities, 2)
		assert.True(t, gs.Contains(entities.ProcessExec("cargo", "**")))
		assert.Contains(t, out.String(), "- [Medium] Run cargo **")
		assert.Contains(t, out.String(), "Grant all? [y/n]:")
	})

	t.Run("Deny All", func(t *testing.T) {
		p := prompter.NewCliPrompter(bytes.NewBufferString("n\n"), nil)

		gs, err := p.PromptForCapabilities(reqs)
		require.NoError(t, err)
		assert.True(t, gs.IsEmpty())
	})

	t.Run("EOF denies", func(t *testing.T) {
		p := prompter.NewCliPrompter(bytes.NewBuffer(nil), nil)

		gs, err := p.PromptForCapabilities(reqs)
		require.NoError(t, err)
		assert.True(t, gs.IsEmpty())
	})

	t.Run("Nothing to ask", func(t *testing.T) {
		p := prompter.NewCliPrompter(nil, nil)
		gs, err := p.PromptForCapabilities(nil)
		require.NoError(t, err)
		assert.True(t, gs.IsEmpty())
	})
}

func TestCliPrompter_IsInteractive(t *testing.T) {
	assert.False(t, prompter.NewCliPrompter(bytes.NewBufferString(""), nil).IsInteractive())
}

func TestCliPrompter_FormatNonInteractiveError(t *testing.T) {
	p := prompter.NewCliPrompter(nil, nil)
	err := p.FormatNonInteractiveError([]entities.CapabilityRequest{
		{Extension: "rust", Capability: entities.NpmInstallPackage("typescript"), RiskLevel: entities.RiskLevelLow},
	})
	assert.ErrorContains(t, err, "extension requires ungranted capabilities in non-interactive mode")
	assert.ErrorContains(t, err, "npm:install_package typescript (rust, risk Low)")
}
