// Package prompter asks a terminal user to approve extension capabilities.
package prompter

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/reglet-dev/exthost/domain/entities"
	"github.com/reglet-dev/exthost/domain/ports"
)

// CliPrompter implements ports.Prompter for CLI environments.
type CliPrompter struct {
	in     io.Reader
	reader *bufio.Reader
	out    io.Writer
}

var _ ports.Prompter = (*CliPrompter)(nil)

// NewCliPrompter creates a new CliPrompter.
func NewCliPrompter(in io.Reader, out io.Writer) *CliPrompter {
	p := &CliPrompter{in: in, out: out}
	if in != nil {
		p.reader = bufio.NewReader(in)
	}
	if out == nil {
		p.out = io.Discard
	}
	return p
}

// IsInteractive checks if the input is a terminal.
func (p *CliPrompter) IsInteractive() bool {
	if f, ok := p.in.(*os.File); ok {
		stat, err := f.Stat()
		if err != nil {
			return false
		}
		return (stat.Mode() & os.ModeCharDevice) != 0
	}
	return false
}

// PromptForCapability asks the user to grant a single capability.
func (p *CliPrompter) PromptForCapability(req entities.CapabilityRequest) (granted bool, always bool, err error) {
	_, _ = fmt.Fprintf(p.out, "Extension %s requests: %s\n", req.Extension, req.Description)
	_, _ = fmt.Fprintf(p.out, "Rule: %s\n", req.Capability)
	_, _ = fmt.Fprintf(p.out, "Risk: %s\n", req.RiskLevel)
	_, _ = fmt.Fprintf(p.out, "Allow? [y/n/always]: ")

	answer, err := p.readAnswer()
	if err != nil {
		return false, false, err
	}
	switch answer {
	case "y", "yes":
		return true, false, nil
	case "a", "always":
		return true, true, nil
	default:
		return false, false, nil
	}
}

// PromptForCapabilities prompts for multiple capabilities at once.
func (p *CliPrompter) PromptForCapabilities(reqs []entities.CapabilityRequest) (entities.GrantedCapabilitySet, error) {
	if len(reqs) == 0 {
		return entities.GrantedCapabilitySet{}, nil
	}

	_, _ = fmt.Fprintf(p.out, "Extension %s requests the following capabilities:\n", reqs[0].Extension)
	for _, req := range reqs {
		_, _ = fmt.Fprintf(p.out, "- [%s] %s\n", req.RiskLevel, req.Description)
	}
	_, _ = fmt.Fprintf(p.out, "Grant all? [y/n]: ")

	answer, err := p.readAnswer()
	if err != nil && !errors.Is(err, io.EOF) {
		return entities.GrantedCapabilitySet{}, err
	}

	// Default deny
	gs := entities.GrantedCapabilitySet{}
	if answer == "y" || answer == "yes" {
		for _, req := range reqs {
			if !gs.Contains(req.Capability) {
				gs.Capabilities = append(gs.Capabilities, req.Capability)
			}
		}
	}
	return gs, nil
}

// FormatNonInteractiveError lists the capabilities that still need a grant.
func (p *CliPrompter) FormatNonInteractiveError(missing []entities.CapabilityRequest) error {
	var b strings.Builder
	b.WriteString("extension requires ungranted capabilities in non-interactive mode:")
	for _, req := range missing {
		_, _ = fmt.Fprintf(&b, "\n  - %s (%s, risk %s)", req.Capability, req.Extension, req.RiskLevel)
	}
	b.WriteString("\nreview them with `exthost grants review` or add them to the grants file")
	return errors.New(b.String())
}

func (p *CliPrompter) readAnswer() (string, error) {
	if p.reader == nil {
		return "", io.EOF
	}
	line, err := p.reader.ReadString('\n')
	if err != nil && (!errors.Is(err, io.EOF) || line == "") {
		return "", err
	}
	return strings.ToLower(strings.TrimSpace(line)), nil
}
