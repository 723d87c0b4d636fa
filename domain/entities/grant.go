package entities

// GrantedCapabilitySet is the host-wide list of capabilities the user or
// administrator has granted. It is loaded once per host and only replaced by
// an explicit settings reload.
type GrantedCapabilitySet struct {
	Capabilities []ExtensionCapability `json:"granted_extension_capabilities" yaml:"granted_extension_capabilities" validate:"dive"`
}

// NewGrantedCapabilitySet builds a set from the given capabilities.
func NewGrantedCapabilitySet(caps ...ExtensionCapability) GrantedCapabilitySet {
	return GrantedCapabilitySet{Capabilities: caps}
}

// DefaultGrantedCapabilities grants everything, so the manifest's declared
// capabilities become the only limit. A host with no grant store uses it.
func DefaultGrantedCapabilities() GrantedCapabilitySet {
	return NewGrantedCapabilitySet(
		ProcessExec("*", "**"),
		DownloadFile("*", "**"),
		NpmInstallPackage("*"),
	)
}

// IsEmpty returns true if nothing is granted.
func (g GrantedCapabilitySet) IsEmpty() bool {
	return len(g.Capabilities) == 0
}

// Contains reports whether an identical rule is already present.
func (g GrantedCapabilitySet) Contains(c ExtensionCapability) bool {
	for _, existing := range g.Capabilities {
		if existing.Equal(c) {
			return true
		}
	}
	return false
}

// Merge unions other into g, skipping duplicates.
func (g *GrantedCapabilitySet) Merge(other GrantedCapabilitySet) {
	for _, c := range other.Capabilities {
		if !g.Contains(c) {
			g.Capabilities = append(g.Capabilities, c.clone())
		}
	}
}

// Remove drops every rule equal to c and reports whether anything was removed.
func (g *GrantedCapabilitySet) Remove(c ExtensionCapability) bool {
	kept := g.Capabilities[:0]
	removed := false
	for _, existing := range g.Capabilities {
		if existing.Equal(c) {
			removed = true
			continue
		}
		kept = append(kept, existing)
	}
	g.Capabilities = kept
	return removed
}

// Clone returns a deep copy, so an instance's granter never observes a later reload.
func (g GrantedCapabilitySet) Clone() GrantedCapabilitySet {
	out := GrantedCapabilitySet{Capabilities: make([]ExtensionCapability, 0, len(g.Capabilities))}
	for _, c := range g.Capabilities {
		out.Capabilities = append(out.Capabilities, c.clone())
	}
	return out
}

// OfKind returns the rules with the given kind.
func (g GrantedCapabilitySet) OfKind(kind string) []ExtensionCapability {
	var out []ExtensionCapability
	for _, c := range g.Capabilities {
		if c.Kind == kind {
			out = append(out, c)
		}
	}
	return out
}

func (c ExtensionCapability) clone() ExtensionCapability {
	out := c
	if c.Args != nil {
		out.Args = append([]string(nil), c.Args...)
	}
	if c.Path != nil {
		out.Path = append([]string(nil), c.Path...)
	}
	return out
}
