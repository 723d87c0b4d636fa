package entities

// ExtensionManifest is the static identity of an extension. It is immutable
// after load and shared by pointer across every call for that extension.
type ExtensionManifest struct {
	LanguageServers map[string]LanguageServerManifestEntry `json:"language_servers,omitempty" yaml:"language_servers,omitempty" toml:"language_servers,omitempty" validate:"dive"`
	ContextServers  map[string]ContextServerManifestEntry  `json:"context_servers,omitempty" yaml:"context_servers,omitempty" toml:"context_servers,omitempty"`
	SlashCommands   map[string]SlashCommandManifestEntry   `json:"slash_commands,omitempty" yaml:"slash_commands,omitempty" toml:"slash_commands,omitempty" validate:"dive"`
	DebugAdapters   map[string]DebugAdapterManifestEntry   `json:"debug_adapters,omitempty" yaml:"debug_adapters,omitempty" toml:"debug_adapters,omitempty"`
	Lib             LibManifestEntry                       `json:"lib,omitempty" yaml:"lib,omitempty" toml:"lib,omitempty"`

	// Capabilities are the privileged operations the extension declares it needs.
	Capabilities []ExtensionCapability `json:"capabilities,omitempty" yaml:"capabilities,omitempty" toml:"capabilities,omitempty" validate:"dive"`

	Authors       []string `json:"authors,omitempty" yaml:"authors,omitempty" toml:"authors,omitempty"`
	ID            string   `json:"id" yaml:"id" toml:"id" validate:"required,max=128,extension_id" jsonschema:"pattern=^[a-z0-9][a-z0-9_-]*$"`
	Name          string   `json:"name" yaml:"name" toml:"name" validate:"required"`
	Version       string   `json:"version" yaml:"version" toml:"version" validate:"required"`
	Description   string   `json:"description,omitempty" yaml:"description,omitempty" toml:"description,omitempty"`
	Repository    string   `json:"repository,omitempty" yaml:"repository,omitempty" toml:"repository,omitempty" validate:"omitempty,url"`
	SchemaVersion int      `json:"schema_version,omitempty" yaml:"schema_version,omitempty" toml:"schema_version,omitempty" validate:"gte=0"`
}

// LibManifestEntry describes the extension's compiled library.
type LibManifestEntry struct {
	Kind    string `json:"kind,omitempty" yaml:"kind,omitempty" toml:"kind,omitempty" validate:"omitempty,oneof=Rust wasm"`
	Version string `json:"version,omitempty" yaml:"version,omitempty" toml:"version,omitempty"`
}

// LanguageServerManifestEntry declares a language server the extension can launch.
type LanguageServerManifestEntry struct {
	Name      string   `json:"name,omitempty" yaml:"name,omitempty" toml:"name,omitempty"`
	Language  string   `json:"language,omitempty" yaml:"language,omitempty" toml:"language,omitempty"`
	Languages []string `json:"languages,omitempty" yaml:"languages,omitempty" toml:"languages,omitempty"`
}

// ContextServerManifestEntry declares a context server the extension can launch.
type ContextServerManifestEntry struct{}

// SlashCommandManifestEntry declares a slash command.
type SlashCommandManifestEntry struct {
	Description      string `json:"description" yaml:"description" toml:"description" validate:"required"`
	RequiresArgument bool   `json:"requires_argument" yaml:"requires_argument" toml:"requires_argument"`
}

// DebugAdapterManifestEntry declares a debug adapter.
type DebugAdapterManifestEntry struct {
	SchemaPath string `json:"schema_path,omitempty" yaml:"schema_path,omitempty" toml:"schema_path,omitempty"`
}

// AllLanguages returns Language and Languages combined.
func (e LanguageServerManifestEntry) AllLanguages() []string {
	if e.Language == "" {
		return e.Languages
	}
	return append([]string{e.Language}, e.Languages...)
}

// DeclaresCapability reports whether an identical capability rule is declared.
func (m *ExtensionManifest) DeclaresCapability(c ExtensionCapability) bool {
	if m == nil {
		return false
	}
	for _, declared := range m.Capabilities {
		if declared.Equal(c) {
			return true
		}
	}
	return false
}
