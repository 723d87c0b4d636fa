package parser_test

import (
	"testing"

	"github.com/reglet-dev/exthost/domain/entities"
	"github.com/reglet-dev/exthost/domain/ports"
	"github.com/reglet-dev/exthost/infrastructure/parser"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tomlManifest = `
id = "rust"
name = "Rust"
version = "0.3.1"
schema_version = 1
authors = ["Jane Doe <jane@example.com>"]
repository = "https://github.com/example/rust-extension"
grammars = { rust = { repository = "https://github.com/tree-sitter/tree-sitter-rust" } }

[lib]
kind = "Rust"
version = "0.4.0"

[language_servers.rust-analyzer]
name = "rust-analyzer"
languages = ["Rust"]

[slash_commands.cargo-doc]
description = "Open cargo docs"
requires_argument = true

[[capabilities]]
kind = "process:exec"
command = "cargo"
args = ["**"]

[[capabilities]]
kind = "download_file"
host = "github.com"
path = ["rust-lang", "**"]
`

const jsonManifest = `{
  "id": "rust",
  "name": "Rust",
  "version": "0.3.1",
  "schema_version": 1,
  "authors": ["Jane Doe <jane@example.com>"],
  "repository": "https://github.com/example/rust-extension",
  "lib": {"kind": "Rust", "version": "0.4.0"},
  "language_servers": {"rust-analyzer": {"name": "rust-analyzer", "languages": ["Rust"]}},
  "slash_commands": {"cargo-doc": {"description": "Open cargo docs", "requires_argument": true}},
  "capabilities": [
    {"kind": "process:exec", "command": "cargo", "args": ["**"]},
    {"kind": "download_file", "host": "github.com", "path": ["rust-lang", "**"]}
  ]
}`

const yamlManifest = `
id: rust
name: Rust
version: 0.3.1
schema_version: 1
authors: ["Jane Doe <jane@example.com>"]
repository: https://github.com/example/rust-extension
lib:
  kind: Rust
  version: 0.4.0
language_servers:
  rust-analyzer:
    name: rust-analyzer
    languages: [Rust]
slash_commands:
  cargo-doc:
    description: Open cargo docs
    requires_argument: true
capabilities:
  - kind: process:exec
    command: cargo
    args: ["**"]
  - kind: download_file
    host: github.com
    path: [rust-lang, "**"]
`

func TestManifestParser_Formats(t *testing.T) {
	tests := []struct {
		format ports.ManifestFormat
		data   string
	}{
		{ports.ManifestTOML, tomlManifest},
		{ports.ManifestJSON, jsonManifest},
		{ports.ManifestYAML, yamlManifest},
	}

	p := parser.NewManifestParser()
	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			m, err := p.Parse([]byte(tt.data), tt.format)
			require.NoError(t, err)

			assert.Equal(t, "rust", m.ID)
			assert.Equal(t, "Rust", m.Name)
			assert.Equal(t, "0.3.1", m.Version)
			assert.Equal(t, 1, m.SchemaVersion)
			assert.Equal(t, []string{"Jane Doe <jane@example.com>"}, m.Authors)
			assert.Equal(t, entities.LibManifestEntry{Kind: "Rust", Version: "0.4.0"}, m.Lib)
			assert.Equal(t, []string{"Rust"}, m.LanguageServers["rust-analyzer"].AllLanguages())
			assert.True(t, m.SlashCommands["cargo-doc"].RequiresArgument)
			assert.True(t, m.DeclaresCapability(entities.ProcessExec("cargo", "**")))
			assert.True(t, m.DeclaresCapability(entities.DownloadFile("github.com", "rust-lang", "**")))
		})
	}
}

func TestManifestParser_Errors(t *testing.T) {
	p := parser.NewManifestParser()

	_, err := p.Parse([]byte("id = "), ports.ManifestTOML)
	assert.ErrorContains(t, err, "parse toml manifest")

	_, err = p.Parse([]byte("{"), ports.ManifestJSON)
	assert.ErrorContains(t, err, "parse json manifest")

	_, err = p.Parse([]byte("id: [unterminated"), ports.ManifestYAML)
	assert.ErrorContains(t, err, "parse yaml manifest")

	_, err = p.Parse([]byte("{}"), "ini")
	assert.ErrorIs(t, err, parser.ErrUnknownFormat)
}

func TestManifestParser_EmptyYAML(t *testing.T) {
	m, err := parser.NewManifestParser().Parse(nil, ports.ManifestYAML)
	require.NoError(t, err)
	assert.Empty(t, m.ID)
}

func TestFormatFromPath(t *testing.T) {
	tests := []struct {
		path string
		want ports.ManifestFormat
	}{
		{"extension.toml", ports.ManifestTOML},
		{"dir/extension.JSON", ports.ManifestJSON},
		{"extension.yaml", ports.ManifestYAML},
		{"extension.yml", ports.ManifestYAML},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, err := parser.FormatFromPath(tt.path)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := parser.FormatFromPath("extension.ini")
	assert.ErrorIs(t, err, parser.ErrUnknownFormat)
}
