// Package parser decodes extension manifests from TOML, JSON, or YAML.
package parser

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/reglet-dev/exthost/domain/entities"
	"github.com/reglet-dev/exthost/domain/ports"
	"gopkg.in/yaml.v3"
)

// ErrUnknownFormat is returned for a manifest format the parser cannot read.
var ErrUnknownFormat = errors.New("unknown manifest format")

// ManifestParser implements ports.ManifestParser for every supported format.
// Keys the host does not model (grammars, themes, icon themes) are ignored.
type ManifestParser struct{}

var _ ports.ManifestParser = (*ManifestParser)(nil)

// NewManifestParser creates a new ManifestParser.
func NewManifestParser() *ManifestParser {
	return &ManifestParser{}
}

// Parse unmarshals data in the given format into an ExtensionManifest.
func (p *ManifestParser) Parse(data []byte, format ports.ManifestFormat) (*entities.ExtensionManifest, error) {
	var manifest entities.ExtensionManifest

	switch format {
	case ports.ManifestTOML:
		if _, err := toml.Decode(string(data), &manifest); err != nil {
			return nil, fmt.Errorf("parse toml manifest: %w", err)
		}
	case ports.ManifestJSON:
		if err := json.Unmarshal(data, &manifest); err != nil {
			return nil, fmt.Errorf("parse json manifest: %w", err)
		}
	case ports.ManifestYAML:
		if err := yaml.NewDecoder(bytes.NewReader(data)).Decode(&manifest); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parse yaml manifest: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	return &manifest, nil
}

// FormatFromPath picks the manifest format from a file extension.
func FormatFromPath(path string) (ports.ManifestFormat, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return ports.ManifestTOML, nil
	case ".json":
		return ports.ManifestJSON, nil
	case ".yaml", ".yml":
		return ports.ManifestYAML, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownFormat, path)
	}
}
