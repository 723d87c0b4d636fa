package ports

import "github.com/reglet-dev/exthost/domain/entities"

// ManifestFormat names a manifest encoding.
type ManifestFormat string

const (
	ManifestTOML ManifestFormat = "toml"
	ManifestJSON ManifestFormat = "json"
	ManifestYAML ManifestFormat = "yaml"
)

// ManifestParser parses raw manifest bytes into an ExtensionManifest.
type ManifestParser interface {
	Parse(data []byte, format ManifestFormat) (*entities.ExtensionManifest, error)
}
