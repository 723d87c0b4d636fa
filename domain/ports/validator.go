package ports

import "github.com/reglet-dev/exthost/domain/entities"

// ManifestValidator validates a parsed manifest.
type ManifestValidator interface {
	Validate(manifest *entities.ExtensionManifest) (*entities.ValidationResult, error)
}
