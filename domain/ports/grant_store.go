package ports

import "github.com/reglet-dev/exthost/domain/entities"

// GrantStore provides persistence for granted capabilities.
type GrantStore interface {
	// Load retrieves all granted capabilities.
	// Returns an empty set (not error) if no grants exist.
	Load() (entities.GrantedCapabilitySet, error)

	// Save persists the granted capabilities.
	Save(grants entities.GrantedCapabilitySet) error

	// ConfigPath returns the path to the backing store (for user messaging).
	ConfigPath() string
}
