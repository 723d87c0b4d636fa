package ports

import "github.com/reglet-dev/exthost/domain/entities"

// DenialHandler is called when a capability check denies an operation.
// Implementations can log, collect metrics, or take other actions.
type DenialHandler interface {
	// OnDenial is called when an operation is denied.
	// reason: human-readable denial reason
	OnDenial(extensionID string, op entities.Operation, reason string)
}
