package ports

import "github.com/reglet-dev/exthost/domain/entities"

// Policy decides whether a single capability rule covers an operation.
type Policy interface {
	Matches(rule entities.ExtensionCapability, op entities.Operation) bool
}

// CapabilityGranter gates privileged operations for one extension instance.
type CapabilityGranter interface {
	Check(op entities.Operation) error
}
