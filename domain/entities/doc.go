// Package entities provides core domain entities for the extension host.
// These are the manifest, capability, and call-surface types shared by the
// host runtime, the host functions, and the persistence adapters.
package entities
