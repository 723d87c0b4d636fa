// Package ports defines the interfaces the extension host depends on.
// Delegates, persistence, and shared services are supplied by the surrounding
// application; infrastructure adapters implement the rest.
package ports
