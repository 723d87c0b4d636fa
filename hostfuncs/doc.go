// Package hostfuncs implements the host functions extensions import from
// the "zed" module. Handlers are plain Go: they take and return JSON, and
// every outcome, including a capability denial, is a result envelope the
// guest can read. Nothing here depends on a Wasm runtime; the wazero
// adapter links the names from ImportNames and forwards each call to the
// HandlerRegistry attached to the call context.
//
// Per-call state reaches a handler through the context: WithInstance
// attaches the calling extension (its work directory, capability granter and
// resource table) and WithRegistry attaches the registry of the host that
// owns it.
package hostfuncs
