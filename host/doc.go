// Package host loads sandboxed Wasm extensions and dispatches calls into them.
//
// An Engine owns the wazero runtime, the epoch clock that interrupts
// runaway guests, and a weighted compilation cache shared by every host
// built on it. A WasmHost checks an extension binary's interface version,
// instantiates it with its own capability granter and resource table, and
// returns a WasmExtension.
//
// Each WasmExtension serializes its calls through a mailbox drained by a
// single goroutine, so a guest never sees concurrent calls. An extension
// that traps or exceeds its epoch deadline is torn down and reports
// ErrExtensionUnavailable from then on.
//
// # Basic Usage
//
//	engine, err := host.NewEngine(ctx)
//	h, err := host.NewWasmHost(ctx, host.WithEngine(engine), host.WithGrantStore(store))
//	ext, err := h.LoadExtension(ctx, wasm, manifest)
//	cmd, err := ext.LanguageServerCommand(ctx, "rust-analyzer", "Rust", worktree)
package host
