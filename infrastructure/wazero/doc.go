// Package wazero links the extension host imports into a wazero runtime.
//
// The adapter bridges hostfuncs handlers and guest memory:
//
//   - Converting between packed i64 pointer+length format and byte slices
//   - Reading request data from guest memory
//   - Allocating and writing response envelopes with the guest "allocate" export
//   - Resolving the HandlerRegistry of the calling host from the call context
//
// # Basic Usage
//
//	runtime := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfig().WithCloseOnContextDone(true))
//
//	_, err := wazeroadapter.RegisterWithRuntime(ctx, runtime, hostfuncs.ImportNames(),
//	    wazeroadapter.WithCustomHandler(wazeroadapter.LogMessageHandler(logger)),
//	)
//
//	// Per call:
//	ctx = hostfuncs.WithRegistry(ctx, registry)
//	ctx = hostfuncs.WithInstance(ctx, instance)
//	results, err := fn.Call(ctx, ptr, length)
package wazero
