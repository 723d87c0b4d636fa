// Package wazero links the extension host imports into a wazero runtime.
package wazero

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/reglet-dev/exthost/hostfuncs"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

// HostModuleName is the import module guests link against.
const HostModuleName = "zed"

// AdapterConfig holds configuration for the wazero adapter.
type AdapterConfig struct {
	// Fallback serves calls whose context carries no registry.
	Fallback *hostfuncs.HandlerRegistry

	// ModuleName is the host module name (default: "zed").
	ModuleName string

	// CustomHandlers are wazero functions that don't follow the packed
	// request/response pattern, such as log_message.
	CustomHandlers []CustomHandler

	// MaxRequestSize limits the size of incoming requests from guest memory.
	// Default is 1MB.
	MaxRequestSize uint32
}

// CustomHandler is a host function registered as-is.
type CustomHandler struct {
	// Handler is the wazero GoModuleFunc implementation.
	Handler api.GoModuleFunc

	// Name is the exported function name.
	Name string

	// ParamTypes are the WASM parameter types.
	ParamTypes []api.ValueType

	// ResultTypes are the WASM result types.
	ResultTypes []api.ValueType
}

// AdapterOption configures the adapter.
type AdapterOption func(*AdapterConfig)

// WithModuleName sets the host module name (default: "zed").
func WithModuleName(name string) AdapterOption {
	return func(c *AdapterConfig) {
		if name != "" {
			c.ModuleName = name
		}
	}
}

// WithMaxRequestSize sets the maximum request size read from guest memory.
func WithMaxRequestSize(size uint32) AdapterOption {
	return func(c *AdapterConfig) {
		if size > 0 {
			c.MaxRequestSize = size
		}
	}
}

// WithFallbackRegistry sets the registry used when a call context carries none.
func WithFallbackRegistry(r *hostfuncs.HandlerRegistry) AdapterOption {
	return func(c *AdapterConfig) {
		c.Fallback = r
	}
}

// WithCustomHandler adds a custom wazero handler.
func WithCustomHandler(h CustomHandler) AdapterOption {
	return func(c *AdapterConfig) {
		c.CustomHandlers = append(c.CustomHandlers, h)
	}
}

func defaultAdapterConfig() AdapterConfig {
	return AdapterConfig{
		ModuleName:     HostModuleName,
		MaxRequestSize: hostfuncs.DefaultMaxRequestSize,
	}
}

// RegisterWithRuntime instantiates the host module, exporting every name in
// names as a packed (i64) -> i64 function.
//
// The module is linked once per runtime, but handlers are chosen per call:
// each import resolves the registry attached to the guest call context with
// hostfuncs.WithRegistry, falling back to WithFallbackRegistry. A name that
// neither registry serves answers with a NOT_FOUND envelope, so a guest
// importing an optional function still links.
//
// Each import:
//   - reads the request bytes from guest memory (packed ptr+len)
//   - invokes the ByteHandler with the request payload
//   - allocates response memory with the guest "allocate" export
//   - returns the packed ptr+len of the response envelope
func RegisterWithRuntime(ctx context.Context, runtime wazero.Runtime, names []string, opts ...AdapterOption) (api.Module, error) {
	cfg := defaultAdapterConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	builder := runtime.NewHostModuleBuilder(cfg.ModuleName)

	for _, name := range names {
		funcName := name
		builder.NewFunctionBuilder().
			WithGoModuleFunction(api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
				handleImportCall(ctx, mod, stack, cfg, funcName)
			}), []api.ValueType{api.ValueTypeI64}, []api.ValueType{api.ValueTypeI64}).
			WithName(funcName).
			Export(funcName)
	}

	for _, ch := range cfg.CustomHandlers {
		builder.NewFunctionBuilder().
			WithGoModuleFunction(ch.Handler, ch.ParamTypes, ch.ResultTypes).
			WithName(ch.Name).
			Export(ch.Name)
	}

	mod, err := builder.Instantiate(ctx)
	if err != nil {
		return nil, fmt.Errorf("instantiate host module %q: %w", cfg.ModuleName, err)
	}
	return mod, nil
}

func handleImportCall(ctx context.Context, mod api.Module, stack []uint64, cfg AdapterConfig, name string) {
	ptr, length := UnpackPtrLen(stack[0])

	if length > cfg.MaxRequestSize {
		errMsg := fmt.Sprintf("request size %d exceeds maximum %d bytes", length, cfg.MaxRequestSize)
		slog.ErrorContext(ctx, "wazero: "+errMsg, "function", name, "extension", ExtensionName(ctx, mod))
		stack[0] = writeErrorResponse(ctx, mod, hostfuncs.NewValidationError(errMsg))
		return
	}

	request, ok := mod.Memory().Read(ptr, length)
	if !ok {
		errMsg := "failed to read request from guest memory"
		slog.ErrorContext(ctx, "wazero: "+errMsg, "function", name, "extension", ExtensionName(ctx, mod))
		stack[0] = writeErrorResponse(ctx, mod, hostfuncs.NewInternalError(errMsg))
		return
	}
	// Handlers may call back into the guest (allocate), which can grow and
	// move memory under a view.
	request = append([]byte(nil), request...)

	registry, ok := hostfuncs.RegistryFrom(ctx)
	if !ok {
		registry = cfg.Fallback
	}
	if registry == nil {
		stack[0] = writeErrorResponse(ctx, mod, hostfuncs.NewNotFoundError(name))
		return
	}

	response, err := registry.Invoke(ctx, name, request)
	if err != nil {
		slog.ErrorContext(ctx, "wazero: handler invocation failed", "function", name, "extension", ExtensionName(ctx, mod), "error", err)
		stack[0] = writeErrorResponse(ctx, mod, hostfuncs.NewInternalError(err.Error()))
		return
	}

	stack[0] = WriteResponse(ctx, mod, response)
}

// WriteResponse allocates memory in the guest and copies data into it.
// Returns packed ptr+len, or 0 if the guest could not take the bytes.
func WriteResponse(ctx context.Context, mod api.Module, data []byte) uint64 {
	allocateFn := mod.ExportedFunction("allocate")
	if allocateFn == nil {
		slog.ErrorContext(ctx, "wazero: guest module missing 'allocate' export", "extension", ExtensionName(ctx, mod))
		return 0
	}

	results, err := allocateFn.Call(ctx, uint64(len(data)))
	if err != nil {
		slog.ErrorContext(ctx, "wazero: failed to call guest allocate", "extension", ExtensionName(ctx, mod), "error", err)
		return 0
	}
	ptr := uint32(results[0]) //nolint:gosec // G115: WASM32 pointers are always 32-bit

	if !mod.Memory().Write(ptr, data) {
		slog.ErrorContext(ctx, "wazero: failed to write response to guest memory", "extension", ExtensionName(ctx, mod))
		return 0
	}

	return PackPtrLen(ptr, uint32(len(data))) //nolint:gosec // G115: Data length is bounded by guest memory
}

func writeErrorResponse(ctx context.Context, mod api.Module, errResp hostfuncs.ErrorResponse) uint64 {
	return WriteResponse(ctx, mod, errResp.ToJSON())
}

// PackPtrLen packs a pointer and length into a single i64.
// Upper 32 bits: pointer, lower 32 bits: length.
func PackPtrLen(ptr, length uint32) uint64 {
	return (uint64(ptr) << 32) | uint64(length)
}

// UnpackPtrLen unpacks a pointer and length from a packed i64.
func UnpackPtrLen(packed uint64) (ptr, length uint32) {
	ptr = uint32(packed >> 32)           //nolint:gosec // G115: Packed format stores 32-bit values
	length = uint32(packed & 0xFFFFFFFF) //nolint:gosec // G115: Packed format stores 32-bit values
	return ptr, length
}
