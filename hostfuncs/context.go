package hostfuncs

import (
	"context"

	"github.com/reglet-dev/exthost/domain/ports"
)

// HostContext wraps a standard context.Context with host function-specific helpers.
// It provides access to the invoked function name and allows middleware to store
// request-scoped values without polluting the standard context.
type HostContext interface {
	context.Context

	// FunctionName returns the name of the host function being invoked.
	FunctionName() string

	// SetValue stores a request-scoped value. Unlike context.WithValue,
	// this mutates the existing HostContext for performance.
	SetValue(key, value any)

	// GetValue retrieves a request-scoped value set by SetValue.
	GetValue(key any) (value any, ok bool)
}

type hostContext struct {
	context.Context
	values   map[any]any
	funcName string
}

// NewHostContext creates a new HostContext wrapping the given context.
func NewHostContext(ctx context.Context, funcName string) HostContext {
	return &hostContext{
		Context:  ctx,
		funcName: funcName,
		values:   make(map[any]any),
	}
}

func (c *hostContext) FunctionName() string {
	return c.funcName
}

func (c *hostContext) SetValue(key, value any) {
	c.values[key] = value
}

func (c *hostContext) GetValue(key any) (any, bool) {
	v, ok := c.values[key]
	return v, ok
}

// HostContextFrom extracts a HostContext from a context.Context.
// If the context is already a HostContext for the same function, it is returned directly.
func HostContextFrom(ctx context.Context, funcName string) HostContext {
	if hc, ok := ctx.(HostContext); ok && hc.FunctionName() == funcName {
		return hc
	}
	return NewHostContext(ctx, funcName)
}

// Instance is the per-instance state a host function runs against. The
// extension goroutine attaches it to the context of every guest call.
type Instance interface {
	// ExtensionID identifies the calling extension.
	ExtensionID() string

	// WorkDir is the extension's private directory. File-producing host
	// functions are confined to it.
	WorkDir() string

	// Granter gates privileged operations for this instance.
	Granter() ports.CapabilityGranter

	// Resource resolves a handle minted for the current call.
	Resource(handle uint32) (any, error)
}

type instanceKey struct{}

type registryKey struct{}

// WithInstance attaches the calling instance to ctx.
func WithInstance(ctx context.Context, inst Instance) context.Context {
	return context.WithValue(ctx, instanceKey{}, inst)
}

// InstanceFrom returns the calling instance, if any.
func InstanceFrom(ctx context.Context) (Instance, bool) {
	inst, ok := ctx.Value(instanceKey{}).(Instance)
	return inst, ok && inst != nil
}

// WithRegistry attaches the registry that serves host imports for calls made under ctx.
func WithRegistry(ctx context.Context, r *HandlerRegistry) context.Context {
	return context.WithValue(ctx, registryKey{}, r)
}

// RegistryFrom returns the registry attached by WithRegistry.
func RegistryFrom(ctx context.Context) (*HandlerRegistry, bool) {
	r, ok := ctx.Value(registryKey{}).(*HandlerRegistry)
	return r, ok && r != nil
}

func requireInstance(ctx context.Context) (Instance, error) {
	inst, ok := InstanceFrom(ctx)
	if !ok {
		return nil, NewInternalError("host function called outside of an extension call").Err()
	}
	return inst, nil
}
