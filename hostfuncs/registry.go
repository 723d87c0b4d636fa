package hostfuncs

import (
	"context"
	"errors"
	"fmt"
	"slices"
)

// HandlerRegistry maps host import names to handlers. It is built once per
// WasmHost and never changes, so extension goroutines read it without locks.
type HandlerRegistry struct {
	handlers map[string]ByteHandler
	names    []string
}

type registryBuilder struct {
	handlers   map[string]ByteHandler
	middleware []Middleware
	errors     []error
}

// NewRegistry builds a registry. Every handler is wrapped in the middleware
// chain, the first middleware outermost. All registration problems are
// reported together.
//
//	registry, err := NewRegistry(
//	    WithMiddleware(PanicRecoveryMiddleware()),
//	    WithBundle(StandardBundles(services)),
//	)
func NewRegistry(opts ...RegistryOption) (*HandlerRegistry, error) {
	b := &registryBuilder{handlers: make(map[string]ByteHandler)}
	for _, opt := range opts {
		opt(b)
	}
	if err := errors.Join(b.errors...); err != nil {
		return nil, err
	}

	r := &HandlerRegistry{
		handlers: make(map[string]ByteHandler, len(b.handlers)),
		names:    make([]string, 0, len(b.handlers)),
	}
	for name, handler := range b.handlers {
		r.handlers[name] = chain(handler, b.middleware)
		r.names = append(r.names, name)
	}
	slices.Sort(r.names)
	return r, nil
}

func chain(h ByteHandler, mw []Middleware) ByteHandler {
	for i := len(mw) - 1; i >= 0; i-- {
		h = mw[i](h)
	}
	return h
}

// Invoke calls the handler registered as name. An unknown name yields a
// NOT_FOUND envelope rather than an error, so the guest can recover.
func (r *HandlerRegistry) Invoke(ctx context.Context, name string, payload []byte) ([]byte, error) {
	handler, ok := r.handlers[name]
	if !ok {
		return NewNotFoundError(name).ToJSON(), nil
	}
	return handler(HostContextFrom(ctx, name), payload)
}

// Has reports whether name is registered.
func (r *HandlerRegistry) Has(name string) bool {
	_, ok := r.handlers[name]
	return ok
}

// Names returns the registered names, sorted.
func (r *HandlerRegistry) Names() []string {
	return slices.Clone(r.names)
}

// Unreachable returns the registered names missing from imports. Guests link
// only imported names, so these handlers can never run.
func (r *HandlerRegistry) Unreachable(imports []string) []string {
	var out []string
	for _, name := range r.names {
		if !slices.Contains(imports, name) {
			out = append(out, name)
		}
	}
	return out
}

func (b *registryBuilder) addHandler(name string, handler ByteHandler) error {
	switch {
	case name == "":
		return errors.New("host function name cannot be empty")
	case handler == nil:
		return fmt.Errorf("host function %q has no handler", name)
	}
	if _, exists := b.handlers[name]; exists {
		return fmt.Errorf("duplicate handler name: %q", name)
	}
	b.handlers[name] = handler
	return nil
}

// WithByteHandler registers a raw handler. WithHandler adds JSON decoding.
func WithByteHandler(name string, handler ByteHandler) RegistryOption {
	return func(b *registryBuilder) {
		if err := b.addHandler(name, handler); err != nil {
			b.errors = append(b.errors, err)
		}
	}
}

// WithMiddleware appends middleware. The first one added runs outermost.
func WithMiddleware(mw ...Middleware) RegistryOption {
	return func(b *registryBuilder) {
		b.middleware = append(b.middleware, mw...)
	}
}
