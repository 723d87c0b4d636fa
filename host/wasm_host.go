package host

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/reglet-dev/exthost/domain/entities"
	domainerrors "github.com/reglet-dev/exthost/domain/errors"
	"github.com/reglet-dev/exthost/domain/policy"
	"github.com/reglet-dev/exthost/domain/ports"
	"github.com/reglet-dev/exthost/hostfuncs"
	wazeroadapter "github.com/reglet-dev/exthost/infrastructure/wazero"
)

// ErrHostClosed is returned by the main-context relay after Close.
var ErrHostClosed = errors.New("host: closed")

// MainThreadCall runs on the goroutine that owns the application context.
type MainThreadCall func(ctx context.Context, app ports.AppContext)

// WasmHost loads extensions and owns what they share: the engine, the host
// function registry, the granted capability set and the main-context relay.
type WasmHost struct {
	engine   *Engine
	registry *hostfuncs.HandlerRegistry
	main     *mailbox[mainThreadJob]
	mainDone chan struct{}
	config   hostConfig
	granted  entities.GrantedCapabilitySet
	mu       sync.RWMutex
}

type mainThreadJob struct {
	ctx context.Context
	fn  MainThreadCall
}

// NewWasmHost creates a host. The granted capability set is read from the
// grant store once, here; later changes need ReloadGrantedCapabilities.
func NewWasmHost(ctx context.Context, opts ...HostOption) (*WasmHost, error) {
	cfg := defaultHostConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.engine == nil {
		cfg.engine = DefaultEngine()
	}

	granted := entities.DefaultGrantedCapabilities()
	if cfg.grants != nil {
		loaded, err := cfg.grants.Load()
		if err != nil {
			return nil, fmt.Errorf("failed to load granted capabilities from %s: %w", cfg.grants.ConfigPath(), err)
		}
		granted = loaded
	}

	h := &WasmHost{
		engine:   cfg.engine,
		main:     newMailbox[mainThreadJob](),
		mainDone: make(chan struct{}),
		config:   cfg,
		granted:  granted,
	}

	services := cfg.services
	if cfg.app != nil && services.Settings == nil {
		services.Settings = h
	}
	middleware := append([]hostfuncs.Middleware{
		hostfuncs.PanicRecoveryMiddleware(),
		hostfuncs.LoggingMiddleware(cfg.logger),
	}, cfg.middleware...)

	bundles := append([]hostfuncs.HostFuncBundle{hostfuncs.StandardBundles(services)}, cfg.bundles...)
	registry, err := hostfuncs.NewRegistry(
		hostfuncs.WithMiddleware(middleware...),
		hostfuncs.WithBundle(hostfuncs.Combine(bundles...)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build host function registry: %w", err)
	}
	if unreachable := registry.Unreachable(hostfuncs.ImportNames()); len(unreachable) > 0 {
		cfg.logger.WarnContext(ctx, "host: host functions are not linked and can never be called", "functions", unreachable)
	}
	h.registry = registry

	go runMainThread(h.main, cfg.app, h.mainDone)
	runtime.AddCleanup(h, func(m *mailbox[mainThreadJob]) { m.close() }, h.main)

	return h, nil
}

func runMainThread(queue *mailbox[mainThreadJob], app ports.AppContext, done chan<- struct{}) {
	defer close(done)
	for {
		job, ok := queue.pop()
		if !ok {
			return
		}
		job.fn(job.ctx, app)
	}
}

// Engine returns the engine extensions run on.
func (h *WasmHost) Engine() *Engine { return h.engine }

// Registry returns the host function registry.
func (h *WasmHost) Registry() *hostfuncs.HandlerRegistry { return h.registry }

// GrantedCapabilities returns a copy of the current granted set.
func (h *WasmHost) GrantedCapabilities() entities.GrantedCapabilitySet {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.granted.Clone()
}

// SetGrantedCapabilities replaces the granted set. Extensions already loaded
// keep the set they were loaded with.
func (h *WasmHost) SetGrantedCapabilities(granted entities.GrantedCapabilitySet) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.granted = granted.Clone()
}

// ReloadGrantedCapabilities re-reads the grant store. Extensions already
// loaded keep the set they were loaded with.
func (h *WasmHost) ReloadGrantedCapabilities(ctx context.Context) error {
	if h.config.grants == nil {
		return nil
	}
	granted, err := h.config.grants.Load()
	if err != nil {
		return fmt.Errorf("failed to reload granted capabilities from %s: %w", h.config.grants.ConfigPath(), err)
	}
	h.SetGrantedCapabilities(granted)
	h.config.logger.InfoContext(ctx, "host: granted capabilities reloaded",
		"path", h.config.grants.ConfigPath(),
		"capabilities", len(granted.Capabilities))
	return nil
}

// LoadExtension checks the binary's interface version, compiles it through
// the engine cache and instantiates it with a fresh granter and resource
// table. Failures are *LoadError naming the phase that failed.
func (h *WasmHost) LoadExtension(ctx context.Context, wasm []byte, manifest *entities.ExtensionManifest) (*WasmExtension, error) {
	if manifest == nil || manifest.ID == "" {
		return nil, errors.New("host: manifest with an id is required")
	}
	id := manifest.ID
	loadErr := func(phase domainerrors.LoadPhase, err error) error {
		return &domainerrors.LoadError{Extension: id, Phase: phase, Err: err}
	}

	version, err := ParseExtensionVersion(id, wasm)
	if err != nil {
		return nil, loadErr(domainerrors.PhaseVersion, err)
	}
	if err := checkVersion(id, version, h.config.supported); err != nil {
		return nil, loadErr(domainerrors.PhaseVersion, err)
	}

	compiled, err := h.engine.Compile(ctx, wasm)
	if err != nil {
		return nil, loadErr(domainerrors.PhaseCompile, err)
	}
	instantiateErr := func(err error) error {
		_ = compiled.Close(context.WithoutCancel(ctx))
		return loadErr(domainerrors.PhaseInstantiate, err)
	}

	workDir, err := h.extensionWorkDir(id)
	if err != nil {
		return nil, instantiateErr(err)
	}

	for _, fn := range compiled.ImportedFunctions() {
		module, name, _ := fn.Import()
		if module == wazeroadapter.HostModuleName && !h.registry.Has(name) {
			h.config.logger.WarnContext(ctx, "host: extension imports a host function no service provides",
				"extension", id,
				"function", name)
		}
	}

	inst, err := newInstance(ctx, instanceSpec{
		engine:      h.engine,
		compiled:    compiled,
		registry:    h.registry,
		manifest:    manifest,
		logger:      h.config.logger,
		granted:     h.GrantedCapabilities(),
		granterOpts: h.granterOptions(),
		workDir:     workDir,
	})
	if err != nil {
		return nil, instantiateErr(err)
	}

	ext := startExtension(inst, version, h.config.callObserver)
	h.config.logger.InfoContext(ctx, "host: extension loaded",
		"extension", id,
		"version", version.String(),
		"operations", len(ext.Operations()))
	return ext, nil
}

func (h *WasmHost) extensionWorkDir(id string) (string, error) {
	if !filepath.IsLocal(id) || strings.ContainsAny(id, `/\`) {
		return "", fmt.Errorf("extension id %q is not a valid directory name", id)
	}
	dir := filepath.Join(h.config.workDir, id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create work dir: %w", err)
	}
	return dir, nil
}

func (h *WasmHost) granterOptions() []policy.GranterOption {
	var opts []policy.GranterOption
	if h.config.policy != nil {
		opts = append(opts, policy.WithPolicy(h.config.policy))
	}
	if h.config.denialHandler != nil {
		opts = append(opts, policy.WithDenialHandler(h.config.denialHandler))
	}
	return opts
}

// OnMainThread queues fn on the main-context goroutine and returns without
// waiting. Jobs run one at a time in the order they were queued.
func (h *WasmHost) OnMainThread(ctx context.Context, fn MainThreadCall) error {
	if !h.main.push(mainThreadJob{ctx: context.WithoutCancel(ctx), fn: fn}) {
		return ErrHostClosed
	}
	return nil
}

// RunOnMainThread runs fn on the main-context goroutine and waits for its
// result. Cancelling ctx stops the wait; fn still runs.
func RunOnMainThread[T any](ctx context.Context, h *WasmHost, fn func(ctx context.Context, app ports.AppContext) (T, error)) (T, error) {
	var zero T
	results := make(chan callResult[T], 1)
	err := h.OnMainThread(ctx, func(ctx context.Context, app ports.AppContext) {
		var res callResult[T]
		defer func() {
			if r := recover(); r != nil {
				h.config.logger.ErrorContext(ctx, "host: main thread call panicked", "panic", r)
				res = callResult[T]{err: fmt.Errorf("host: main thread call panicked: %v", r)}
			}
			results <- res
		}()
		res.value, res.err = fn(ctx, app)
	})
	if err != nil {
		return zero, err
	}

	select {
	case res := <-results:
		return res.value, res.err
	case <-ctx.Done():
		return zero, context.Cause(ctx)
	}
}

// ReadSettings implements hostfuncs.SettingsReader by relaying to the
// application context on the main-context goroutine.
func (h *WasmHost) ReadSettings(ctx context.Context, location *ports.SettingsLocation, category, key string) (json.RawMessage, error) {
	return RunOnMainThread(ctx, h, func(ctx context.Context, app ports.AppContext) (json.RawMessage, error) {
		if app == nil {
			return nil, errors.New("host: no application context")
		}
		return app.Settings().Settings(ctx, location, category, key)
	})
}

// Close stops the main-context relay after the jobs already queued. Loaded
// extensions are closed separately.
func (h *WasmHost) Close() {
	h.main.close()
}

// Done is closed once the main-context relay has stopped.
func (h *WasmHost) Done() <-chan struct{} {
	return h.mainDone
}
