package host

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
	"weak"

	domainerrors "github.com/reglet-dev/exthost/domain/errors"
	"github.com/reglet-dev/exthost/hostfuncs"
	wazeroadapter "github.com/reglet-dev/exthost/infrastructure/wazero"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultEpochInterval is how often the epoch counter advances.
	DefaultEpochInterval = 100 * time.Millisecond

	// DefaultEpochDeadline is how many epochs a guest call may run.
	DefaultEpochDeadline uint64 = 100
)

type engineConfig struct {
	logger         *slog.Logger
	observer       CacheObserver
	epochInterval  time.Duration
	deadlineTicks  uint64
	cacheCapacity  int64
	maxRequestSize uint32
}

func defaultEngineConfig() engineConfig {
	return engineConfig{
		logger:         slog.Default(),
		epochInterval:  DefaultEpochInterval,
		deadlineTicks:  DefaultEpochDeadline,
		cacheCapacity:  DefaultCacheCapacity,
		maxRequestSize: hostfuncs.DefaultMaxRequestSize,
	}
}

// EngineOption configures an Engine.
type EngineOption func(*engineConfig)

// WithEpochInterval sets the epoch tick period.
func WithEpochInterval(d time.Duration) EngineOption {
	return func(c *engineConfig) {
		if d > 0 {
			c.epochInterval = d
		}
	}
}

// WithEpochDeadline sets how many epoch ticks a single guest call may run
// before it is interrupted.
func WithEpochDeadline(ticks uint64) EngineOption {
	return func(c *engineConfig) {
		if ticks > 0 {
			c.deadlineTicks = ticks
		}
	}
}

// WithCacheCapacity sets the weight budget of the engine's compilation cache.
func WithCacheCapacity(bytes int64) EngineOption {
	return func(c *engineConfig) {
		if bytes > 0 {
			c.cacheCapacity = bytes
		}
	}
}

// WithEngineCacheObserver reports compilation cache events to o.
func WithEngineCacheObserver(o CacheObserver) EngineOption {
	return func(c *engineConfig) {
		c.observer = o
	}
}

// WithEngineLogger sets the logger guest log_message records go to.
func WithEngineLogger(l *slog.Logger) EngineOption {
	return func(c *engineConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMaxRequestSize caps the size of a host import request read from guest memory.
func WithMaxRequestSize(size uint32) EngineOption {
	return func(c *engineConfig) {
		if size > 0 {
			c.maxRequestSize = size
		}
	}
}

// Engine owns one wazero runtime, its compilation cache and the epoch clock
// that bounds guest calls. An Engine is safe for concurrent use.
//
// Guest calls register a deadline a fixed number of epochs ahead. When the
// clock passes it, the call context is cancelled with ErrEpochDeadline and
// wazero aborts the guest at its next function entry or loop back-edge.
type Engine struct {
	runtime   wazero.Runtime
	cache     *Cache[wazero.CompiledModule]
	stopper   *engineStopper
	deadlines map[uint64]epochDeadline
	compiles  singleflight.Group
	config    engineConfig
	epoch     atomic.Uint64
	nextID    uint64
	mu        sync.Mutex
}

type epochDeadline struct {
	cancel context.CancelCauseFunc
	at     uint64
}

// engineStopper is shared between the engine and its cleanup so that an
// engine dropped without Close still releases its runtime and ticker.
type engineStopper struct {
	runtime wazero.Runtime
	stop    chan struct{}
	err     error
	once    sync.Once
}

func (s *engineStopper) shutdown(ctx context.Context) error {
	s.once.Do(func() {
		close(s.stop)
		s.err = s.runtime.Close(ctx)
	})
	return s.err
}

// NewEngine builds a runtime with WASI and the host import module linked,
// and starts its epoch ticker.
func NewEngine(ctx context.Context, opts ...EngineOption) (*Engine, error) {
	cfg := defaultEngineConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	rt := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfig().WithCloseOnContextDone(true))

	if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
		_ = rt.Close(ctx)
		return nil, fmt.Errorf("failed to instantiate wasi: %w", err)
	}

	if _, err := wazeroadapter.RegisterWithRuntime(ctx, rt, hostfuncs.ImportNames(),
		wazeroadapter.WithMaxRequestSize(cfg.maxRequestSize),
		wazeroadapter.WithCustomHandler(wazeroadapter.LogMessageHandler(cfg.logger)),
	); err != nil {
		_ = rt.Close(ctx)
		return nil, fmt.Errorf("failed to register host functions: %w", err)
	}

	cacheOpts := []CacheOption{WithRelease(closeCompiled)}
	if cfg.observer != nil {
		cacheOpts = append(cacheOpts, WithCacheObserver(cfg.observer))
	}

	e := &Engine{
		runtime:   rt,
		cache:     NewCache[wazero.CompiledModule](cfg.cacheCapacity, cacheOpts...),
		stopper:   &engineStopper{runtime: rt, stop: make(chan struct{})},
		deadlines: make(map[uint64]epochDeadline),
		config:    cfg,
	}
	startEpochTicker(e, cfg.epochInterval, e.stopper.stop)
	runtime.AddCleanup(e, func(s *engineStopper) {
		_ = s.shutdown(context.Background())
	}, e.stopper)

	return e, nil
}

// startEpochTicker advances the epoch until stop closes or the engine is
// garbage collected. The goroutine only holds a weak reference.
func startEpochTicker(e *Engine, interval time.Duration, stop <-chan struct{}) {
	ref := weak.Make(e)
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				eng := ref.Value()
				if eng == nil {
					return
				}
				eng.IncrementEpoch()
			}
		}
	}()
}

var defaultEngine = sync.OnceValue(func() *Engine {
	e, err := NewEngine(context.Background())
	if err != nil {
		panic(fmt.Sprintf("host: failed to build default engine: %v", err))
	}
	return e
})

// DefaultEngine returns the process-wide engine, building it on first use.
func DefaultEngine() *Engine {
	return defaultEngine()
}

// CompilationCache returns the process-wide compilation cache, which belongs
// to DefaultEngine. Compiled modules are bound to the runtime that compiled
// them, so every Engine keeps its own cache.
func CompilationCache() *Cache[wazero.CompiledModule] {
	return DefaultEngine().Cache()
}

// Runtime returns the underlying wazero runtime.
func (e *Engine) Runtime() wazero.Runtime {
	return e.runtime
}

// Cache returns the engine's compilation cache.
func (e *Engine) Cache() *Cache[wazero.CompiledModule] {
	return e.cache
}

// Epoch returns the current epoch.
func (e *Engine) Epoch() uint64 {
	return e.epoch.Load()
}

// IncrementEpoch advances the clock by one tick and interrupts every call
// whose deadline has passed. The ticker calls it; tests may call it directly.
func (e *Engine) IncrementEpoch() uint64 {
	now := e.epoch.Add(1)

	e.mu.Lock()
	defer e.mu.Unlock()
	for id, d := range e.deadlines {
		if now >= d.at {
			d.cancel(domainerrors.ErrEpochDeadline)
			delete(e.deadlines, id)
		}
	}
	return now
}

// withEpochDeadline derives a context that is cancelled with
// ErrEpochDeadline once the configured number of epochs has passed. The
// returned func must be called when the guest call returns.
func (e *Engine) withEpochDeadline(ctx context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancelCause(ctx)

	e.mu.Lock()
	id := e.nextID
	e.nextID++
	e.deadlines[id] = epochDeadline{cancel: cancel, at: e.epoch.Load() + e.config.deadlineTicks}
	e.mu.Unlock()

	return ctx, func() {
		e.mu.Lock()
		delete(e.deadlines, id)
		e.mu.Unlock()
		cancel(nil)
	}
}

// Compile returns a compiled module for wasm that the caller owns and must
// Close. The cache keeps its own reference to the machine code, so a hit
// only decodes the binary again. Concurrent compiles of identical bytes
// share one compilation.
func (e *Engine) Compile(ctx context.Context, wasm []byte) (wazero.CompiledModule, error) {
	if err := e.ensureCompiled(ctx, wasm); err != nil {
		return nil, err
	}
	// An eviction between the two steps only costs a full compile here.
	return e.runtime.CompileModule(context.WithoutCancel(ctx), wasm)
}

// ensureCompiled puts the compiled module for wasm in the cache.
func (e *Engine) ensureCompiled(ctx context.Context, wasm []byte) error {
	key := string(wasm)
	if _, ok := e.cache.Get(key); ok {
		return nil
	}

	sum := sha256.Sum256(wasm)
	_, err, _ := e.compiles.Do(hex.EncodeToString(sum[:]), func() (any, error) {
		if _, ok := e.cache.Peek(key); ok {
			return nil, nil
		}
		// The compile result is shared by every waiter, so one caller's
		// cancellation must not fail the others.
		compiled, err := e.runtime.CompileModule(context.WithoutCancel(ctx), wasm)
		if err != nil {
			return nil, err
		}
		e.cache.Insert(key, compiled, int64(len(wasm)))
		return nil, nil
	})
	return err
}

// closeCompiled releases the cache's reference to an evicted module. Instances
// already running from it keep their code.
func closeCompiled(v any) {
	if compiled, ok := v.(wazero.CompiledModule); ok {
		_ = compiled.Close(context.Background())
	}
}

// Close stops the epoch ticker and closes the runtime, which closes every
// module instantiated from it.
func (e *Engine) Close(ctx context.Context) error {
	return e.stopper.shutdown(ctx)
}
