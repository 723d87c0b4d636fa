package host

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	domainerrors "github.com/reglet-dev/exthost/domain/errors"
	"github.com/reglet-dev/exthost/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tetratelabs/wazero"
)

// newTestEngine returns an engine whose clock only moves when the test calls
// IncrementEpoch.
func newTestEngine(t *testing.T, opts ...EngineOption) *Engine {
	t.Helper()
	opts = append([]EngineOption{WithEpochInterval(time.Hour)}, opts...)
	e, err := NewEngine(context.Background(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close(context.Background()) })
	return e
}

func TestEngine_EpochDeadline(t *testing.T) {
	e := newTestEngine(t, WithEpochDeadline(2))

	ctx, done := e.withEpochDeadline(context.Background())
	defer done()

	e.IncrementEpoch()
	require.NoError(t, ctx.Err())

	e.IncrementEpoch()
	require.Error(t, ctx.Err())
	assert.ErrorIs(t, context.Cause(ctx), domainerrors.ErrEpochDeadline)
}

func TestEngine_FinishedCallIsNotInterrupted(t *testing.T) {
	e := newTestEngine(t, WithEpochDeadline(1))

	ctx, done := e.withEpochDeadline(context.Background())
	done()
	e.IncrementEpoch()

	assert.ErrorIs(t, context.Cause(ctx), context.Canceled)
	assert.NotErrorIs(t, context.Cause(ctx), domainerrors.ErrEpochDeadline)
	e.mu.Lock()
	assert.Empty(t, e.deadlines)
	e.mu.Unlock()
}

func TestEngine_TickerAdvancesEpoch(t *testing.T) {
	e, err := NewEngine(context.Background(), WithEpochInterval(2*time.Millisecond))
	require.NoError(t, err)
	defer func() { _ = e.Close(context.Background()) }()

	assert.Eventually(t, func() bool { return e.Epoch() >= 3 }, 2*time.Second, time.Millisecond)
}

func TestEngine_CloseStopsTicker(t *testing.T) {
	e, err := NewEngine(context.Background(), WithEpochInterval(time.Millisecond))
	require.NoError(t, err)
	require.NoError(t, e.Close(context.Background()))
	require.NoError(t, e.Close(context.Background()))

	stopped := e.Epoch()
	time.Sleep(20 * time.Millisecond)
	assert.LessOrEqual(t, e.Epoch(), stopped+1)
}

func TestEngine_UnreachableEngineIsReleased(t *testing.T) {
	stopper := func() *engineStopper {
		e, err := NewEngine(context.Background(), WithEpochInterval(time.Millisecond))
		require.NoError(t, err)
		return e.stopper
	}()

	assert.Eventually(t, func() bool {
		runtime.GC()
		select {
		case <-stopper.stop:
			return true
		default:
			return false
		}
	}, 5*time.Second, 10*time.Millisecond)
}

// compileOwned compiles through e and closes the caller's reference when the
// test ends.
func compileOwned(t *testing.T, e *Engine, wasm []byte) wazero.CompiledModule {
	t.Helper()
	m, err := e.Compile(context.Background(), wasm)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close(context.Background()) })
	return m
}

func TestEngine_CompileCaches(t *testing.T) {
	obs := &countingObserver{}
	e := newTestEngine(t, WithEngineCacheObserver(obs))
	wasm := testutil.NewGuest().Version(0, 1, 0).Const("op", `{"ok":1}`).Bytes()

	first := compileOwned(t, e, wasm)
	second := compileOwned(t, e, append([]byte(nil), wasm...))

	assert.NotSame(t, first, second)
	assert.Equal(t, 1, e.Cache().Len())
	assert.Equal(t, int64(2*len(wasm)), e.Cache().Weight())
	assert.Equal(t, int64(1), obs.hits.Load())
	assert.Equal(t, int64(1), obs.misses.Load())
}

func TestEngine_CompileDeduplicatesConcurrentCalls(t *testing.T) {
	obs := &countingObserver{}
	e := newTestEngine(t, WithEngineCacheObserver(obs))
	wasm := testutil.NewGuest().Version(0, 1, 0).Const("op", `{"ok":1}`).Bytes()

	const callers = 16
	results := make([]wazero.CompiledModule, callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m, err := e.Compile(context.Background(), wasm)
			assert.NoError(t, err)
			results[i] = m
		}()
	}
	wg.Wait()

	for _, m := range results {
		require.NotNil(t, m)
		require.NoError(t, m.Close(context.Background()))
	}
	assert.Equal(t, 1, e.Cache().Len())
	assert.Equal(t, int64(callers), obs.hits.Load()+obs.misses.Load())
}

func TestEngine_CallerReferenceIsIndependent(t *testing.T) {
	e := newTestEngine(t)
	wasm := testutil.NewGuest().Version(0, 1, 0).Const("op", `{"ok":1}`).Bytes()

	first, err := e.Compile(context.Background(), wasm)
	require.NoError(t, err)
	require.NoError(t, first.Close(context.Background()))

	second := compileOwned(t, e, wasm)
	mod, err := e.Runtime().InstantiateModule(context.Background(), second, wazero.NewModuleConfig().WithName("independent"))
	require.NoError(t, err)
	assert.NotNil(t, mod.ExportedFunction("op"))
	require.NoError(t, mod.Close(context.Background()))
}

type releaseSpy struct {
	wazero.CompiledModule
	closed atomic.Int32
}

func (s *releaseSpy) Close(context.Context) error {
	s.closed.Add(1)
	return nil
}

func TestEngine_EvictionClosesCachedModule(t *testing.T) {
	e := newTestEngine(t, WithCacheCapacity(1))
	spy := &releaseSpy{}
	e.Cache().Insert("stale", spy, 0)

	compileOwned(t, e, testutil.NewGuest().Version(0, 1, 0).Bytes())

	_, ok := e.Cache().Peek("stale")
	assert.False(t, ok)
	assert.Equal(t, int32(1), spy.closed.Load())
}

func TestEngine_CompileErrorIsNotCached(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Compile(context.Background(), []byte("not wasm"))
	require.Error(t, err)
	assert.Zero(t, e.Cache().Len())
}

func TestEngine_CompileIgnoresCallerCancellation(t *testing.T) {
	e := newTestEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m, err := e.Compile(ctx, testutil.NewGuest().Version(0, 1, 0).Bytes())
	require.NoError(t, err)
	assert.NoError(t, m.Close(context.Background()))
}

func TestEngine_CacheIsPerEngine(t *testing.T) {
	a := newTestEngine(t)
	b := newTestEngine(t)
	wasm := testutil.NewGuest().Version(0, 1, 0).Bytes()

	compileOwned(t, a, wasm)
	assert.Equal(t, 1, a.Cache().Len())
	assert.Zero(t, b.Cache().Len())
}

func TestEngine_SmallCacheEvicts(t *testing.T) {
	e := newTestEngine(t, WithCacheCapacity(1))
	first := testutil.NewGuest().Version(0, 1, 0).Const("a", `{"ok":1}`).Bytes()
	second := testutil.NewGuest().Version(0, 1, 0).Const("b", `{"ok":2}`).Bytes()

	compileOwned(t, e, first)
	compileOwned(t, e, second)

	assert.Equal(t, 1, e.Cache().Len())
	_, ok := e.Cache().Peek(string(second))
	assert.True(t, ok)
}

func TestDefaultEngine_Idempotent(t *testing.T) {
	assert.Same(t, DefaultEngine(), DefaultEngine())
	assert.Same(t, DefaultEngine().Cache(), CompilationCache())
	assert.Equal(t, DefaultCacheCapacity, CompilationCache().Capacity())
}
