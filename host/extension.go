package host

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/reglet-dev/exthost/domain/entities"
	domainerrors "github.com/reglet-dev/exthost/domain/errors"
)

// Call outcomes reported to a CallObserver.
const (
	OutcomeOK             = "ok"
	OutcomeExtensionError = "extension_error"
	OutcomeInterrupted    = "interrupted"
	OutcomeUnavailable    = "unavailable"
	OutcomeUnsupported    = "unsupported"
	OutcomeError          = "error"
)

// CallObserver receives the outcome of every call an extension executes.
type CallObserver interface {
	CallFinished(extensionID, operation, outcome string, elapsed time.Duration)
}

type nopCallObserver struct{}

func (nopCallObserver) CallFinished(string, string, string, time.Duration) {}

// extensionCall runs against the live instance, or against nil once the
// extension can no longer be instantiated.
type extensionCall func(inst *instance)

// WasmExtension is a loaded extension. Calls are queued on an unbounded FIFO
// and executed one at a time by the extension's goroutine, which owns the
// instance; a WasmExtension never touches it directly.
//
// Close stops accepting calls. Calls already queued still run to completion.
// An extension that becomes unreachable is closed the same way.
type WasmExtension struct {
	manifest *entities.ExtensionManifest
	mailbox  *mailbox[extensionCall]
	done     chan struct{}
	logger   *slog.Logger
	observer CallObserver
	workDir  string
	bindings bindings
}

// extensionActor is the goroutine side of a WasmExtension. It must not
// reference the WasmExtension, so that dropping the handle closes the queue.
type extensionActor struct {
	spec    instanceSpec
	inst    *instance
	mailbox *mailbox[extensionCall]
	done    chan struct{}
}

func startExtension(inst *instance, version entities.SemanticVersion, observer CallObserver) *WasmExtension {
	ext := &WasmExtension{
		manifest: inst.spec.manifest,
		mailbox:  newMailbox[extensionCall](),
		done:     make(chan struct{}),
		logger:   inst.spec.logger,
		observer: observer,
		workDir:  inst.spec.workDir,
		bindings: bindingsFor(version),
	}
	actor := &extensionActor{spec: inst.spec, inst: inst, mailbox: ext.mailbox, done: ext.done}
	go actor.run()
	runtime.AddCleanup(ext, func(m *mailbox[extensionCall]) { m.close() }, ext.mailbox)
	return ext
}

func (a *extensionActor) run() {
	defer close(a.done)
	ctx := context.Background()
	for {
		call, ok := a.mailbox.pop()
		if !ok {
			break
		}
		call(a.inst)
		if a.inst != nil && a.inst.closed() {
			a.recycle(ctx)
		}
	}
	if a.inst != nil {
		a.inst.close(ctx)
	}
	_ = a.spec.compiled.Close(ctx)
}

// recycle replaces an instance whose module was closed under a call, such as
// by epoch interruption. If that fails, the extension stops accepting calls
// and whatever is still queued fails with ErrExtensionUnavailable.
func (a *extensionActor) recycle(ctx context.Context) {
	a.inst.close(ctx)
	a.inst = nil

	inst, err := newInstance(ctx, a.spec)
	if err != nil {
		a.spec.logger.ErrorContext(ctx, "host: failed to re-instantiate extension",
			"extension", a.spec.manifest.ID,
			"error", err)
		a.mailbox.close()
		return
	}
	a.inst = inst
	a.spec.logger.InfoContext(ctx, "host: extension instance recycled", "extension", a.spec.manifest.ID)
}

// ID returns the manifest ID.
func (e *WasmExtension) ID() string { return e.manifest.ID }

// Manifest returns the shared, immutable manifest.
func (e *WasmExtension) Manifest() *entities.ExtensionManifest { return e.manifest }

// Version returns the interface version the binary declares.
func (e *WasmExtension) Version() entities.SemanticVersion { return e.bindings.version }

// WorkDir returns the extension's private directory.
func (e *WasmExtension) WorkDir() string { return e.workDir }

// Operations lists the operations available at the extension's interface version.
func (e *WasmExtension) Operations() []string { return e.bindings.available() }

// Supports reports whether op is available at the extension's interface version.
func (e *WasmExtension) Supports(op string) bool { return e.bindings.supports(op) }

// Close stops accepting new calls. It does not wait for queued calls; use Done.
func (e *WasmExtension) Close() {
	e.mailbox.close()
}

// Done is closed once the queue has drained after Close and the instance
// has been torn down.
func (e *WasmExtension) Done() <-chan struct{} {
	return e.done
}

type callResult[T any] struct {
	value T
	err   error
}

// call queues fn and waits for its result. Cancelling ctx stops the wait
// only; a call that was accepted still runs, detached from ctx.
func call[T any](ctx context.Context, e *WasmExtension, op string, fn func(ctx context.Context, inst *instance) (T, error)) (T, error) {
	var zero T
	id := e.manifest.ID
	if !e.bindings.supports(op) {
		e.observer.CallFinished(id, op, OutcomeUnsupported, 0)
		return zero, fmt.Errorf("%w: %s is not available at interface version %s of extension %s",
			domainerrors.ErrOperationUnsupported, op, e.bindings.version, id)
	}

	callID := ulid.Make().String()
	logger := e.logger.With("extension", id, "operation", op, "call_id", callID)
	observer := e.observer
	callCtx := context.WithoutCancel(ctx)
	results := make(chan callResult[T], 1)

	accepted := e.mailbox.push(func(inst *instance) {
		var res callResult[T]
		start := time.Now()
		defer func() {
			if r := recover(); r != nil {
				logger.ErrorContext(callCtx, "host: extension call panicked", "panic", r)
				res = callResult[T]{err: fmt.Errorf("extension %s: %s panicked: %v", id, op, r)}
			}
			elapsed := time.Since(start)
			observer.CallFinished(id, op, outcome(res.err), elapsed)
			logCallResult(callCtx, logger, res.err, elapsed)
			results <- res
		}()

		if inst == nil {
			res.err = fmt.Errorf("extension %s: %w", id, domainerrors.ErrExtensionUnavailable)
			return
		}
		res.value, res.err = fn(callCtx, inst)
	})
	if !accepted {
		observer.CallFinished(id, op, OutcomeUnavailable, 0)
		return zero, fmt.Errorf("extension %s: %w", id, domainerrors.ErrExtensionUnavailable)
	}

	select {
	case res := <-results:
		return res.value, res.err
	case <-ctx.Done():
		return zero, context.Cause(ctx)
	}
}

func outcome(err error) string {
	var extErr *domainerrors.ExtensionError
	switch {
	case err == nil:
		return OutcomeOK
	case errors.As(err, &extErr):
		return OutcomeExtensionError
	case errors.Is(err, domainerrors.ErrEpochDeadline):
		return OutcomeInterrupted
	case errors.Is(err, domainerrors.ErrExtensionUnavailable):
		return OutcomeUnavailable
	case errors.Is(err, domainerrors.ErrOperationUnsupported):
		return OutcomeUnsupported
	default:
		return OutcomeError
	}
}

func logCallResult(ctx context.Context, logger *slog.Logger, err error, elapsed time.Duration) {
	attrs := []any{"duration", elapsed}
	if err != nil {
		attrs = append(attrs, "error", err)
	}
	switch outcome(err) {
	case OutcomeOK, OutcomeExtensionError, OutcomeUnsupported:
		// Guest-signaled errors belong to the caller, not the host log.
		logger.DebugContext(ctx, "host: extension call finished", attrs...)
	case OutcomeInterrupted:
		logger.WarnContext(ctx, "host: extension call interrupted", attrs...)
	default:
		logger.ErrorContext(ctx, "host: extension call failed", attrs...)
	}
}
