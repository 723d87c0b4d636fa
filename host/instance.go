package host

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/oklog/ulid/v2"
	"github.com/reglet-dev/exthost/domain/entities"
	domainerrors "github.com/reglet-dev/exthost/domain/errors"
	"github.com/reglet-dev/exthost/domain/policy"
	"github.com/reglet-dev/exthost/domain/ports"
	"github.com/reglet-dev/exthost/hostfuncs"
	wazeroadapter "github.com/reglet-dev/exthost/infrastructure/wazero"
	"github.com/reglet-dev/exthost/wireformat"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

const (
	exportAllocate   = "allocate"
	exportInitialize = "_initialize"

	// maxOutputLine bounds a buffered guest stdout or stderr line.
	maxOutputLine = 4096
)

// instanceSpec is everything needed to instantiate an extension, and to
// instantiate it again after an interrupted call closed the module. The
// extension owns compiled and closes it when its goroutine exits.
type instanceSpec struct {
	engine      *Engine
	compiled    wazero.CompiledModule
	registry    *hostfuncs.HandlerRegistry
	manifest    *entities.ExtensionManifest
	logger      *slog.Logger
	granted     entities.GrantedCapabilitySet
	granterOpts []policy.GranterOption
	workDir     string
}

// instance is one instantiated extension module with its own granter and
// resource table. It implements hostfuncs.Instance and is only touched by
// its extension's goroutine.
type instance struct {
	spec      instanceSpec
	module    api.Module
	granter   ports.CapabilityGranter
	resources *ResourceTable
	stdout    *outputWriter
	stderr    *outputWriter
}

func newInstance(ctx context.Context, spec instanceSpec) (*instance, error) {
	id := spec.manifest.ID
	inst := &instance{
		spec:      spec,
		granter:   policy.NewGranter(spec.manifest, spec.granted, spec.granterOpts...),
		resources: NewResourceTable(),
		stdout:    newOutputWriter(spec.logger, slog.LevelInfo, id, "stdout"),
		stderr:    newOutputWriter(spec.logger, slog.LevelWarn, id, "stderr"),
	}

	cfg := wazero.NewModuleConfig().
		WithName(id + "-" + ulid.Make().String()).
		WithStartFunctions(exportInitialize).
		WithStdout(inst.stdout).
		WithStderr(inst.stderr).
		WithSysWalltime().
		WithSysNanotime().
		WithRandSource(rand.Reader)

	ctx = hostfuncs.WithRegistry(hostfuncs.WithInstance(ctx, inst), spec.registry)
	ctx, done := spec.engine.withEpochDeadline(ctx)
	defer done()

	mod, err := spec.engine.Runtime().InstantiateModule(ctx, spec.compiled, cfg)
	if err != nil {
		if errors.Is(context.Cause(ctx), domainerrors.ErrEpochDeadline) {
			return nil, &domainerrors.InterruptedError{Extension: id, Operation: exportInitialize, Epoch: spec.engine.Epoch()}
		}
		return nil, err
	}
	if mod.ExportedFunction(exportAllocate) == nil || mod.Memory() == nil {
		_ = mod.Close(ctx)
		return nil, errors.New("guest must export memory and allocate")
	}
	inst.module = mod
	return inst, nil
}

// ExtensionID implements hostfuncs.Instance.
func (i *instance) ExtensionID() string { return i.spec.manifest.ID }

// WorkDir implements hostfuncs.Instance.
func (i *instance) WorkDir() string { return i.spec.workDir }

// Granter implements hostfuncs.Instance.
func (i *instance) Granter() ports.CapabilityGranter { return i.granter }

// Resource implements hostfuncs.Instance.
func (i *instance) Resource(handle uint32) (any, error) { return i.resources.Get(handle) }

// closed reports whether the module can no longer be called.
func (i *instance) closed() bool {
	return i.module.IsClosed()
}

func (i *instance) close(ctx context.Context) {
	if !i.module.IsClosed() {
		if err := i.module.Close(ctx); err != nil {
			i.spec.logger.WarnContext(ctx, "host: failed to close extension module", "extension", i.ExtensionID(), "error", err)
		}
	}
	i.resources.Clear()
	i.stdout.flush()
	i.stderr.flush()
}

// call marshals args, runs the guest export op and decodes its result
// envelope. The guest runs under an epoch deadline.
func (i *instance) call(ctx context.Context, op string, args any) (json.RawMessage, error) {
	id := i.ExtensionID()

	fn := i.module.ExportedFunction(op)
	if fn == nil {
		return nil, fmt.Errorf("%w: extension %s does not export %s", domainerrors.ErrOperationUnsupported, id, op)
	}

	payload, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s arguments: %w", op, err)
	}

	ctx = hostfuncs.WithRegistry(hostfuncs.WithInstance(ctx, i), i.spec.registry)
	ctx, done := i.spec.engine.withEpochDeadline(ctx)
	defer done()

	results, err := i.module.ExportedFunction(exportAllocate).Call(ctx, uint64(len(payload)))
	if err != nil {
		return nil, i.callError(ctx, op, err)
	}
	ptr := uint32(results[0]) //nolint:gosec // G115: WASM32 pointers are always 32-bit
	if !i.module.Memory().Write(ptr, payload) {
		return nil, &domainerrors.MalformedResponseError{Extension: id, Operation: op, Err: fmt.Errorf("allocate returned out-of-bounds pointer %d", ptr)}
	}

	results, err = fn.Call(ctx, uint64(ptr), uint64(len(payload)))
	if err != nil {
		return nil, i.callError(ctx, op, err)
	}

	rptr, rlen := wazeroadapter.UnpackPtrLen(results[0])
	data, ok := i.module.Memory().Read(rptr, rlen)
	if !ok {
		return nil, &domainerrors.MalformedResponseError{Extension: id, Operation: op, Err: fmt.Errorf("response [%d, +%d) is out of bounds", rptr, rlen)}
	}
	env, err := wireformat.Decode(data)
	if err != nil {
		return nil, &domainerrors.MalformedResponseError{Extension: id, Operation: op, Err: err}
	}
	if env.Err != nil {
		return nil, &domainerrors.ExtensionError{Extension: id, Code: env.Err.Code, Message: env.Err.Message}
	}
	return append(json.RawMessage(nil), env.Ok...), nil
}

func (i *instance) callError(ctx context.Context, op string, err error) error {
	if errors.Is(context.Cause(ctx), domainerrors.ErrEpochDeadline) {
		return &domainerrors.InterruptedError{Extension: i.ExtensionID(), Operation: op, Epoch: i.spec.engine.Epoch()}
	}
	return &domainerrors.TrapError{Extension: i.ExtensionID(), Operation: op, Err: err}
}

// pushResource stores obj for the duration of a call. The returned func
// removes it again.
func (i *instance) pushResource(obj any) (uint32, func(), error) {
	h, err := i.resources.Push(obj)
	if err != nil {
		return 0, nil, err
	}
	return h, func() { i.resources.Remove(h) }, nil
}

// outputWriter forwards guest stdio to the logger one line at a time.
type outputWriter struct {
	logger      *slog.Logger
	extensionID string
	stream      string
	buf         []byte
	level       slog.Level
	mu          sync.Mutex
}

func newOutputWriter(logger *slog.Logger, level slog.Level, extensionID, stream string) *outputWriter {
	return &outputWriter{logger: logger, level: level, extensionID: extensionID, stream: stream}
}

func (w *outputWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf = append(w.buf, p...)
	rest := w.buf
	for {
		nl := bytes.IndexByte(rest, '\n')
		if nl < 0 {
			break
		}
		w.emit(rest[:nl])
		rest = rest[nl+1:]
	}
	if len(rest) >= maxOutputLine {
		w.emit(rest)
		rest = nil
	}
	w.buf = append(w.buf[:0], rest...)
	return len(p), nil
}

func (w *outputWriter) flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.emit(w.buf)
	w.buf = w.buf[:0]
}

func (w *outputWriter) emit(line []byte) {
	line = bytes.TrimRight(line, "\r")
	if len(line) == 0 {
		return
	}
	w.logger.Log(context.Background(), w.level, "host: extension output",
		"extension", w.extensionID,
		"stream", w.stream,
		"line", string(line))
}
