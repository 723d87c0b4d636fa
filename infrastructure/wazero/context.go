package wazero

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/reglet-dev/exthost/hostfuncs"
	"github.com/tetratelabs/wazero/api"
)

// ExtensionName identifies the caller of a host function: the extension
// attached to the call context, falling back to the module name.
func ExtensionName(ctx context.Context, mod api.Module) string {
	if inst, ok := hostfuncs.InstanceFrom(ctx); ok {
		return inst.ExtensionID()
	}
	if mod == nil {
		return ""
	}
	return mod.Name()
}

// LogMessage is the payload of the log_message import.
type LogMessage struct {
	Attrs   map[string]any `json:"attrs,omitempty"`
	Level   string         `json:"level"`
	Message string         `json:"message"`
}

// LogMessageHandler returns the log_message import: (i64 packed) -> ().
// Guests log structured records through it; the host forwards them to logger
// tagged with the calling extension.
func LogMessageHandler(logger *slog.Logger) CustomHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return CustomHandler{
		Name:        "log_message",
		ParamTypes:  []api.ValueType{api.ValueTypeI64},
		ResultTypes: []api.ValueType{},
		Handler: func(ctx context.Context, mod api.Module, stack []uint64) {
			ptr, length := UnpackPtrLen(stack[0])
			if length > hostfuncs.DefaultMaxRequestSize {
				logger.WarnContext(ctx, "wazero: oversized log_message dropped", "extension", ExtensionName(ctx, mod), "size", length)
				return
			}
			payload, ok := mod.Memory().Read(ptr, length)
			if !ok {
				return
			}

			var msg LogMessage
			if err := json.Unmarshal(payload, &msg); err != nil {
				logger.InfoContext(ctx, "wazero: extension log (raw)", "extension", ExtensionName(ctx, mod), "payload", string(payload))
				return
			}

			var level slog.Level
			if err := level.UnmarshalText([]byte(msg.Level)); err != nil {
				level = slog.LevelInfo
			}
			args := make([]any, 0, 2+2*len(msg.Attrs))
			args = append(args, "extension", ExtensionName(ctx, mod))
			for k, v := range msg.Attrs {
				args = append(args, k, v)
			}
			logger.Log(ctx, level, msg.Message, args...)
		},
	}
}
