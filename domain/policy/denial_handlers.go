package policy

import (
	"log/slog"

	"github.com/reglet-dev/exthost/domain/entities"
	"github.com/reglet-dev/exthost/domain/ports"
)

// Ensure implementations satisfy the interface.
var _ ports.DenialHandler = (*LogDenialHandler)(nil)
var _ ports.DenialHandler = (*NopDenialHandler)(nil)
var _ ports.DenialHandler = (MultiDenialHandler)(nil)

// LogDenialHandler logs denials through slog.
type LogDenialHandler struct {
	Logger *slog.Logger
}

func (h *LogDenialHandler) OnDenial(extensionID string, op entities.Operation, reason string) {
	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Warn("policy: capability denied",
		"extension", extensionID,
		"kind", op.Kind(),
		"operation", op.String(),
		"reason", reason)
}

// NopDenialHandler does nothing.
type NopDenialHandler struct{}

func (h *NopDenialHandler) OnDenial(string, entities.Operation, string) {}

// MultiDenialHandler fans a denial out to several handlers in order.
type MultiDenialHandler []ports.DenialHandler

func (m MultiDenialHandler) OnDenial(extensionID string, op entities.Operation, reason string) {
	for _, h := range m {
		if h != nil {
			h.OnDenial(extensionID, op, reason)
		}
	}
}
