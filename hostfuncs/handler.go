package hostfuncs

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/reglet-dev/exthost/wireformat"
)

// HostFunc is a generic function signature for host functions.
// It accepts a context and a typed request, and returns a typed response or an error.
// Errors are reported to the guest as the "err" side of the result envelope.
type HostFunc[Req any, Resp any] func(context.Context, Req) (Resp, error)

// ByteHandler is a function that accepts raw bytes (JSON) and returns raw bytes (JSON).
// This is the common interface that WASM runtimes can easily use.
// A returned Go error means the response could not be produced at all.
type ByteHandler func(context.Context, []byte) ([]byte, error)

// NewJSONHandler wraps a typed HostFunc into a ByteHandler.
// It decodes the request, invokes fn, and encodes the result envelope.
//
// Usage:
//
//	whichHandler := hostfuncs.NewJSONHandler(func(ctx context.Context, req wireformat.WhichRequest) (*string, error) {
//	    return lookupBinary(ctx, req)
//	})
func NewJSONHandler[Req any, Resp any](fn HostFunc[Req, Resp]) ByteHandler {
	return func(ctx context.Context, payload []byte) ([]byte, error) {
		var req Req
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &req); err != nil {
				return NewValidationError("invalid request: " + err.Error()).ToJSON(), nil
			}
		}

		resp, err := fn(ctx, req)
		if err != nil {
			return ErrorFrom(err).ToJSON(), nil
		}

		respBytes, err := wireformat.EncodeOk(resp)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal response: %w", err)
		}
		return respBytes, nil
	}
}
