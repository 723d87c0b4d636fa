package hostfuncs

import (
	"context"
	"encoding/json"

	"github.com/reglet-dev/exthost/domain/ports"
	"github.com/reglet-dev/exthost/wireformat"
)

// SettingsReader reads live application settings. The host implements it by
// relaying onto its main-context queue.
type SettingsReader interface {
	ReadSettings(ctx context.Context, location *ports.SettingsLocation, category, key string) (json.RawMessage, error)
}

// SettingsBundle returns the settings host function: get_settings.
func SettingsBundle(reader SettingsReader) HostFuncBundle {
	return &staticBundle{
		handlers: map[string]ByteHandler{
			FuncGetSettings: NewJSONHandler(func(ctx context.Context, req wireformat.SettingsRequest) (json.RawMessage, error) {
				if req.Category == "" {
					return nil, NewValidationError("category is required").Err()
				}
				var loc *ports.SettingsLocation
				if req.Location != nil {
					loc = &ports.SettingsLocation{WorktreeID: req.Location.WorktreeID, Path: req.Location.Path}
				}
				return reader.ReadSettings(ctx, loc, req.Category, req.Key)
			}),
		},
	}
}
