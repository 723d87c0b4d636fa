package settings

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/reglet-dev/exthost/domain/ports"
	"github.com/reglet-dev/exthost/hostfuncs"
)

// StaticProvider serves settings from a fixed category/key tree. The
// location is ignored: every worktree sees the same values.
type StaticProvider struct {
	values map[string]map[string]any
}

var _ ports.SettingsProvider = (*StaticProvider)(nil)

// NewStaticProvider creates a provider over values.
func NewStaticProvider(values map[string]map[string]any) *StaticProvider {
	return &StaticProvider{values: values}
}

// Settings returns one key, or the whole category when key is empty.
// An unknown category is NOT_FOUND; an unknown key is JSON null.
func (p *StaticProvider) Settings(_ context.Context, _ *ports.SettingsLocation, category, key string) (json.RawMessage, error) {
	values, ok := p.values[category]
	if !ok {
		return nil, hostfuncs.ErrorResponse{
			Error:   "NOT_FOUND",
			Type:    "validation",
			Message: "unknown settings category: " + category,
			Code:    404,
		}.Err()
	}

	var v any = values
	if key != "" {
		v = values[key]
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("settings: encode %s.%s: %w", category, key, err)
	}
	return raw, nil
}

// App is a ports.AppContext over a settings provider.
type App struct {
	provider ports.SettingsProvider
}

var _ ports.AppContext = App{}

// NewApp creates an application context.
func NewApp(provider ports.SettingsProvider) App {
	return App{provider: provider}
}

func (a App) Settings() ports.SettingsProvider { return a.provider }
