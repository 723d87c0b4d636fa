package ports

import (
	"context"
	"encoding/json"
)

// SettingsLocation scopes a settings lookup to a worktree path.
type SettingsLocation struct {
	WorktreeID uint64 `json:"worktree_id"`
	Path       string `json:"path"`
}

// SettingsProvider reads live application settings. It is only called from
// the host's main-context relay, never from an extension goroutine.
type SettingsProvider interface {
	Settings(ctx context.Context, location *SettingsLocation, category, key string) (json.RawMessage, error)
}

// AppContext is the host application context owned by the main-context relay.
type AppContext interface {
	Settings() SettingsProvider
}
