package wireformat

import "github.com/reglet-dev/exthost/domain/entities"

// Guest export argument objects. Delegates travel as resource handles that
// are only valid for the duration of the call.

// LanguageServerArgs addresses a language server in a worktree.
type LanguageServerArgs struct {
	LanguageServerID       string `json:"language_server_id"`
	LanguageName           string `json:"language_name,omitempty"`
	TargetLanguageServerID string `json:"target_language_server_id,omitempty"`
	Worktree               uint32 `json:"worktree"`
}

// CompletionLabelsArgs asks for labels of completion items.
type CompletionLabelsArgs struct {
	LanguageServerID string                `json:"language_server_id"`
	Completions      []entities.Completion `json:"completions"`
}

// SymbolLabelsArgs asks for labels of symbols.
type SymbolLabelsArgs struct {
	LanguageServerID string            `json:"language_server_id"`
	Symbols          []entities.Symbol `json:"symbols"`
}

// SlashCommandArgs invokes or completes a slash command.
type SlashCommandArgs struct {
	Worktree  *uint32               `json:"worktree"`
	Command   entities.SlashCommand `json:"command"`
	Arguments []string              `json:"arguments"`
}

// ContextServerArgs addresses a context server in a project.
type ContextServerArgs struct {
	ContextServerID string `json:"context_server_id"`
	Project         uint32 `json:"project"`
}

// KeyValueStoreOpenArgs hands the extension a named key-value store.
type KeyValueStoreOpenArgs struct {
	Name          string `json:"name"`
	KeyValueStore uint32 `json:"key_value_store"`
}

// DebugTaskArgs resolves a debug task into a launch request.
type DebugTaskArgs struct {
	Definition entities.DebugTaskDefinition `json:"definition"`
	BuildTask  entities.TaskTemplate        `json:"build_task"`
	Scenario   entities.DebugScenario       `json:"scenario"`
}
