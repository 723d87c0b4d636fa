package host

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/reglet-dev/exthost/domain/entities"
	domainerrors "github.com/reglet-dev/exthost/domain/errors"
	"github.com/reglet-dev/exthost/domain/ports"
	"github.com/reglet-dev/exthost/wireformat"
)

var errNilDelegate = errors.New("delegate is required")

// guestCall runs op on inst and decodes the ok value into T.
func guestCall[T any](ctx context.Context, inst *instance, op string, args any) (T, error) {
	var out T
	raw, err := inst.call(ctx, op, args)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, &domainerrors.MalformedResponseError{Extension: inst.ExtensionID(), Operation: op, Err: err}
	}
	return out, nil
}

// withResource pushes delegate into the instance's table for the duration of fn.
func withResource[T any](inst *instance, delegate any, fn func(handle uint32) (T, error)) (T, error) {
	var zero T
	if delegate == nil {
		return zero, errNilDelegate
	}
	h, release, err := inst.pushResource(delegate)
	if err != nil {
		return zero, err
	}
	defer release()
	return fn(h)
}

// LanguageServerCommand resolves how to launch a language server.
func (e *WasmExtension) LanguageServerCommand(ctx context.Context, serverID, languageName string, worktree ports.WorktreeDelegate) (*entities.Command, error) {
	if worktree == nil {
		return nil, errNilDelegate
	}
	return call(ctx, e, OpLanguageServerCommand, func(ctx context.Context, inst *instance) (*entities.Command, error) {
		return withResource(inst, worktree, func(h uint32) (*entities.Command, error) {
			return guestCall[*entities.Command](ctx, inst, OpLanguageServerCommand, wireformat.LanguageServerArgs{
				LanguageServerID: serverID,
				LanguageName:     languageName,
				Worktree:         h,
			})
		})
	})
}

// LanguageServerInitializationOptions returns the JSON initialization
// options for a language server, or nil when the extension has none.
func (e *WasmExtension) LanguageServerInitializationOptions(ctx context.Context, serverID, languageName string, worktree ports.WorktreeDelegate) (*string, error) {
	if worktree == nil {
		return nil, errNilDelegate
	}
	return call(ctx, e, OpLanguageServerInitializationOptions, func(ctx context.Context, inst *instance) (*string, error) {
		return withResource(inst, worktree, func(h uint32) (*string, error) {
			return guestCall[*string](ctx, inst, OpLanguageServerInitializationOptions, wireformat.LanguageServerArgs{
				LanguageServerID: serverID,
				LanguageName:     languageName,
				Worktree:         h,
			})
		})
	})
}

// LanguageServerWorkspaceConfiguration returns the JSON workspace
// configuration for a language server, or nil.
func (e *WasmExtension) LanguageServerWorkspaceConfiguration(ctx context.Context, serverID string, worktree ports.WorktreeDelegate) (*string, error) {
	if worktree == nil {
		return nil, errNilDelegate
	}
	return call(ctx, e, OpLanguageServerWorkspaceConfiguration, func(ctx context.Context, inst *instance) (*string, error) {
		return withResource(inst, worktree, func(h uint32) (*string, error) {
			return guestCall[*string](ctx, inst, OpLanguageServerWorkspaceConfiguration, wireformat.LanguageServerArgs{
				LanguageServerID: serverID,
				Worktree:         h,
			})
		})
	})
}

// LanguageServerAdditionalInitializationOptions returns initialization
// options the extension contributes to another language server.
func (e *WasmExtension) LanguageServerAdditionalInitializationOptions(ctx context.Context, serverID, targetServerID string, worktree ports.WorktreeDelegate) (*string, error) {
	if worktree == nil {
		return nil, errNilDelegate
	}
	return call(ctx, e, OpLanguageServerAdditionalInitializationOptions, func(ctx context.Context, inst *instance) (*string, error) {
		return withResource(inst, worktree, func(h uint32) (*string, error) {
			return guestCall[*string](ctx, inst, OpLanguageServerAdditionalInitializationOptions, wireformat.LanguageServerArgs{
				LanguageServerID:       serverID,
				TargetLanguageServerID: targetServerID,
				Worktree:               h,
			})
		})
	})
}

// LanguageServerAdditionalWorkspaceConfiguration returns workspace
// configuration the extension contributes to another language server.
func (e *WasmExtension) LanguageServerAdditionalWorkspaceConfiguration(ctx context.Context, serverID, targetServerID string, worktree ports.WorktreeDelegate) (*string, error) {
	if worktree == nil {
		return nil, errNilDelegate
	}
	return call(ctx, e, OpLanguageServerAdditionalWorkspaceConfiguration, func(ctx context.Context, inst *instance) (*string, error) {
		return withResource(inst, worktree, func(h uint32) (*string, error) {
			return guestCall[*string](ctx, inst, OpLanguageServerAdditionalWorkspaceConfiguration, wireformat.LanguageServerArgs{
				LanguageServerID:       serverID,
				TargetLanguageServerID: targetServerID,
				Worktree:               h,
			})
		})
	})
}

// LabelsForCompletions labels completion items. The result is positional;
// a nil entry leaves the item unlabeled.
func (e *WasmExtension) LabelsForCompletions(ctx context.Context, serverID string, completions []entities.Completion) ([]*entities.CodeLabel, error) {
	if completions == nil {
		completions = []entities.Completion{}
	}
	return call(ctx, e, OpLabelsForCompletions, func(ctx context.Context, inst *instance) ([]*entities.CodeLabel, error) {
		return guestCall[[]*entities.CodeLabel](ctx, inst, OpLabelsForCompletions, wireformat.CompletionLabelsArgs{
			LanguageServerID: serverID,
			Completions:      completions,
		})
	})
}

// LabelsForSymbols labels symbols. The result is positional.
func (e *WasmExtension) LabelsForSymbols(ctx context.Context, serverID string, symbols []entities.Symbol) ([]*entities.CodeLabel, error) {
	if symbols == nil {
		symbols = []entities.Symbol{}
	}
	return call(ctx, e, OpLabelsForSymbols, func(ctx context.Context, inst *instance) ([]*entities.CodeLabel, error) {
		return guestCall[[]*entities.CodeLabel](ctx, inst, OpLabelsForSymbols, wireformat.SymbolLabelsArgs{
			LanguageServerID: serverID,
			Symbols:          symbols,
		})
	})
}

// CompleteSlashCommandArgument suggests completions for a slash command argument.
func (e *WasmExtension) CompleteSlashCommandArgument(ctx context.Context, command entities.SlashCommand, arguments []string) ([]entities.SlashCommandArgumentCompletion, error) {
	if arguments == nil {
		arguments = []string{}
	}
	return call(ctx, e, OpCompleteSlashCommandArgument, func(ctx context.Context, inst *instance) ([]entities.SlashCommandArgumentCompletion, error) {
		return guestCall[[]entities.SlashCommandArgumentCompletion](ctx, inst, OpCompleteSlashCommandArgument, wireformat.SlashCommandArgs{
			Command:   command,
			Arguments: arguments,
		})
	})
}

// RunSlashCommand runs a slash command. worktree may be nil.
func (e *WasmExtension) RunSlashCommand(ctx context.Context, command entities.SlashCommand, arguments []string, worktree ports.WorktreeDelegate) (*entities.SlashCommandOutput, error) {
	if arguments == nil {
		arguments = []string{}
	}
	return call(ctx, e, OpRunSlashCommand, func(ctx context.Context, inst *instance) (*entities.SlashCommandOutput, error) {
		args := wireformat.SlashCommandArgs{Command: command, Arguments: arguments}
		if worktree == nil {
			return guestCall[*entities.SlashCommandOutput](ctx, inst, OpRunSlashCommand, args)
		}
		return withResource(inst, worktree, func(h uint32) (*entities.SlashCommandOutput, error) {
			args.Worktree = &h
			return guestCall[*entities.SlashCommandOutput](ctx, inst, OpRunSlashCommand, args)
		})
	})
}

// ContextServerCommand resolves how to launch a context server.
func (e *WasmExtension) ContextServerCommand(ctx context.Context, contextServerID string, project ports.ProjectDelegate) (*entities.Command, error) {
	if project == nil {
		return nil, errNilDelegate
	}
	return call(ctx, e, OpContextServerCommand, func(ctx context.Context, inst *instance) (*entities.Command, error) {
		return withResource(inst, project, func(h uint32) (*entities.Command, error) {
			return guestCall[*entities.Command](ctx, inst, OpContextServerCommand, wireformat.ContextServerArgs{
				ContextServerID: contextServerID,
				Project:         h,
			})
		})
	})
}

// ContextServerConfiguration returns how a context server is configured, or
// nil when the extension has nothing to offer.
func (e *WasmExtension) ContextServerConfiguration(ctx context.Context, contextServerID string, project ports.ProjectDelegate) (*entities.ContextServerConfiguration, error) {
	if project == nil {
		return nil, errNilDelegate
	}
	return call(ctx, e, OpContextServerConfiguration, func(ctx context.Context, inst *instance) (*entities.ContextServerConfiguration, error) {
		return withResource(inst, project, func(h uint32) (*entities.ContextServerConfiguration, error) {
			return guestCall[*entities.ContextServerConfiguration](ctx, inst, OpContextServerConfiguration, wireformat.ContextServerArgs{
				ContextServerID: contextServerID,
				Project:         h,
			})
		})
	})
}

// KeyValueStoreOpen hands the extension a named store it may insert into
// for the duration of the call.
func (e *WasmExtension) KeyValueStoreOpen(ctx context.Context, name string, store ports.KeyValueStoreDelegate) error {
	if store == nil {
		return errNilDelegate
	}
	_, err := call(ctx, e, OpKeyValueStoreOpen, func(ctx context.Context, inst *instance) (json.RawMessage, error) {
		return withResource(inst, store, func(h uint32) (json.RawMessage, error) {
			return inst.call(ctx, OpKeyValueStoreOpen, wireformat.KeyValueStoreOpenArgs{Name: name, KeyValueStore: h})
		})
	})
	return err
}

// RunDebugTask resolves a debug task into the request a debug adapter is
// started with.
func (e *WasmExtension) RunDebugTask(ctx context.Context, definition entities.DebugTaskDefinition, buildTask entities.TaskTemplate, scenario entities.DebugScenario) (*entities.StartDebuggingRequestArguments, error) {
	return call(ctx, e, OpRunDebugTask, func(ctx context.Context, inst *instance) (*entities.StartDebuggingRequestArguments, error) {
		return guestCall[*entities.StartDebuggingRequestArguments](ctx, inst, OpRunDebugTask, wireformat.DebugTaskArgs{
			Definition: definition,
			BuildTask:  buildTask,
			Scenario:   scenario,
		})
	})
}
