package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/reglet-dev/exthost/application/loader"
	"github.com/reglet-dev/exthost/domain/entities"
	"github.com/reglet-dev/exthost/host"
	"github.com/reglet-dev/exthost/infrastructure/delegates"
	"github.com/spf13/cobra"
)

type callOptions struct {
	worktree string
	serverID string
	language string
	target   string
	command  string
	store    string
	input    string
}

// callEnv is what an operation may need besides its flags.
type callEnv struct {
	worktree *delegates.LocalWorktree
	project  *delegates.Project
	args     []string
	input    func() ([]byte, error)
}

// debugTaskInput is the --input document for run_debug_task.
type debugTaskInput struct {
	Definition entities.DebugTaskDefinition `json:"definition"`
	BuildTask  entities.TaskTemplate        `json:"build_task"`
	Scenario   entities.DebugScenario       `json:"scenario"`
}

func newCallCmd(g *globals) *cobra.Command {
	var o callOptions

	cmd := &cobra.Command{
		Use:   "call <extension dir> <operation> [args...]",
		Short: "Load one extension and call one operation",
		Long: `Call loads a single extension and invokes one operation, printing the
result as JSON. Operations that take structured input (labels_for_completions,
labels_for_symbols, run_debug_task) read it from --input; use "-" for stdin.
Slash command operations take the command's arguments as extra arguments.

Operations: ` + strings.Join(host.Operations(), ", "),
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			dir, op := args[0], args[1]
			if !isOperation(op) {
				return fmt.Errorf("unknown operation %q", op)
			}

			l, err := loader.NewLoader()
			if err != nil {
				return err
			}
			e, err := l.LoadDir(dir)
			if err != nil {
				return err
			}

			wt, err := delegates.OpenWorktree(1, o.worktree)
			if err != nil {
				return err
			}
			defer func() { _ = wt.Close() }()

			rt, err := newHostRuntime(ctx, g.cfg, g.logger)
			if err != nil {
				return err
			}
			ext, err := rt.host.LoadExtension(ctx, e.Wasm, e.Manifest)
			if err != nil {
				rt.close(ctx)
				return err
			}
			defer rt.close(ctx, ext)

			env := callEnv{
				worktree: wt,
				project:  delegates.NewProject(wt),
				args:     args[2:],
				input:    func() ([]byte, error) { return readInput(cmd.InOrStdin(), o.input, op) },
			}
			result, err := callOperation(ctx, ext, op, o, env)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}

	cmd.Flags().StringVarP(&o.worktree, "worktree", "w", ".", "Worktree root passed to the extension")
	cmd.Flags().StringVar(&o.serverID, "server-id", "", "Language server or context server id")
	cmd.Flags().StringVar(&o.language, "language", "", "Language name for language server operations")
	cmd.Flags().StringVar(&o.target, "target-server-id", "", "Target language server id for additional options")
	cmd.Flags().StringVar(&o.command, "command", "", "Slash command name, as declared in the manifest")
	cmd.Flags().StringVar(&o.store, "store", "default", "Key-value store name for key_value_store_open")
	cmd.Flags().StringVarP(&o.input, "input", "i", "", "JSON input file, or - for stdin")
	return cmd
}

func isOperation(op string) bool {
	return slices.Contains(host.Operations(), op)
}

func callOperation(ctx context.Context, ext *host.WasmExtension, op string, o callOptions, env callEnv) (any, error) {
	switch op {
	case host.OpLanguageServerCommand:
		return ext.LanguageServerCommand(ctx, o.serverID, o.language, env.worktree)
	case host.OpLanguageServerInitializationOptions:
		return ext.LanguageServerInitializationOptions(ctx, o.serverID, o.language, env.worktree)
	case host.OpLanguageServerWorkspaceConfiguration:
		return ext.LanguageServerWorkspaceConfiguration(ctx, o.serverID, env.worktree)
	case host.OpLanguageServerAdditionalInitializationOptions:
		return ext.LanguageServerAdditionalInitializationOptions(ctx, o.serverID, o.target, env.worktree)
	case host.OpLanguageServerAdditionalWorkspaceConfiguration:
		return ext.LanguageServerAdditionalWorkspaceConfiguration(ctx, o.serverID, o.target, env.worktree)

	case host.OpLabelsForCompletions:
		var completions []entities.Completion
		if err := decodeInput(env, &completions); err != nil {
			return nil, err
		}
		return ext.LabelsForCompletions(ctx, o.serverID, completions)
	case host.OpLabelsForSymbols:
		var symbols []entities.Symbol
		if err := decodeInput(env, &symbols); err != nil {
			return nil, err
		}
		return ext.LabelsForSymbols(ctx, o.serverID, symbols)

	case host.OpCompleteSlashCommandArgument:
		command, err := slashCommand(ext.Manifest(), o.command)
		if err != nil {
			return nil, err
		}
		return ext.CompleteSlashCommandArgument(ctx, command, env.args)
	case host.OpRunSlashCommand:
		command, err := slashCommand(ext.Manifest(), o.command)
		if err != nil {
			return nil, err
		}
		return ext.RunSlashCommand(ctx, command, env.args, env.worktree)

	case host.OpContextServerCommand:
		return ext.ContextServerCommand(ctx, o.serverID, env.project)
	case host.OpContextServerConfiguration:
		return ext.ContextServerConfiguration(ctx, o.serverID, env.project)

	case host.OpKeyValueStoreOpen:
		store := delegates.NewMemoryStore()
		if err := ext.KeyValueStoreOpen(ctx, o.store, store); err != nil {
			return nil, err
		}
		return map[string]any{"store": o.store, "entries": store.Len()}, nil

	case host.OpRunDebugTask:
		var in debugTaskInput
		if err := decodeInput(env, &in); err != nil {
			return nil, err
		}
		return ext.RunDebugTask(ctx, in.Definition, in.BuildTask, in.Scenario)
	}
	return nil, fmt.Errorf("unknown operation %q", op)
}

func slashCommand(m *entities.ExtensionManifest, name string) (entities.SlashCommand, error) {
	if name == "" {
		return entities.SlashCommand{}, errors.New("--command is required")
	}
	entry, ok := m.SlashCommands[name]
	if !ok {
		return entities.SlashCommand{}, fmt.Errorf("extension %s declares no slash command %q", m.ID, name)
	}
	return entities.SlashCommand{
		Name:             name,
		Description:      entry.Description,
		RequiresArgument: entry.RequiresArgument,
	}, nil
}

func decodeInput(env callEnv, v any) error {
	data, err := env.input()
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("invalid --input: %w", err)
	}
	return nil
}

func readInput(stdin io.Reader, path, op string) ([]byte, error) {
	switch path {
	case "":
		return nil, fmt.Errorf("--input is required for %s", op)
	case "-":
		return io.ReadAll(stdin)
	default:
		return os.ReadFile(path)
	}
}
