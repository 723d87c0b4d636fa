package host

import (
	"slices"

	"github.com/reglet-dev/exthost/domain/entities"
)

// Guest export names, one per operation.
const (
	OpLanguageServerCommand                          = "language_server_command"
	OpLanguageServerInitializationOptions            = "language_server_initialization_options"
	OpLanguageServerWorkspaceConfiguration           = "language_server_workspace_configuration"
	OpLanguageServerAdditionalInitializationOptions  = "language_server_additional_initialization_options"
	OpLanguageServerAdditionalWorkspaceConfiguration = "language_server_additional_workspace_configuration"
	OpLabelsForCompletions                           = "labels_for_completions"
	OpLabelsForSymbols                               = "labels_for_symbols"
	OpCompleteSlashCommandArgument                   = "complete_slash_command_argument"
	OpRunSlashCommand                                = "run_slash_command"
	OpContextServerCommand                           = "context_server_command"
	OpContextServerConfiguration                     = "context_server_configuration"
	OpKeyValueStoreOpen                              = "key_value_store_open"
	OpRunDebugTask                                   = "run_debug_task"
)

// operationSince is the first interface version that carries each operation.
var operationSince = map[string]entities.SemanticVersion{
	OpLanguageServerCommand:                          entities.NewSemanticVersion(0, 1, 0),
	OpLanguageServerInitializationOptions:            entities.NewSemanticVersion(0, 1, 0),
	OpLanguageServerWorkspaceConfiguration:           entities.NewSemanticVersion(0, 1, 0),
	OpLabelsForCompletions:                           entities.NewSemanticVersion(0, 1, 0),
	OpLabelsForSymbols:                               entities.NewSemanticVersion(0, 1, 0),
	OpCompleteSlashCommandArgument:                   entities.NewSemanticVersion(0, 1, 0),
	OpRunSlashCommand:                                entities.NewSemanticVersion(0, 1, 0),
	OpKeyValueStoreOpen:                              entities.NewSemanticVersion(0, 1, 0),
	OpContextServerCommand:                           entities.NewSemanticVersion(0, 2, 0),
	OpLanguageServerAdditionalInitializationOptions:  entities.NewSemanticVersion(0, 4, 0),
	OpLanguageServerAdditionalWorkspaceConfiguration: entities.NewSemanticVersion(0, 4, 0),
	OpContextServerConfiguration:                     entities.NewSemanticVersion(0, 5, 0),
	OpRunDebugTask:                                   entities.NewSemanticVersion(0, 6, 0),
}

// Operations lists every operation name, sorted.
func Operations() []string {
	ops := make([]string, 0, len(operationSince))
	for op := range operationSince {
		ops = append(ops, op)
	}
	slices.Sort(ops)
	return ops
}

// OperationsAt lists the operations an extension built against v exposes.
func OperationsAt(v entities.SemanticVersion) []string {
	return bindingsFor(v).available()
}

// bindings is the operation set selected by an extension's interface version.
type bindings struct {
	version entities.SemanticVersion
}

func bindingsFor(v entities.SemanticVersion) bindings {
	return bindings{version: v}
}

// supports reports whether op exists at the bound interface version.
func (b bindings) supports(op string) bool {
	since, ok := operationSince[op]
	return ok && !b.version.Less(since)
}

// available lists the operations of the bound version, sorted.
func (b bindings) available() []string {
	var ops []string
	for _, op := range Operations() {
		if b.supports(op) {
			ops = append(ops, op)
		}
	}
	return ops
}
