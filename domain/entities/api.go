package entities

import "encoding/json"

// Types exchanged with extensions over the typed call surface.

// EnvVar is one environment entry of a Command.
type EnvVar struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Command is a process launch description returned by an extension.
type Command struct {
	Command string   `json:"command" validate:"required"`
	Args    []string `json:"args"`
	Env     []EnvVar `json:"env"`
}

// Range is a half-open byte range.
type Range struct {
	Start uint32 `json:"start"`
	End   uint32 `json:"end"`
}

// CodeLabelSpanLiteral is literal text inserted into a code label.
type CodeLabelSpanLiteral struct {
	HighlightName *string `json:"highlight_name,omitempty"`
	Text          string  `json:"text"`
}

// CodeLabelSpan is either a range of the label's code or a literal.
type CodeLabelSpan struct {
	CodeRange *Range                `json:"code_range,omitempty"`
	Literal   *CodeLabelSpanLiteral `json:"literal,omitempty"`
}

// CodeLabel is a syntax-highlightable label for a completion or symbol.
type CodeLabel struct {
	Code        string          `json:"code"`
	Spans       []CodeLabelSpan `json:"spans"`
	FilterRange Range           `json:"filter_range"`
}

// Completion is a language server completion item to be labeled.
type Completion struct {
	Detail           *string `json:"detail,omitempty"`
	Kind             *int    `json:"kind,omitempty"`
	InsertTextFormat *int    `json:"insert_text_format,omitempty"`
	Label            string  `json:"label"`
}

// Symbol is a language server symbol to be labeled.
type Symbol struct {
	Name string `json:"name"`
	Kind int    `json:"kind"`
}

// SlashCommand describes the slash command being invoked.
type SlashCommand struct {
	Name             string `json:"name"`
	Description      string `json:"description"`
	Tooltip          string `json:"tooltip_text"`
	RequiresArgument bool   `json:"requires_argument"`
}

// SlashCommandArgumentCompletion is one argument suggestion.
type SlashCommandArgumentCompletion struct {
	Label      string `json:"label"`
	NewText    string `json:"new_text"`
	RunCommand bool   `json:"run_command"`
}

// SlashCommandOutputSection labels a range of the output text.
type SlashCommandOutputSection struct {
	Label string `json:"label"`
	Range Range  `json:"range"`
}

// SlashCommandOutput is the result of running a slash command.
type SlashCommandOutput struct {
	Text     string                      `json:"text"`
	Sections []SlashCommandOutputSection `json:"sections"`
}

// ContextServerConfiguration describes how to configure a context server.
type ContextServerConfiguration struct {
	SettingsSchema           json.RawMessage `json:"settings_schema"`
	InstallationInstructions string          `json:"installation_instructions"`
	DefaultSettings          string          `json:"default_settings"`
}

// TCPArgumentsTemplate holds optional connection settings for a debug adapter.
type TCPArgumentsTemplate struct {
	Port    *uint16 `json:"port,omitempty"`
	Host    *string `json:"host,omitempty"`
	Timeout *uint64 `json:"timeout,omitempty"`
}

// DebugTaskDefinition is the user-facing debug task.
type DebugTaskDefinition struct {
	TCPConnection *TCPArgumentsTemplate `json:"tcp_connection,omitempty"`
	Config        json.RawMessage       `json:"config"`
	Label         string                `json:"label"`
	Adapter       string                `json:"adapter"`
}

// TaskTemplate is the build task a debug scenario may depend on.
type TaskTemplate struct {
	Env     map[string]string `json:"env,omitempty"`
	Label   string            `json:"label"`
	Command string            `json:"command"`
	Cwd     string            `json:"cwd,omitempty"`
	Args    []string          `json:"args,omitempty"`
}

// DebugScenario is a resolved debug configuration.
type DebugScenario struct {
	TCPConnection *TCPArgumentsTemplate `json:"tcp_connection,omitempty"`
	Build         *TaskTemplate         `json:"build,omitempty"`
	Config        json.RawMessage       `json:"config"`
	Adapter       string                `json:"adapter"`
	Label         string                `json:"label"`
}

// Debug request kinds.
const (
	DebugRequestLaunch = "launch"
	DebugRequestAttach = "attach"
)

// StartDebuggingRequestArguments is what the extension resolves a debug task into.
type StartDebuggingRequestArguments struct {
	Configuration json.RawMessage `json:"configuration"`
	Request       string          `json:"request" validate:"oneof=launch attach"`
}
