package hostfuncs

import (
	"context"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
)

// envClass is how process_exec treats one environment variable.
type envClass int

const (
	envPassed envClass = iota
	envBlocked
	envGated
)

// Variables that inject code into every process the extension starts.
// No grant allows them.
var (
	blockedEnvPrefixes = []string{"LD_", "DYLD_"}
	blockedEnv         = []string{"IFS", "LOCPATH", "BASH_ENV", "ENV", "PS4", "PROMPT_COMMAND"}
)

// Variables that change which binary or module a language server resolves.
// They pass only when the CapabilityGetter allows "env:<NAME>".
var gatedEnv = []string{
	"PATH", "HOME", "CDPATH",
	"NODE_OPTIONS", "NODE_PATH", "NPM_CONFIG_SCRIPT_SHELL",
	"PYTHONPATH", "PYTHONHOME", "PYTHONSTARTUP",
	"RUBYLIB", "PERL5LIB", "LUA_PATH", "LUA_CPATH",
	"RUSTC_WRAPPER", "GIT_SSH_COMMAND", "GIT_EXEC_PATH",
}

// CapabilityGetter reports whether extensionID may set the variable named by
// capability, which has the form "env:<NAME>".
type CapabilityGetter func(extensionID, capability string) bool

func classifyEnv(name string) envClass {
	upper := strings.ToUpper(name)
	for _, prefix := range blockedEnvPrefixes {
		if strings.HasPrefix(upper, prefix) {
			return envBlocked
		}
	}
	switch {
	case slices.Contains(blockedEnv, upper):
		return envBlocked
	case slices.Contains(gatedEnv, upper):
		return envGated
	default:
		return envPassed
	}
}

// SanitizeEnv drops blocked variables, ungranted gated variables and
// malformed entries from env. Dropped names are logged once per call.
func SanitizeEnv(ctx context.Context, env []string, extensionID string, allow CapabilityGetter) []string {
	if len(env) == 0 {
		return env
	}

	kept := make([]string, 0, len(env))
	var blocked, ungranted []string
	for _, kv := range env {
		name, _, ok := strings.Cut(kv, "=")
		if !ok || name == "" {
			blocked = append(blocked, kv)
			continue
		}
		switch classifyEnv(name) {
		case envBlocked:
			blocked = append(blocked, name)
			continue
		case envGated:
			if allow == nil || !allow(extensionID, "env:"+strings.ToUpper(name)) {
				ungranted = append(ungranted, name)
				continue
			}
		}
		kept = append(kept, kv)
	}

	if len(blocked) > 0 || len(ungranted) > 0 {
		slog.WarnContext(ctx, "hostfuncs: process_exec environment filtered",
			"extension", extensionID,
			"blocked", blocked,
			"ungranted", ungranted)
	}
	return kept
}

// ExecutionKind describes what a granted command line actually runs.
type ExecutionKind string

const (
	ExecutionBinary     ExecutionKind = "binary"
	ExecutionShell      ExecutionKind = "shell script"
	ExecutionInlineCode ExecutionKind = "inline interpreter code"
)

var shells = []string{"sh", "bash", "dash", "zsh", "ksh", "csh", "tcsh", "fish", "pwsh", "powershell", "cmd"}

// inlineCodeFlags maps an interpreter, without version suffix, to the flags
// that make it run code from the command line.
var inlineCodeFlags = map[string][]string{
	"python": {"-c"},
	"perl":   {"-e", "-E"},
	"ruby":   {"-e"},
	"node":   {"-e", "--eval", "-p", "--print"},
	"nodejs": {"-e", "--eval", "-p", "--print"},
	"deno":   {"eval"},
	"bun":    {"-e", "--eval"},
	"php":    {"-r"},
	"lua":    {"-e"},
	"luajit": {"-e"},
	"tclsh":  {"-c"},
}

// ClassifyExecution reports whether command runs a shell script, inline
// interpreter code, or just a binary.
func ClassifyExecution(command string, args []string) ExecutionKind {
	base := interpreterName(command)
	if slices.Contains(shells, base) && len(args) > 0 {
		return ExecutionShell
	}
	for _, arg := range args {
		for _, flag := range inlineCodeFlags[base] {
			if arg == flag || strings.HasPrefix(arg, flag+"=") {
				return ExecutionInlineCode
			}
		}
	}
	return ExecutionBinary
}

// interpreterName strips the directory, a Windows executable suffix and a
// version suffix: /usr/bin/python3.12 becomes python.
func interpreterName(command string) string {
	base := filepath.Base(strings.ReplaceAll(command, `\`, "/"))
	base = strings.TrimSuffix(strings.ToLower(base), ".exe")
	return strings.TrimRight(base, "0123456789.")
}
