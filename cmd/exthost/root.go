package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/reglet-dev/exthost/application/config"
	"github.com/spf13/cobra"
)

// globals holds the state shared by every subcommand. PersistentPreRunE
// fills cfg and logger before a subcommand runs.
type globals struct {
	configPath string
	logFormat  string
	logLevel   string

	cfg    config.Config
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	g := &globals{}

	root := &cobra.Command{
		Use:   "exthost",
		Short: "Sandboxed WebAssembly extension host",
		Long: `exthost loads editor extensions compiled to WebAssembly and runs them
in a sandbox. Extensions reach the host only through capability-checked
host functions; process execution, downloads and npm installs need a
matching grant in the grants file.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return g.setup(cmd)
		},
	}

	root.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "Path to exthost.yaml (default: user config dir)")
	root.PersistentFlags().StringVar(&g.logFormat, "log-format", "", "Log format: text, json (overrides config)")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides config)")

	root.AddCommand(newInspectCmd(g))
	root.AddCommand(newValidateCmd(g))
	root.AddCommand(newLoadCmd(g))
	root.AddCommand(newCallCmd(g))
	root.AddCommand(newGrantsCmd(g))
	root.AddCommand(newSchemaCmd(g))

	return root
}

func (g *globals) setup(cmd *cobra.Command) error {
	path := g.configPath
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if g.logFormat != "" {
		cfg.LogFormat = g.logFormat
	}
	if g.logLevel != "" {
		cfg.LogLevel = g.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := newLogger(cmd.ErrOrStderr(), cfg.LogFormat, cfg.LogLevel)
	if err != nil {
		return err
	}
	g.cfg = cfg
	g.logger = logger
	return nil
}

func newLogger(w io.Writer, format, level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	opts := &slog.HandlerOptions{Level: lvl}

	switch strings.ToLower(format) {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "text", "":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q: use text or json", format)
	}
}
