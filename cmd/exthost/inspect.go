package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/reglet-dev/exthost/application/loader"
	"github.com/reglet-dev/exthost/host"
	"github.com/spf13/cobra"
)

type inspectReport struct {
	Path       string   `json:"path"`
	Version    string   `json:"version"`
	Supported  bool     `json:"supported"`
	Operations []string `json:"operations"`
}

func newInspectCmd(g *globals) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "inspect <extension.wasm | extension dir>",
		Short: "Show the interface version and operations of an extension binary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			if info, err := os.Stat(path); err == nil && info.IsDir() {
				path = filepath.Join(path, loader.WasmFileName)
			}
			wasm, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("cannot read %s: %w", path, err)
			}

			v, err := host.ParseExtensionVersion(filepath.Base(filepath.Dir(path)), wasm)
			if err != nil {
				return err
			}
			report := inspectReport{
				Path:       path,
				Version:    v.String(),
				Supported:  g.cfg.SupportedVersions.Contains(v),
				Operations: host.OperationsAt(v),
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}

			supported := "yes"
			if !report.Supported {
				supported = "no"
			}
			_, _ = fmt.Fprintf(out, "%s\n", report.Path)
			_, _ = fmt.Fprintf(out, "  interface version: %s\n", report.Version)
			_, _ = fmt.Fprintf(out, "  supported: %s (%s - %s)\n", supported, g.cfg.SupportedVersions.Min, g.cfg.SupportedVersions.Max)
			_, _ = fmt.Fprintf(out, "  operations:\n")
			for _, op := range report.Operations {
				_, _ = fmt.Fprintf(out, "    - %s\n", op)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the report as JSON")
	return cmd
}
