package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/reglet-dev/exthost/application/loader"
	"github.com/reglet-dev/exthost/host"
	"github.com/spf13/cobra"
)

func newValidateCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <extension dir>...",
		Short: "Validate extension manifests and binary interface versions",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := loader.NewLoader()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			failed := 0
			for _, dir := range args {
				id, err := validateDir(l, dir, g)
				if err != nil {
					failed++
					_, _ = fmt.Fprintf(out, "FAIL %s\n%v\n", dir, err)
					continue
				}
				_, _ = fmt.Fprintf(out, "ok   %s (%s)\n", dir, id)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d extensions are invalid", failed, len(args))
			}
			return nil
		},
	}
}

// validateDir checks the manifest and, when present, the binary's version.
func validateDir(l *loader.Loader, dir string, g *globals) (string, error) {
	path, err := loader.FindManifest(dir)
	if err != nil {
		return "", err
	}
	manifest, err := l.LoadManifestFile(path)
	if err != nil {
		return "", err
	}

	wasm, err := os.ReadFile(filepath.Join(dir, loader.WasmFileName))
	if errors.Is(err, fs.ErrNotExist) {
		return manifest.ID, nil
	}
	if err != nil {
		return "", err
	}
	v, err := host.ParseExtensionVersion(manifest.ID, wasm)
	if err != nil {
		return "", err
	}
	if !g.cfg.SupportedVersions.Contains(v) {
		return "", fmt.Errorf("extension %s: interface version %s is outside %s - %s",
			manifest.ID, v, g.cfg.SupportedVersions.Min, g.cfg.SupportedVersions.Max)
	}
	return manifest.ID, nil
}
