package main

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/reglet-dev/exthost/application/extractor"
	"github.com/reglet-dev/exthost/application/loader"
	"github.com/reglet-dev/exthost/domain/entities"
	"github.com/reglet-dev/exthost/infrastructure/grantstore"
	"github.com/reglet-dev/exthost/infrastructure/prompter"
	"github.com/spf13/cobra"
)

func newGrantsCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "grants",
		Short: "List, review and revoke granted capabilities",
	}
	cmd.AddCommand(newGrantsListCmd(g))
	cmd.AddCommand(newGrantsReviewCmd(g))
	cmd.AddCommand(newGrantsRevokeCmd(g))
	return cmd
}

func (g *globals) grantStore() *grantstore.FileStore {
	return grantstore.NewFileStore(grantstore.WithPath(g.cfg.GrantsFile))
}

func newGrantsListCmd(g *globals) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List granted capabilities",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store := g.grantStore()
			granted, err := store.Load()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(granted)
			}
			_, _ = fmt.Fprintf(out, "%s\n", store.ConfigPath())
			if granted.IsEmpty() {
				_, _ = fmt.Fprintln(out, "  (no capabilities granted)")
				return nil
			}
			assessor := entities.NewRiskAssessor()
			for i, c := range granted.Capabilities {
				_, _ = fmt.Fprintf(out, "%3d. %s (risk %s)\n", i+1, c, assessor.AssessCapability(c))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the granted set as JSON")
	return cmd
}

func newGrantsReviewCmd(g *globals) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "review <extension dir>",
		Short: "Review the capabilities an extension declares and grant the missing ones",
		Long: `Review compares the capabilities declared in an extension's manifest with
the granted set and prompts for each missing one. Without a terminal the
missing capabilities are listed and nothing is granted, unless --yes is set.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := loader.NewLoader()
			if err != nil {
				return err
			}
			path, err := loader.FindManifest(args[0])
			if err != nil {
				return err
			}
			manifest, err := l.LoadManifestFile(path)
			if err != nil {
				return err
			}

			store := g.grantStore()
			current, err := store.Load()
			if err != nil {
				return err
			}

			ex := extractor.NewCapabilityExtractor()
			var approved entities.GrantedCapabilitySet
			if yes {
				for _, req := range ex.Missing(manifest, current) {
					approved.Capabilities = append(approved.Capabilities, req.Capability)
				}
			} else {
				approved, err = ex.Review(manifest, current, prompter.NewCliPrompter(cmd.InOrStdin(), cmd.OutOrStdout()))
				if err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			if approved.IsEmpty() {
				_, _ = fmt.Fprintf(out, "%s: nothing to grant\n", manifest.ID)
				return nil
			}
			if _, err := store.Grant(approved); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(out, "%s: granted %d capabilities in %s\n", manifest.ID, len(approved.Capabilities), store.ConfigPath())
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Grant every missing capability without prompting")
	return cmd
}

func newGrantsRevokeCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <number>",
		Short: "Revoke a granted capability by its number in 'grants list'",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid capability number %q", args[0])
			}

			store := g.grantStore()
			granted, err := store.Load()
			if err != nil {
				return err
			}
			if n < 1 || n > len(granted.Capabilities) {
				return fmt.Errorf("capability number %d is out of range 1-%d", n, len(granted.Capabilities))
			}

			c := granted.Capabilities[n-1]
			if _, err := store.Revoke(c); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "revoked %s\n", c)
			return nil
		},
	}
}
