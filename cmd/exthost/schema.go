package main

import (
	"fmt"
	"slices"
	"strings"

	"github.com/reglet-dev/exthost/application/config"
	"github.com/reglet-dev/exthost/application/schema"
	"github.com/spf13/cobra"
)

func newSchemaCmd(_ *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "schema <manifest | grants | config | capability> [kind]",
		Short: "Print a JSON Schema",
		Long: `Schema prints the JSON Schema of an extension manifest, the grants file,
the host configuration file, or one capability kind.`,
		Args:      cobra.RangeArgs(1, 2),
		ValidArgs: []string{"manifest", "grants", "config", "capability"},
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				data []byte
				err  error
			)
			switch args[0] {
			case "manifest":
				data, err = schema.ManifestSchema()
			case "grants":
				data, err = schema.GrantsSchema()
			case "config":
				data, err = schema.GenerateSchema(config.Config{})
			case "capability":
				data, err = capabilitySchema(args[1:])
			default:
				return fmt.Errorf("unknown schema %q", args[0])
			}
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return err
		},
	}
}

func capabilitySchema(args []string) ([]byte, error) {
	schemas, err := schema.CapabilitySchemas()
	if err != nil {
		return nil, err
	}
	kinds := make([]string, 0, len(schemas))
	for kind := range schemas {
		kinds = append(kinds, kind)
	}
	slices.Sort(kinds)

	if len(args) == 0 {
		return nil, fmt.Errorf("capability kind is required: %s", strings.Join(kinds, ", "))
	}
	data, ok := schemas[args[0]]
	if !ok {
		return nil, fmt.Errorf("unknown capability kind %q: %s", args[0], strings.Join(kinds, ", "))
	}
	return data, nil
}
