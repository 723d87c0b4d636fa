// Package schema generates JSON schemas for extension manifests, capability
// rules, and grant files.
package schema

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
	"github.com/reglet-dev/exthost/domain/entities"
)

// GenerateSchema creates a JSON schema from a Go struct.
// It uses the `invopop/jsonschema` library to reflect on the struct
// and generate a standard JSON Schema (Draft 2020-12).
func GenerateSchema(v interface{}) ([]byte, error) {
	reflector := jsonschema.Reflector{
		ExpandedStruct: true, // Expand struct definitions inline
	}
	return marshal(reflector.Reflect(v))
}

// ManifestSchema describes extension manifests in any supported encoding.
func ManifestSchema() ([]byte, error) {
	return GenerateSchema(&entities.ExtensionManifest{})
}

// GrantsSchema describes the grants file.
func GrantsSchema() ([]byte, error) {
	return GenerateSchema(&entities.GrantedCapabilitySet{})
}

// The per-kind shapes are stricter than ExtensionCapability: each kind
// requires its own fields and rejects the fields of other kinds.

type processExecCapability struct {
	Kind    string   `json:"kind" jsonschema:"enum=process:exec"`
	Command string   `json:"command" jsonschema:"minLength=1"`
	Args    []string `json:"args,omitempty"`
}

type downloadFileCapability struct {
	Kind string   `json:"kind" jsonschema:"enum=download_file"`
	Host string   `json:"host" jsonschema:"minLength=1"`
	Path []string `json:"path,omitempty"`
}

type npmInstallPackageCapability struct {
	Kind    string `json:"kind" jsonschema:"enum=npm:install_package"`
	Package string `json:"package" jsonschema:"minLength=1"`
}

var capabilityShapes = map[string]any{
	entities.CapabilityProcessExec:       &processExecCapability{},
	entities.CapabilityDownloadFile:      &downloadFileCapability{},
	entities.CapabilityNpmInstallPackage: &npmInstallPackageCapability{},
}

// CapabilitySchemas returns one schema per capability kind.
func CapabilitySchemas() (map[string][]byte, error) {
	reflector := jsonschema.Reflector{
		ExpandedStruct: true,
		Anonymous:      true,
	}

	out := make(map[string][]byte, len(capabilityShapes))
	for kind, shape := range capabilityShapes {
		s := reflector.Reflect(shape)
		s.Title = kind
		b, err := marshal(s)
		if err != nil {
			return nil, fmt.Errorf("capability %s: %w", kind, err)
		}
		out[kind] = b
	}
	return out, nil
}

func marshal(s *jsonschema.Schema) ([]byte, error) {
	jsonBytes, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	return jsonBytes, nil
}
