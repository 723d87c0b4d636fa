package schema

import (
	"encoding/json"
	"testing"

	"github.com/reglet-dev/exthost/domain/entities"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, schema []byte) map[string]interface{} {
	t.Helper()
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(schema, &decoded))
	return decoded
}

func TestGenerateSchema_RequiredFollowsOmitempty(t *testing.T) {
	type HTTPConfig struct {
		URL     string            `json:"url"`
		Method  string            `json:"method"`
		Headers map[string]string `json:"headers,omitempty"`
		Body    *string           `json:"body,omitempty"`
	}

	schema, err := GenerateSchema(HTTPConfig{})
	require.NoError(t, err)

	decoded := decode(t, schema)
	properties, ok := decoded["properties"].(map[string]interface{})
	require.True(t, ok, "properties should be a map")
	assert.Len(t, properties, 4)

	required, ok := decoded["required"].([]interface{})
	require.True(t, ok, "required should be an array")
	assert.ElementsMatch(t, []interface{}{"url", "method"}, required)
}

func TestManifestSchema(t *testing.T) {
	schema, err := ManifestSchema()
	require.NoError(t, err)

	decoded := decode(t, schema)
	properties, ok := decoded["properties"].(map[string]interface{})
	require.True(t, ok)
	for _, key := range []string{"id", "name", "version", "capabilities", "language_servers", "slash_commands", "lib"} {
		assert.Contains(t, properties, key)
	}

	required, ok := decoded["required"].([]interface{})
	require.True(t, ok)
	assert.ElementsMatch(t, []interface{}{"id", "name", "version"}, required)
	assert.Contains(t, string(schema), `"pattern": "^[a-z0-9][a-z0-9_-]*$"`)
}

func TestGrantsSchema(t *testing.T) {
	schema, err := GrantsSchema()
	require.NoError(t, err)

	decoded := decode(t, schema)
	properties, ok := decoded["properties"].(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, properties, "granted_extension_capabilities")
}

func TestCapabilitySchemas(t *testing.T) {
	schemas, err := CapabilitySchemas()
	require.NoError(t, err)
	require.Len(t, schemas, len(entities.CapabilityKinds))

	tests := []struct {
		kind     string
		required []interface{}
	}{
		{entities.CapabilityProcessExec, []interface{}{"kind", "command"}},
		{entities.CapabilityDownloadFile, []interface{}{"kind", "host"}},
		{entities.CapabilityNpmInstallPackage, []interface{}{"kind", "package"}},
	}

	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			decoded := decode(t, schemas[tt.kind])
			assert.Equal(t, tt.kind, decoded["title"])
			assert.Equal(t, false, decoded["additionalProperties"])
			assert.ElementsMatch(t, tt.required, decoded["required"])
		})
	}
}
