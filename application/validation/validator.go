// Package validation checks extension manifests before they are loaded.
package validation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/go-playground/validator/v10"
	"github.com/reglet-dev/exthost/application/schema"
	"github.com/reglet-dev/exthost/domain/entities"
	"github.com/reglet-dev/exthost/domain/ports"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

var extensionIDPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

const schemaBaseURL = "https://exthost.invalid/capability/"

// ManifestValidator validates manifests with struct tags, per-kind capability
// JSON schemas, and pattern syntax checks.
type ManifestValidator struct {
	validate *validator.Validate
	schemas  map[string]*jsonschema.Schema
}

var _ ports.ManifestValidator = (*ManifestValidator)(nil)

// NewManifestValidator compiles the capability schemas and returns a validator.
func NewManifestValidator() (*ManifestValidator, error) {
	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(jsonFieldName)
	if err := validate.RegisterValidation("extension_id", func(fl validator.FieldLevel) bool {
		return extensionIDPattern.MatchString(fl.Field().String())
	}); err != nil {
		return nil, fmt.Errorf("register extension_id validation: %w", err)
	}

	raw, err := schema.CapabilitySchemas()
	if err != nil {
		return nil, err
	}

	compiler := jsonschema.NewCompiler()
	schemas := make(map[string]*jsonschema.Schema, len(raw))
	for kind, doc := range raw {
		url := schemaBaseURL + strings.ReplaceAll(kind, ":", "_") + ".json"
		if err := compiler.AddResource(url, bytes.NewReader(doc)); err != nil {
			return nil, fmt.Errorf("failed to add schema resource for %s: %w", kind, err)
		}
		sch, err := compiler.Compile(url)
		if err != nil {
			return nil, fmt.Errorf("invalid schema for %s: %w", kind, err)
		}
		schemas[kind] = sch
	}

	return &ManifestValidator{validate: validate, schemas: schemas}, nil
}

// Validate checks the manifest. Problems with the manifest itself are
// reported in the result; the error is reserved for validator faults.
func (v *ManifestValidator) Validate(manifest *entities.ExtensionManifest) (*entities.ValidationResult, error) {
	if manifest == nil {
		return nil, errors.New("manifest is nil")
	}

	result := &entities.ValidationResult{Valid: true}
	add := func(field, msg string) {
		result.Errors = append(result.Errors, entities.ValidationError{Field: field, Message: msg})
	}

	if err := v.validate.Struct(manifest); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return nil, fmt.Errorf("validation error: %w", err)
		}
		for _, fe := range verrs {
			add(fieldPath(fe.Namespace()), describe(fe))
		}
	}

	if manifest.Version != "" {
		if _, err := entities.ParseSemanticVersion(manifest.Version); err != nil {
			add("version", err.Error())
		}
	}

	for i, c := range manifest.Capabilities {
		field := fmt.Sprintf("capabilities[%d]", i)
		if err := v.validateCapability(c); err != nil {
			add(field, err.Error())
			continue
		}
		for _, p := range patterns(c) {
			if !doublestar.ValidatePattern(p) {
				add(field, fmt.Sprintf("invalid pattern %q", p))
			}
		}
	}

	result.Valid = len(result.Errors) == 0
	return result, nil
}

func (v *ManifestValidator) validateCapability(c entities.ExtensionCapability) error {
	sch, ok := v.schemas[c.Kind]
	if !ok {
		return fmt.Errorf("unknown capability kind %q", c.Kind)
	}

	// Round-trip through JSON so the schema sees the encoded field names.
	b, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to prepare validation object: %w", err)
	}
	var obj interface{}
	if err := json.Unmarshal(b, &obj); err != nil {
		return fmt.Errorf("failed to prepare validation object: %w", err)
	}

	if err := sch.Validate(obj); err != nil {
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) {
			return errors.New(leafMessages(ve))
		}
		return err
	}
	return nil
}

// leafMessages flattens a schema error tree into its innermost causes.
func leafMessages(ve *jsonschema.ValidationError) string {
	if len(ve.Causes) == 0 {
		if ve.InstanceLocation == "" {
			return ve.Message
		}
		return ve.InstanceLocation + ": " + ve.Message
	}
	msgs := make([]string, 0, len(ve.Causes))
	for _, c := range ve.Causes {
		msgs = append(msgs, leafMessages(c))
	}
	return strings.Join(msgs, "; ")
}

func patterns(c entities.ExtensionCapability) []string {
	switch c.Kind {
	case entities.CapabilityProcessExec:
		return append([]string{c.Command}, c.Args...)
	case entities.CapabilityDownloadFile:
		return []string{c.Host, strings.Join(c.Path, "/")}
	case entities.CapabilityNpmInstallPackage:
		return []string{c.Package}
	default:
		return nil
	}
}

func jsonFieldName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	if name == "-" {
		return ""
	}
	if name == "" {
		return f.Name
	}
	return name
}

// fieldPath drops the root struct name from a validator namespace.
func fieldPath(ns string) string {
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "required_if":
		return "is required when " + fe.Param()
	case "extension_id":
		return "must match " + extensionIDPattern.String()
	case "oneof":
		return "must be one of: " + fe.Param()
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "url":
		return "must be a valid URL"
	default:
		if fe.Param() != "" {
			return fmt.Sprintf("failed %s=%s", fe.Tag(), fe.Param())
		}
		return "failed " + fe.Tag()
	}
}
