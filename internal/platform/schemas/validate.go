// Package schemas validates JSON documents the service produces or accepts against embedded JSON
// Schemas.
package schemas

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed backup.schema.json
var backupSchemaJSON string

var (
	backupSchemaOnce sync.Once
	backupSchema     *gojsonschema.Schema
	backupSchemaErr  error
)

// FieldError represents a single validation error at a specific field.
type FieldError struct {
	Field   string
	Message string
}

// ValidationError lists every schema violation found in a document.
type ValidationError struct {
	Errors []FieldError
}

func (ve *ValidationError) Error() string {
	var sb strings.Builder
	sb.WriteString("validation failed:")
	for i, err := range ve.Errors {
		fmt.Fprintf(&sb, " %d. %s: %s;", i+1, err.Field, err.Message)
	}
	return strings.TrimSuffix(sb.String(), ";")
}

// SchemaLoadError reports a schema or document that could not be parsed at all.
type SchemaLoadError struct {
	Name  string
	Cause error
}

func (e *SchemaLoadError) Error() string {
	return fmt.Sprintf("schemas: load %s: %v", e.Name, e.Cause)
}

func (e *SchemaLoadError) Unwrap() error { return e.Cause }

// BackupSchema returns the raw JSON Schema used for backup documents.
func BackupSchema() string { return backupSchemaJSON }

// ValidateBackup checks a serialised backup document.
func ValidateBackup(document []byte) error {
	backupSchemaOnce.Do(func() {
		backupSchema, backupSchemaErr = gojsonschema.NewSchema(gojsonschema.NewStringLoader(backupSchemaJSON))
	})
	if backupSchemaErr != nil {
		return &SchemaLoadError{Name: "backup schema", Cause: backupSchemaErr}
	}
	return validate(backupSchema, gojsonschema.NewBytesLoader(document))
}

// ValidateJSONString validates JSON content against schema content, both given as strings.
func ValidateJSONString(schemaContent, jsonContent string) error {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schemaContent))
	if err != nil {
		return &SchemaLoadError{Name: "(string schema)", Cause: err}
	}
	return validate(schema, gojsonschema.NewStringLoader(jsonContent))
}

func validate(schema *gojsonschema.Schema, document gojsonschema.JSONLoader) error {
	result, err := schema.Validate(document)
	if err != nil {
		return &SchemaLoadError{Name: "document", Cause: err}
	}
	if result.Valid() {
		return nil
	}

	validationErr := &ValidationError{Errors: make([]FieldError, 0, len(result.Errors()))}
	for _, desc := range result.Errors() {
		field := desc.Field()
		if field == "" {
			field = "(root)"
		}
		validationErr.Errors = append(validationErr.Errors, FieldError{
			Field:   field,
			Message: desc.Description(),
		})
	}
	return validationErr
}
