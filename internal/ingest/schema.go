package ingest

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// MappingSchema returns the JSON schema of ImportMapping. The upstream
// column-mapping UI consumes it to build and validate mapping forms.
func MappingSchema() (string, error) {
	r := new(jsonschema.Reflector)
	r.DoNotReference = true
	schema := r.Reflect(&ImportMapping{})

	schemaBytes, err := json.Marshal(schema)
	if err != nil {
		return "", err
	}

	return string(schemaBytes), nil
}
