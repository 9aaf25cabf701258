// Package schema generates JSON schemas for configuration documents.
package schema

import (
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"github.com/invopop/jsonschema"

	"github.com/reglet-dev/scripthost/domain/entities"
)

// durationPattern matches the strings accepted by time.ParseDuration.
const durationPattern = `^([0-9]+(\.[0-9]+)?(ns|us|µs|ms|s|m|h))+$|^0$`

var durationType = reflect.TypeOf(time.Duration(0))

// GenerateSchema creates a JSON schema from a Go struct.
// It uses the `invopop/jsonschema` library to reflect on the struct
// and generate a standard JSON Schema (Draft 2020-12).
func GenerateSchema(v any) ([]byte, error) {
	reflector := jsonschema.Reflector{
		ExpandedStruct:             true, // Expand struct definitions inline
		RequiredFromJSONSchemaTags: true,
		Mapper:                     mapDuration,
	}
	schema := reflector.Reflect(v)

	jsonBytes, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}

	return jsonBytes, nil
}

// RuntimeConfigSchema returns the schema of the host configuration file.
func RuntimeConfigSchema() ([]byte, error) {
	return GenerateSchema(&entities.RuntimeConfig{})
}

// mapDuration documents durations as the strings config files use.
func mapDuration(t reflect.Type) *jsonschema.Schema {
	if t != durationType {
		return nil
	}
	return &jsonschema.Schema{
		Type:        "string",
		Pattern:     durationPattern,
		Description: `Duration such as "250ms" or "10s"`,
	}
}
