package ops

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ValentinKolb/dDoc/lib/errs"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Schema is a JSON Schema object describing the parameters of an operation
type Schema map[string]any

// --------------------------------------------------------------------------
// Schema Builders
// --------------------------------------------------------------------------

// object builds the parameter schema of an operation. Every operation accepts an
// optional url and rejects unknown parameters.
func object(required []string, props map[string]any) Schema {
	properties := map[string]any{
		"url": Schema{"type": "string", "minLength": 1, "description": "connection string used if the session must connect first"},
	}
	for k, v := range props {
		properties[k] = v
	}
	s := Schema{
		"type":                 "object",
		"properties":           properties,
		"additionalProperties": false,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func str(description string) Schema {
	return Schema{"type": "string", "minLength": 1, "description": description}
}

func doc(description string) Schema {
	return Schema{"type": "object", "description": description}
}

func docs(description string) Schema {
	return Schema{"type": "array", "minItems": 1, "items": Schema{"type": "object"}, "description": description}
}

func integer(description string, minimum int) Schema {
	return Schema{"type": "integer", "minimum": minimum, "description": description}
}

func boolean(description string) Schema {
	return Schema{"type": "boolean", "description": description}
}

func roles(description string, minItems int) Schema {
	return Schema{
		"type":        "array",
		"minItems":    minItems,
		"description": description,
		"items": Schema{
			"oneOf": []any{
				Schema{"type": "string", "minLength": 1},
				Schema{
					"type":                 "object",
					"required":             []string{"role"},
					"additionalProperties": false,
					"properties": Schema{
						"role": Schema{"type": "string", "minLength": 1},
						"db":   Schema{"type": "string"},
					},
				},
			},
		},
	}
}

// dbProps returns the db (and optionally collection) properties shared by most operations
func dbProps(withCollection bool, extra map[string]any) map[string]any {
	props := map[string]any{"db": str("database name")}
	if withCollection {
		props["collection"] = str("collection name")
	}
	for k, v := range extra {
		props[k] = v
	}
	return props
}

// --------------------------------------------------------------------------
// Compilation & Validation
// --------------------------------------------------------------------------

// compile turns a schema into a validator
func compile(name string, s Schema) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal schema of %s: %w", name, err)
	}
	parsed, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse schema of %s: %w", name, err)
	}
	url := "ops/" + name + ".json"
	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, parsed); err != nil {
		return nil, fmt.Errorf("add schema of %s: %w", name, err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema of %s: %w", name, err)
	}
	return compiled, nil
}

// validate checks a parameter bag against the compiled schema.
// A missing or empty bag is treated as an empty object.
func validate(name string, compiled *jsonschema.Schema, params json.RawMessage) error {
	if len(bytes.TrimSpace(params)) == 0 {
		params = json.RawMessage("{}")
	}
	instance, err := jsonschema.UnmarshalJSON(bytes.NewReader(params))
	if err != nil {
		return &errs.InvalidParametersError{Operation: name, Violations: []string{"parameters are not valid JSON: " + err.Error()}}
	}
	if err := compiled.Validate(instance); err != nil {
		return &errs.InvalidParametersError{Operation: name, Violations: violations(err)}
	}
	return nil
}

// violations extracts the "at '<path>': <message>" lines from a validation error
func violations(err error) []string {
	var out []string
	for _, line := range strings.Split(err.Error(), "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "- at ") {
			out = append(out, strings.TrimPrefix(line, "- "))
		}
	}
	if len(out) == 0 {
		out = []string{err.Error()}
	}
	return out
}
