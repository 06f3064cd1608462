package replicant

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Codec defines the deserialization contract for schema source data.
// Implement this interface to load schema documents from alternative
// formats like TOML or HCL.
type Codec interface {
	// Unmarshal deserializes bytes into v.
	Unmarshal(data []byte, v any) error

	// ToJSON normalizes data into a canonical JSON document, so a schema
	// authored in any codec's format can be compiled by the JSON-Schema
	// validation gate.
	ToJSON(data []byte) ([]byte, error)

	// ContentType returns the MIME type for observability and debugging.
	ContentType() string
}

// JSONCodec implements Codec using encoding/json.
type JSONCodec struct{}

// Unmarshal deserializes JSON bytes into v.
func (JSONCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// ToJSON returns data unchanged; it is already JSON.
func (JSONCodec) ToJSON(data []byte) ([]byte, error) {
	if !json.Valid(data) {
		return nil, fmt.Errorf("replicant: not valid JSON")
	}
	return data, nil
}

// ContentType returns the JSON MIME type.
func (JSONCodec) ContentType() string {
	return "application/json"
}

// Ensure JSONCodec implements Codec.
var _ Codec = JSONCodec{}

// YAMLCodec implements Codec using gopkg.in/yaml.v3.
type YAMLCodec struct{}

// Unmarshal deserializes YAML bytes into v.
func (YAMLCodec) Unmarshal(data []byte, v any) error {
	return yaml.Unmarshal(data, v)
}

// ToJSON decodes YAML and re-encodes it as JSON. YAML is a superset of
// JSON so this also accepts plain JSON input.
func (YAMLCodec) ToJSON(data []byte) ([]byte, error) {
	var v any
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("replicant: decode yaml: %w", err)
	}
	return json.Marshal(normalizeYAML(v))
}

// normalizeYAML converts map[string]interface{} keys produced by some YAML
// decoders (map[interface{}]interface{}) into JSON-marshalable form.
func normalizeYAML(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalizeYAML(val)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = normalizeYAML(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalizeYAML(val)
		}
		return out
	default:
		return t
	}
}

// ContentType returns the YAML MIME type.
func (YAMLCodec) ContentType() string {
	return "application/x-yaml"
}

// Ensure YAMLCodec implements Codec.
var _ Codec = YAMLCodec{}
