package replicant

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/google/jsonschema-go/jsonschema"
)

// compiledSchema wraps a resolved JSON-Schema document and the content
// hash it was compiled from.
type compiledSchema struct {
	sum      string
	raw      *jsonschema.Schema
	resolved *jsonschema.Resolved
	// complex is true if raw (or any subschema reachable from it) uses a
	// keyword walkSchema does not itself understand (anyOf/oneOf/not/
	// if-then-else/$ref/dependentSchemas/format/...). validate falls back
	// to resolved.Validate for these instead of silently ignoring them.
	complex bool
}

// compileSchema parses schemaJSON (already normalized to JSON by a Codec),
// resolves it, and returns a compiledSchema together with its sha256
// content sum, or an error if the document is not a valid schema.
func compileSchema(schemaJSON []byte) (*compiledSchema, error) {
	var raw jsonschema.Schema
	if err := json.Unmarshal(schemaJSON, &raw); err != nil {
		return nil, fmt.Errorf("replicant: parse schema: %w", err)
	}
	resolved, err := raw.Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("replicant: resolve schema: %w", err)
	}
	sum := sha256.Sum256(schemaJSON)
	return &compiledSchema{
		sum:      hex.EncodeToString(sum[:]),
		raw:      &raw,
		resolved: resolved,
		complex:  hasComplexKeyword(&raw),
	}, nil
}

// validate greedily checks instance (a plain JSON-compatible value) against
// the schema, collecting every field-level violation rather than stopping
// at the first one. An empty slice means the instance is valid.
func (s *compiledSchema) validate(instance any) []ValidationErrorDetail {
	if s == nil || s.raw == nil {
		return nil
	}
	var out []ValidationErrorDetail
	walkSchema(s.raw, "", instance, &out)
	if len(out) == 0 && s.complex {
		if err := s.resolved.Validate(instance); err != nil {
			out = append(out, ValidationErrorDetail{Message: err.Error()})
		}
	}
	return out
}

// hasComplexKeyword reports whether sch, or any subschema reachable from
// it, uses a keyword walkSchema does not evaluate on its own.
func hasComplexKeyword(sch *jsonschema.Schema) bool {
	if sch == nil {
		return false
	}
	if len(sch.AnyOf) > 0 || len(sch.OneOf) > 0 || sch.Not != nil ||
		sch.If != nil || sch.Then != nil || sch.Else != nil ||
		sch.Ref != "" || sch.DynamicRef != "" ||
		len(sch.DependentSchemas) > 0 || sch.Format != "" ||
		sch.ContentSchema != nil || sch.UnevaluatedProperties != nil ||
		sch.UnevaluatedItems != nil {
		return true
	}
	for _, sub := range sch.AllOf {
		if hasComplexKeyword(sub) {
			return true
		}
	}
	for _, sub := range sch.Properties {
		if hasComplexKeyword(sub) {
			return true
		}
	}
	for _, sub := range sch.PatternProperties {
		if hasComplexKeyword(sub) {
			return true
		}
	}
	if hasComplexKeyword(sch.AdditionalProperties) || hasComplexKeyword(sch.PropertyNames) {
		return true
	}
	if hasComplexKeyword(sch.Items) || hasComplexKeyword(sch.Contains) {
		return true
	}
	for _, sub := range sch.PrefixItems {
		if hasComplexKeyword(sub) {
			return true
		}
	}
	return false
}

// walkSchema recursively checks instance against sch, appending one
// ValidationErrorDetail per violated keyword to out. path is the
// already-escaped JSON-Pointer-like location of instance within the
// document being validated (see JoinPath).
func walkSchema(sch *jsonschema.Schema, path string, instance any, out *[]ValidationErrorDetail) {
	if sch == nil {
		return
	}

	if sch.Const != nil {
		if !jsonEqual(instance, *sch.Const) {
			*out = append(*out, ValidationErrorDetail{
				Field: path, Message: "value does not match const",
				Expected: fmt.Sprintf("%v", *sch.Const), Value: instance,
			})
		}
	}
	if sch.Enum != nil {
		matched := false
		for _, v := range sch.Enum {
			if jsonEqual(instance, v) {
				matched = true
				break
			}
		}
		if !matched {
			*out = append(*out, ValidationErrorDetail{
				Field: path, Message: "value is not one of the enumerated values",
				Expected: fmt.Sprintf("%v", sch.Enum), Value: instance,
			})
		}
	}

	allowed := sch.Types
	if sch.Type != "" {
		allowed = []string{sch.Type}
	}
	actual := jsonTypeOf(instance)
	if len(allowed) > 0 && !typeAllowed(allowed, actual) {
		*out = append(*out, ValidationErrorDetail{
			Field: path, Message: "value has the wrong type",
			Expected: fmt.Sprintf("%v", allowed), Value: instance,
		})
		return
	}

	switch v := instance.(type) {
	case float64:
		walkNumber(sch, path, v, out)
	case string:
		walkString(sch, path, v, out)
	case []any:
		walkArray(sch, path, v, out)
	case map[string]any:
		walkObject(sch, path, v, out)
	}

	for _, sub := range sch.AllOf {
		walkSchema(sub, path, instance, out)
	}
}

func walkNumber(sch *jsonschema.Schema, path string, v float64, out *[]ValidationErrorDetail) {
	if sch.Minimum != nil && v < *sch.Minimum {
		*out = append(*out, ValidationErrorDetail{
			Field: path, Message: "value is below the minimum",
			Expected: fmt.Sprintf(">= %v", *sch.Minimum), Value: v,
		})
	}
	if sch.Maximum != nil && v > *sch.Maximum {
		*out = append(*out, ValidationErrorDetail{
			Field: path, Message: "value is above the maximum",
			Expected: fmt.Sprintf("<= %v", *sch.Maximum), Value: v,
		})
	}
	if sch.ExclusiveMinimum != nil && v <= *sch.ExclusiveMinimum {
		*out = append(*out, ValidationErrorDetail{
			Field: path, Message: "value is not above the exclusive minimum",
			Expected: fmt.Sprintf("> %v", *sch.ExclusiveMinimum), Value: v,
		})
	}
	if sch.ExclusiveMaximum != nil && v >= *sch.ExclusiveMaximum {
		*out = append(*out, ValidationErrorDetail{
			Field: path, Message: "value is not below the exclusive maximum",
			Expected: fmt.Sprintf("< %v", *sch.ExclusiveMaximum), Value: v,
		})
	}
	if sch.MultipleOf != nil && *sch.MultipleOf != 0 {
		q := v / *sch.MultipleOf
		if q != float64(int64(q)) {
			*out = append(*out, ValidationErrorDetail{
				Field: path, Message: "value is not a multiple of the required step",
				Expected: fmt.Sprintf("multiple of %v", *sch.MultipleOf), Value: v,
			})
		}
	}
}

func walkString(sch *jsonschema.Schema, path string, v string, out *[]ValidationErrorDetail) {
	if sch.MinLength != nil && len([]rune(v)) < *sch.MinLength {
		*out = append(*out, ValidationErrorDetail{
			Field: path, Message: "string is shorter than minLength",
			Expected: fmt.Sprintf(">= %d chars", *sch.MinLength), Value: v,
		})
	}
	if sch.MaxLength != nil && len([]rune(v)) > *sch.MaxLength {
		*out = append(*out, ValidationErrorDetail{
			Field: path, Message: "string is longer than maxLength",
			Expected: fmt.Sprintf("<= %d chars", *sch.MaxLength), Value: v,
		})
	}
	if sch.Pattern != "" {
		if re, err := regexp.Compile(sch.Pattern); err == nil && !re.MatchString(v) {
			*out = append(*out, ValidationErrorDetail{
				Field: path, Message: "string does not match pattern",
				Expected: sch.Pattern, Value: v,
			})
		}
	}
}

func walkArray(sch *jsonschema.Schema, path string, v []any, out *[]ValidationErrorDetail) {
	if sch.MinItems != nil && len(v) < *sch.MinItems {
		*out = append(*out, ValidationErrorDetail{
			Field: path, Message: "array has fewer than minItems elements",
			Expected: fmt.Sprintf(">= %d items", *sch.MinItems), Value: v,
		})
	}
	if sch.MaxItems != nil && len(v) > *sch.MaxItems {
		*out = append(*out, ValidationErrorDetail{
			Field: path, Message: "array has more than maxItems elements",
			Expected: fmt.Sprintf("<= %d items", *sch.MaxItems), Value: v,
		})
	}
	if sch.UniqueItems && !allItemsUnique(v) {
		*out = append(*out, ValidationErrorDetail{
			Field: path, Message: "array elements are not unique",
			Expected: "unique items", Value: v,
		})
	}
	if sch.Contains != nil {
		found := false
		for _, item := range v {
			var sub []ValidationErrorDetail
			walkSchema(sch.Contains, path, item, &sub)
			if len(sub) == 0 {
				found = true
				break
			}
		}
		if !found {
			*out = append(*out, ValidationErrorDetail{
				Field: path, Message: "array does not contain a matching element",
				Expected: "at least one element matching contains", Value: v,
			})
		}
	}
	for i, item := range v {
		itemPath := JoinPath(path, fmt.Sprintf("%d", i))
		if i < len(sch.PrefixItems) {
			walkSchema(sch.PrefixItems[i], itemPath, item, out)
			continue
		}
		if sch.Items != nil {
			walkSchema(sch.Items, itemPath, item, out)
		}
	}
}

func allItemsUnique(v []any) bool {
	for i := range v {
		for j := i + 1; j < len(v); j++ {
			if jsonEqual(v[i], v[j]) {
				return false
			}
		}
	}
	return true
}

func walkObject(sch *jsonschema.Schema, path string, v map[string]any, out *[]ValidationErrorDetail) {
	if sch.MinProperties != nil && len(v) < *sch.MinProperties {
		*out = append(*out, ValidationErrorDetail{
			Field: path, Message: "object has fewer than minProperties keys",
			Expected: fmt.Sprintf(">= %d properties", *sch.MinProperties), Value: v,
		})
	}
	if sch.MaxProperties != nil && len(v) > *sch.MaxProperties {
		*out = append(*out, ValidationErrorDetail{
			Field: path, Message: "object has more than maxProperties keys",
			Expected: fmt.Sprintf("<= %d properties", *sch.MaxProperties), Value: v,
		})
	}
	for _, req := range sch.Required {
		if _, ok := v[req]; !ok {
			*out = append(*out, ValidationErrorDetail{
				Field: JoinPath(path, req), Message: "required property is missing",
				Expected: "present", Value: nil,
			})
		}
	}
	for key, deps := range sch.DependentRequired {
		if _, present := v[key]; !present {
			continue
		}
		for _, req := range deps {
			if _, ok := v[req]; !ok {
				*out = append(*out, ValidationErrorDetail{
					Field: JoinPath(path, req), Message: fmt.Sprintf("required property is missing because %q is set", key),
					Expected: "present", Value: nil,
				})
			}
		}
	}
	if sch.PropertyNames != nil {
		for key := range v {
			walkSchema(sch.PropertyNames, path, key, out)
		}
	}
	matched := make(map[string]bool, len(v))
	for key, valSchema := range sch.Properties {
		val, ok := v[key]
		if !ok {
			continue
		}
		matched[key] = true
		walkSchema(valSchema, JoinPath(path, key), val, out)
	}
	for pattern, patSchema := range sch.PatternProperties {
		re, err := regexp.Compile(pattern)
		if err != nil {
			continue
		}
		for key, val := range v {
			if !re.MatchString(key) {
				continue
			}
			matched[key] = true
			walkSchema(patSchema, JoinPath(path, key), val, out)
		}
	}
	if sch.AdditionalProperties != nil {
		for key, val := range v {
			if matched[key] {
				continue
			}
			walkSchema(sch.AdditionalProperties, JoinPath(path, key), val, out)
		}
	}
}

// jsonTypeOf reports the JSON Schema type name of a decoded JSON value.
func jsonTypeOf(v any) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case float64:
		if t == float64(int64(t)) {
			return "integer"
		}
		return "number"
	case string:
		return "string"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return "unknown"
	}
}

// typeAllowed reports whether actual satisfies one of allowed, treating
// "integer" as a subtype of "number" per the JSON Schema spec.
func typeAllowed(allowed []string, actual string) bool {
	for _, t := range allowed {
		if t == actual {
			return true
		}
		if t == "number" && actual == "integer" {
			return true
		}
	}
	return false
}

// jsonEqual compares two decoded JSON values (nil/bool/float64/string/
// []any/map[string]any) for structural equality.
func jsonEqual(a, b any) bool {
	aj, err := json.Marshal(a)
	if err != nil {
		return false
	}
	bj, err := json.Marshal(b)
	if err != nil {
		return false
	}
	var av, bv any
	if err := json.Unmarshal(aj, &av); err != nil {
		return false
	}
	if err := json.Unmarshal(bj, &bv); err != nil {
		return false
	}
	return jsonDeepEqual(av, bv)
}

func jsonDeepEqual(a, b any) bool {
	switch av := a.(type) {
	case map[string]any:
		bv, ok := b.(map[string]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			bvv, ok := bv[k]
			if !ok || !jsonDeepEqual(v, bvv) {
				return false
			}
		}
		return true
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !jsonDeepEqual(av[i], bv[i]) {
				return false
			}
		}
		return true
	default:
		return a == b
	}
}
