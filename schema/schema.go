// Package schema type-checks decoded JSON request bodies against a small
// JSON Schema subset and holds the request schemas of every API operation.
package schema

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
)

// Schema is a JSON Schema document decoded as generic JSON.
type Schema = map[string]any

// Validate checks a decoded value against a JSON Schema (draft-07 subset).
// Returns nil if validation passes or the schema is nil.
//
// Supported keywords:
//   - type, as a single name or a list of names
//   - properties, required, additionalProperties
//   - items (for arrays)
//   - anyOf
//   - enum
//
// Other keywords, such as description and example, are ignored.
func Validate(schema Schema, value any) error {
	if schema == nil {
		return nil
	}
	return validateValue(schema, value, "$")
}

func validateValue(schema Schema, value any, path string) error {
	if t, ok := schema["type"]; ok {
		if err := checkType(typeNames(t), value, path); err != nil {
			return err
		}
	}

	if enumRaw, ok := schema["enum"]; ok {
		if enumList, ok := enumRaw.([]any); ok {
			if err := checkEnum(enumList, value, path); err != nil {
				return err
			}
		}
	}

	if anyOf, ok := schema["anyOf"].([]any); ok {
		if err := checkAnyOf(anyOf, value, path); err != nil {
			return err
		}
	}

	switch v := value.(type) {
	case map[string]any:
		return validateObject(schema, v, path)
	case []any:
		return validateArray(schema, v, path)
	}
	return nil
}

func typeNames(t any) []string {
	switch v := t.(type) {
	case string:
		return []string{v}
	case []string:
		return v
	case []any:
		names := make([]string, 0, len(v))
		for _, n := range v {
			if s, ok := n.(string); ok {
				names = append(names, s)
			}
		}
		return names
	}
	return nil
}

func checkType(expected []string, value any, path string) error {
	if len(expected) == 0 {
		return nil
	}
	actual := jsonType(value)
	for _, want := range expected {
		if want == actual {
			return nil
		}
		// "number" also accepts integer
		if want == "number" && actual == "integer" {
			return nil
		}
		// Accept float64 values that are whole numbers
		if want == "integer" {
			if f, ok := value.(float64); ok && f == float64(int64(f)) {
				return nil
			}
		}
	}
	if len(expected) == 1 {
		return fmt.Errorf("%s: expected type %q, got %q", path, expected[0], actual)
	}
	return fmt.Errorf("%s: expected one of types %s, got %q", path, strings.Join(expected, ", "), actual)
}

func jsonType(v any) string {
	if v == nil {
		return "null"
	}
	switch v.(type) {
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64, json.Number:
		return "number"
	case int, int64:
		return "integer"
	default:
		return reflect.TypeOf(v).String()
	}
}

func checkEnum(allowed []any, value any, path string) error {
	for _, a := range allowed {
		if reflect.DeepEqual(a, value) {
			return nil
		}
	}
	return fmt.Errorf("%s: value not in enum %v", path, allowed)
}

func checkAnyOf(options []any, value any, path string) error {
	var errs []string
	for _, o := range options {
		sub, ok := o.(Schema)
		if !ok {
			continue
		}
		err := validateValue(sub, value, path)
		if err == nil {
			return nil
		}
		errs = append(errs, err.Error())
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%s: no alternative matched (%s)", path, strings.Join(errs, "; "))
}

func validateObject(schema Schema, obj map[string]any, path string) error {
	if req, ok := schema["required"]; ok {
		for _, field := range typeNames(req) {
			if _, exists := obj[field]; !exists {
				return fmt.Errorf("%s: missing required field %q", path, field)
			}
		}
	}

	propsMap, _ := schema["properties"].(Schema)
	for field, propSchema := range propsMap {
		val, exists := obj[field]
		if !exists {
			continue
		}
		ps, ok := propSchema.(Schema)
		if !ok {
			continue
		}
		if err := validateValue(ps, val, path+"."+field); err != nil {
			return err
		}
	}

	if ap, ok := schema["additionalProperties"].(bool); ok && !ap {
		var extra []string
		for field := range obj {
			if _, defined := propsMap[field]; !defined {
				extra = append(extra, field)
			}
		}
		if len(extra) > 0 {
			return fmt.Errorf("%s: additional properties not allowed: %s", path, strings.Join(extra, ", "))
		}
	}
	return nil
}

func validateArray(schema Schema, arr []any, path string) error {
	itemSchema, ok := schema["items"].(Schema)
	if !ok {
		return nil
	}
	for i, elem := range arr {
		if err := validateValue(itemSchema, elem, fmt.Sprintf("%s[%d]", path, i)); err != nil {
			return err
		}
	}
	return nil
}
