// Package schema defines parameter schemas for concierge tools.
//
// A schema maps parameter names to typed field declarations with required
// flags, descriptions and defaults. It provides validation, type coercion
// and conversion to a JSON-Schema shape for LLM tool declarations.
package schema

import (
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// Type identifies the value type of a parameter.
type Type string

const (
	TypeString Type = "string"
	TypeInt    Type = "integer"
	TypeNumber Type = "number"
	TypeBool   Type = "boolean"
	TypeObject Type = "object"
	TypeList   Type = "array"
)

// IsValid reports whether the type is one of the defined constants.
func (t Type) IsValid() bool {
	switch t {
	case TypeString, TypeInt, TypeNumber, TypeBool, TypeObject, TypeList:
		return true
	default:
		return false
	}
}

// Field declares a single tool parameter.
type Field struct {
	// Type is the expected value type.
	Type Type `json:"type"`

	// Required marks the parameter as mandatory.
	Required bool `json:"required"`

	// Description explains the parameter to the LLM during resolution.
	Description string `json:"description,omitempty"`

	// Default is applied when an optional parameter is absent.
	Default any `json:"default,omitempty"`

	// Enum restricts the value to one of the listed options.
	Enum []any `json:"enum,omitempty"`
}

// Params is a parameter schema: name to field declaration.
type Params map[string]Field

// String creates a string field with a description.
func String(desc string) Field {
	return Field{Type: TypeString, Description: desc}
}

// Int creates an integer field with a description.
func Int(desc string) Field {
	return Field{Type: TypeInt, Description: desc}
}

// Number creates a number field with a description.
func Number(desc string) Field {
	return Field{Type: TypeNumber, Description: desc}
}

// Bool creates a boolean field with a description.
func Bool(desc string) Field {
	return Field{Type: TypeBool, Description: desc}
}

// Object creates an object field with a description.
func Object(desc string) Field {
	return Field{Type: TypeObject, Description: desc}
}

// List creates an array field with a description.
func List(desc string) Field {
	return Field{Type: TypeList, Description: desc}
}

// Required returns a copy of the field marked required.
func Required(f Field) Field {
	f.Required = true
	return f
}

// WithDefault returns a copy of the field carrying a default value.
func WithDefault(f Field, def any) Field {
	f.Default = def
	return f
}

// WithEnum returns a copy of the field restricted to the given values.
func WithEnum(f Field, values ...any) Field {
	f.Enum = values
	return f
}

// Names returns the parameter names in sorted order.
func (p Params) Names() []string {
	names := make([]string, 0, len(p))
	for name := range p {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RequiredNames returns the required parameter names in sorted order.
func (p Params) RequiredNames() []string {
	names := []string{}
	for name, f := range p {
		if f.Required {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Missing returns the required parameters absent (or nil, or blank string)
// in args, sorted by name.
func (p Params) Missing(args map[string]any) []string {
	var missing []string
	for name, f := range p {
		if !f.Required {
			continue
		}
		v, ok := args[name]
		if !ok || v == nil {
			missing = append(missing, name)
			continue
		}
		if s, isStr := v.(string); isStr && strings.TrimSpace(s) == "" {
			missing = append(missing, name)
		}
	}
	sort.Strings(missing)
	return missing
}

// Coerce returns a typed copy of args with defaults applied for absent
// optional parameters and scalar values converted to the declared type where
// a lossless conversion exists. Integer parameters canonicalize to int64,
// numbers to float64, defaults included. Unknown keys are dropped.
func (p Params) Coerce(args map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(p))
	for name, f := range p {
		v, ok := args[name]
		if !ok || v == nil {
			if f.Default != nil {
				if d, err := coerceValue(f.Type, f.Default); err == nil {
					out[name] = d
				} else {
					out[name] = f.Default
				}
			}
			continue
		}
		coerced, err := coerceValue(f.Type, v)
		if err != nil {
			return nil, fmt.Errorf("parameter %s: %w", name, err)
		}
		out[name] = coerced
	}
	return out, nil
}

// Validate checks args against the schema: required fields present and all
// provided values matching their declared type and enum. Coerce should run
// first; Validate does no conversion.
func (p Params) Validate(args map[string]any) error {
	if missing := p.Missing(args); len(missing) > 0 {
		return fmt.Errorf("missing required parameters: %s", strings.Join(missing, ", "))
	}
	for name, f := range p {
		v, ok := args[name]
		if !ok || v == nil {
			continue
		}
		if err := checkType(f.Type, v); err != nil {
			return fmt.Errorf("parameter %s: %w", name, err)
		}
		if len(f.Enum) > 0 && !enumContains(f.Enum, v) {
			return fmt.Errorf("parameter %s: value %v is not one of the allowed values %v", name, v, f.Enum)
		}
	}
	return nil
}

// JSONSchema renders the schema as a JSON-Schema object suitable for an LLM
// tool declaration.
func (p Params) JSONSchema() map[string]any {
	props := make(map[string]any, len(p))
	for name, f := range p {
		prop := map[string]any{"type": string(f.Type)}
		if f.Description != "" {
			prop["description"] = f.Description
		}
		if f.Default != nil {
			prop["default"] = f.Default
		}
		if len(f.Enum) > 0 {
			prop["enum"] = f.Enum
		}
		props[name] = prop
	}
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   p.RequiredNames(),
	}
}

func coerceValue(t Type, v any) (any, error) {
	switch t {
	case TypeString:
		if s, ok := v.(string); ok {
			return s, nil
		}
		return fmt.Sprintf("%v", v), nil
	case TypeInt:
		return coerceInt(v)
	case TypeNumber:
		return coerceFloat(v)
	case TypeBool:
		return coerceBool(v)
	case TypeObject, TypeList:
		if err := checkType(t, v); err != nil {
			return nil, err
		}
		return v, nil
	default:
		return v, nil
	}
}

func coerceInt(v any) (any, error) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int64(rv.Uint()), nil
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if f != math.Trunc(f) {
			return nil, fmt.Errorf("expected integer, got float with decimal: %v", v)
		}
		return int64(f), nil
	case reflect.String:
		n, err := strconv.ParseInt(strings.TrimSpace(rv.String()), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("expected integer, got %q", rv.String())
		}
		return n, nil
	default:
		return nil, fmt.Errorf("expected integer, got %T", v)
	}
}

func coerceFloat(v any) (any, error) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), nil
	case reflect.Float32, reflect.Float64:
		return rv.Float(), nil
	case reflect.String:
		f, err := strconv.ParseFloat(strings.TrimSpace(rv.String()), 64)
		if err != nil {
			return nil, fmt.Errorf("expected number, got %q", rv.String())
		}
		return f, nil
	default:
		return nil, fmt.Errorf("expected number, got %T", v)
	}
}

func coerceBool(v any) (any, error) {
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(b))
		if err != nil {
			return nil, fmt.Errorf("expected boolean, got %q", b)
		}
		return parsed, nil
	default:
		return nil, fmt.Errorf("expected boolean, got %T", v)
	}
}

func checkType(t Type, v any) error {
	rv := reflect.ValueOf(v)
	switch t {
	case TypeString:
		if rv.Kind() != reflect.String {
			return fmt.Errorf("expected string, got %T", v)
		}
	case TypeInt:
		switch rv.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
			reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		case reflect.Float32, reflect.Float64:
			if rv.Float() != math.Trunc(rv.Float()) {
				return fmt.Errorf("expected integer, got float with decimal: %v", v)
			}
		default:
			return fmt.Errorf("expected integer, got %T", v)
		}
	case TypeNumber:
		switch rv.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
			reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
			reflect.Float32, reflect.Float64:
		default:
			return fmt.Errorf("expected number, got %T", v)
		}
	case TypeBool:
		if rv.Kind() != reflect.Bool {
			return fmt.Errorf("expected boolean, got %T", v)
		}
	case TypeObject:
		if rv.Kind() != reflect.Map {
			return fmt.Errorf("expected object, got %T", v)
		}
	case TypeList:
		if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
			return fmt.Errorf("expected array, got %T", v)
		}
	}
	return nil
}

func enumContains(enum []any, v any) bool {
	for _, e := range enum {
		if reflect.DeepEqual(e, v) {
			return true
		}
	}
	return false
}
