package llm

import (
	"fmt"
	"math"
	"reflect"
	"sort"

	"go.uber.org/multierr"
	"google.golang.org/genai"
)

// FieldType is the JSON type a schema field must hold.
type FieldType string

const (
	FieldString  FieldType = "string"
	FieldInteger FieldType = "integer"
	FieldNumber  FieldType = "number"
	FieldBoolean FieldType = "boolean"
	FieldObject  FieldType = "object"
	FieldArray   FieldType = "array"
)

// Schema is a flat object schema: every field is required and typed.
type Schema struct {
	Name   string
	Fields map[string]FieldType
	// Items holds the element type of each array field.
	Items map[string]FieldType
}

// SchemaFromSample derives a schema from an example value. Each key of
// sample becomes a required field typed after its value; values of an
// unrecognised type become strings.
func SchemaFromSample(sample map[string]any) *Schema {
	s := &Schema{
		Name:   "DynamicModel",
		Fields: make(map[string]FieldType, len(sample)),
		Items:  make(map[string]FieldType),
	}
	for k, v := range sample {
		t := fieldTypeOf(v)
		s.Fields[k] = t
		if t == FieldArray {
			s.Items[k] = elemTypeOf(v)
		}
	}
	return s
}

// elemTypeOf types an array by its first element, or by its static element
// type when empty. Anything unrecognised is a string.
func elemTypeOf(v any) FieldType {
	rv := reflect.ValueOf(v)
	if rv.Len() > 0 {
		if first := rv.Index(0); first.IsValid() && first.CanInterface() {
			return fieldTypeOf(first.Interface())
		}
	}
	elem := rv.Type().Elem()
	if elem.Kind() == reflect.Interface {
		return FieldString
	}
	return fieldTypeOf(reflect.Zero(elem).Interface())
}

func (s *Schema) itemType(name string) FieldType {
	if t, ok := s.Items[name]; ok {
		return t
	}
	return FieldString
}

func fieldTypeOf(v any) FieldType {
	switch v.(type) {
	case string:
		return FieldString
	case bool:
		return FieldBoolean
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return FieldInteger
	case float32, float64:
		return FieldNumber
	case map[string]any:
		return FieldObject
	}
	if v != nil {
		switch reflect.TypeOf(v).Kind() {
		case reflect.Map:
			return FieldObject
		case reflect.Slice, reflect.Array:
			return FieldArray
		}
	}
	return FieldString
}

// FieldNames returns the field names in sorted order.
func (s *Schema) FieldNames() []string {
	names := make([]string, 0, len(s.Fields))
	for n := range s.Fields {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Validate checks data against the schema and reports every violation.
// Keys not named by the schema are allowed.
func (s *Schema) Validate(data map[string]any) error {
	var err error
	for _, name := range s.FieldNames() {
		v, ok := data[name]
		if !ok {
			err = multierr.Append(err, fmt.Errorf("%s: field required", name))
			continue
		}
		want := s.Fields[name]
		if !matches(want, v) {
			err = multierr.Append(err, fmt.Errorf("%s: expected %s, got %T", name, want, v))
			continue
		}
		if want == FieldArray {
			item := s.itemType(name)
			rv := reflect.ValueOf(v)
			for i := 0; i < rv.Len(); i++ {
				if e := rv.Index(i).Interface(); !matches(item, e) {
					err = multierr.Append(err, fmt.Errorf("%s[%d]: expected %s, got %T", name, i, item, e))
				}
			}
		}
	}
	return err
}

func matches(want FieldType, v any) bool {
	if v == nil {
		return false
	}
	got := fieldTypeOf(v)
	switch want {
	case FieldInteger:
		if f, ok := v.(float64); ok {
			return f == math.Trunc(f) && !math.IsInf(f, 0)
		}
		return got == FieldInteger
	case FieldNumber:
		return got == FieldNumber || got == FieldInteger
	case FieldString:
		_, ok := v.(string)
		return ok
	default:
		return got == want
	}
}

// ToGenAI converts the schema into a Gemini response schema.
func (s *Schema) ToGenAI() *genai.Schema {
	props := make(map[string]*genai.Schema, len(s.Fields))
	for name, t := range s.Fields {
		prop := &genai.Schema{Type: genaiType(t)}
		if t == FieldArray {
			prop.Items = &genai.Schema{Type: genaiType(s.itemType(name))}
		}
		props[name] = prop
	}
	return &genai.Schema{
		Type:       genai.TypeObject,
		Title:      s.Name,
		Properties: props,
		Required:   s.FieldNames(),
	}
}

func genaiType(t FieldType) genai.Type {
	switch t {
	case FieldInteger:
		return genai.TypeInteger
	case FieldNumber:
		return genai.TypeNumber
	case FieldBoolean:
		return genai.TypeBoolean
	case FieldObject:
		return genai.TypeObject
	case FieldArray:
		return genai.TypeArray
	default:
		return genai.TypeString
	}
}
