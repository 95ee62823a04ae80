package schema

import (
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/ajitpratap0/tap-jotform/pkg/errors"
	jsonx "github.com/ajitpratap0/tap-jotform/pkg/json"
)

// ConformLevel controls how deep Conform removes undeclared properties.
type ConformLevel int

const (
	// ConformRecursive drops undeclared keys at every level that declares
	// properties.
	ConformRecursive ConformLevel = iota
	// ConformRootOnly drops undeclared keys only at the top level.
	ConformRootOnly
)

// Conform removes keys not declared by the schema and returns the removed
// top-level names in sorted order. Objects without declared properties keep
// all their keys.
func (s *Schema) Conform(record map[string]interface{}, level ConformLevel) []string {
	var removed []string
	for key, value := range record {
		f, ok := s.Field(key)
		if !ok {
			delete(record, key)
			removed = append(removed, key)
			continue
		}
		if level == ConformRecursive {
			f.Property.conform(value)
		}
	}
	sort.Strings(removed)
	return removed
}

func (p Property) conform(value interface{}) {
	switch p.Type {
	case TypeObject:
		m, ok := value.(map[string]interface{})
		if !ok {
			return
		}
		if p.Properties != nil {
			p.Properties.Conform(m, ConformRecursive)
		}
		if p.Values != nil {
			for _, v := range m {
				p.Values.conform(v)
			}
		}
	case TypeArray:
		if p.Items == nil {
			return
		}
		for _, item := range asSlice(value) {
			p.Items.conform(item)
		}
	}
}

// Validator checks records against a compiled JSON Schema.
type Validator struct {
	schema *gojsonschema.Schema
}

// Compile builds a Validator from s. Timestamp formats are not checked since
// Jotform timestamps are not RFC 3339.
func Compile(s *Schema) (*Validator, error) {
	doc := s.JSONSchema()
	relaxForValidation(doc)
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid record schema")
	}
	return &Validator{schema: compiled}, nil
}

// Validate checks record. Required fields must be present and non-null;
// other fields may be null or absent.
func (v *Validator) Validate(record map[string]interface{}) error {
	data, err := jsonx.Marshal(record)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeValidation, "record is not serializable")
	}
	result, err := v.schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeValidation, "failed to validate record")
	}
	if result.Valid() {
		return nil
	}

	descs := result.Errors()
	msgs := make([]string, len(descs))
	for i, desc := range descs {
		msgs[i] = desc.Field() + ": " + desc.Description()
	}
	first := descs[0]
	return errors.New(errors.ErrorTypeValidation, strings.Join(msgs, "; ")).
		WithDetail("property", first.Field()).
		WithDetail("rule", first.Type()).
		WithDetail("value", first.Value())
}

// Validate compiles s and checks record once. Use Compile when validating
// many records.
func (s *Schema) Validate(record map[string]interface{}) error {
	v, err := Compile(s)
	if err != nil {
		return err
	}
	return v.Validate(record)
}

// relaxForValidation drops format keywords and lets nullable enums take null.
func relaxForValidation(node map[string]interface{}) {
	delete(node, "format")
	if allowed, ok := node["enum"].([]string); ok {
		enum := make([]interface{}, 0, len(allowed)+1)
		for _, a := range allowed {
			enum = append(enum, a)
		}
		if types, ok := node["type"].([]string); ok && contains(types, "null") {
			enum = append(enum, nil)
		}
		node["enum"] = enum
	}
	if props, ok := node["properties"].(map[string]interface{}); ok {
		for _, p := range props {
			if m, ok := p.(map[string]interface{}); ok {
				relaxForValidation(m)
			}
		}
	}
	for _, key := range []string{"items", "additionalProperties"} {
		if m, ok := node[key].(map[string]interface{}); ok {
			relaxForValidation(m)
		}
	}
}

func toSlice(v interface{}) ([]interface{}, bool) {
	switch s := v.(type) {
	case []interface{}:
		return s, true
	case []string:
		out := make([]interface{}, len(s))
		for i, x := range s {
			out[i] = x
		}
		return out, true
	case []map[string]interface{}:
		out := make([]interface{}, len(s))
		for i, x := range s {
			out[i] = x
		}
		return out, true
	default:
		return nil, false
	}
}

func asSlice(v interface{}) []interface{} {
	s, _ := toSlice(v)
	return s
}

func contains(values []string, v string) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}
