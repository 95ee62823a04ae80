// Package schema declares record schemas and renders them as JSON Schema.
//
// A Schema is an ordered list of fields. Field order is kept so that
// catalogs and SCHEMA messages list properties the way they were declared.
//
//	forms := schema.New(
//	    schema.Prop("id", schema.String()).Describe("The Form ID"),
//	    schema.Prop("status", schema.String().Enum("ENABLED", "DISABLED", "DELETED")),
//	    schema.Prop("height", schema.Integer()),
//	)
package schema

// Type is a JSON Schema primitive type.
type Type string

const (
	TypeString  Type = "string"
	TypeInteger Type = "integer"
	TypeNumber  Type = "number"
	TypeBoolean Type = "boolean"
	TypeObject  Type = "object"
	TypeArray   Type = "array"
	// TypeAny accepts every JSON value including null.
	TypeAny Type = "any"
)

// FormatDateTime marks a string property as a timestamp.
const FormatDateTime = "date-time"

// Property describes the type of a single value.
type Property struct {
	Type        Type
	Format      string
	Allowed     []string
	Description string
	Deprecated  bool

	// Items is the element type of an array.
	Items *Property
	// Properties are the declared fields of an object.
	Properties *Schema
	// Values is the type of every value of a map-like object.
	Values *Property
}

// Field is a named property of an object.
type Field struct {
	Name     string
	Property Property
	Required bool
}

// Schema is an ordered set of fields.
type Schema struct {
	Fields []Field
	index  map[string]int
}

// New builds a schema from fields in declaration order.
func New(fields ...Field) *Schema {
	s := &Schema{Fields: fields, index: make(map[string]int, len(fields))}
	for i, f := range fields {
		s.index[f.Name] = i
	}
	return s
}

// Field returns the named field.
func (s *Schema) Field(name string) (Field, bool) {
	if s == nil {
		return Field{}, false
	}
	i, ok := s.index[name]
	if !ok {
		return Field{}, false
	}
	return s.Fields[i], true
}

// Has reports whether name is declared.
func (s *Schema) Has(name string) bool {
	_, ok := s.Field(name)
	return ok
}

// Names returns field names in declaration order.
func (s *Schema) Names() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

// Required returns the names of required fields.
func (s *Schema) Required() []string {
	var names []string
	for _, f := range s.Fields {
		if f.Required {
			names = append(names, f.Name)
		}
	}
	return names
}

// Prop declares a field.
func Prop(name string, p Property) Field {
	return Field{Name: name, Property: p}
}

// MarkRequired returns a copy of f that must be present and non-null.
func (f Field) MarkRequired() Field {
	f.Required = true
	return f
}

// Describe returns a copy of f with a description.
func (f Field) Describe(description string) Field {
	f.Property.Description = description
	return f
}

// MarkDeprecated returns a copy of f flagged as deprecated.
func (f Field) MarkDeprecated() Field {
	f.Property.Deprecated = true
	return f
}

func String() Property   { return Property{Type: TypeString} }
func Integer() Property  { return Property{Type: TypeInteger} }
func Number() Property   { return Property{Type: TypeNumber} }
func Boolean() Property  { return Property{Type: TypeBoolean} }
func Any() Property      { return Property{Type: TypeAny} }
func DateTime() Property { return Property{Type: TypeString, Format: FormatDateTime} }

// Object declares an object; with no fields any keys are accepted.
func Object(fields ...Field) Property {
	p := Property{Type: TypeObject}
	if len(fields) > 0 {
		p.Properties = New(fields...)
	}
	return p
}

// MapOf declares an object whose values all have type v.
func MapOf(v Property) Property {
	return Property{Type: TypeObject, Values: &v}
}

// ArrayOf declares an array of items.
func ArrayOf(items Property) Property {
	return Property{Type: TypeArray, Items: &items}
}

// Enum returns a copy of p restricted to values.
func (p Property) Enum(values ...string) Property {
	p.Allowed = values
	return p
}

// JSONSchema renders the schema as a JSON Schema object. Non-required
// properties are nullable.
func (s *Schema) JSONSchema() map[string]interface{} {
	props := make(map[string]interface{}, len(s.Fields))
	for _, f := range s.Fields {
		props[f.Name] = f.Property.render(!f.Required)
	}

	out := map[string]interface{}{
		"type":       "object",
		"properties": props,
	}
	if req := s.Required(); len(req) > 0 {
		out["required"] = req
	}
	return out
}

func (p Property) render(nullable bool) map[string]interface{} {
	out := make(map[string]interface{}, 4)

	if p.Type == TypeAny {
		out["type"] = []string{"object", "array", "integer", "number", "boolean", "string", "null"}
	} else if nullable {
		out["type"] = []string{string(p.Type), "null"}
	} else {
		out["type"] = string(p.Type)
	}

	if p.Format != "" {
		out["format"] = p.Format
	}
	if len(p.Allowed) > 0 {
		out["enum"] = p.Allowed
	}
	if p.Description != "" {
		out["description"] = p.Description
	}
	if p.Deprecated {
		out["deprecated"] = true
	}

	switch p.Type {
	case TypeArray:
		if p.Items != nil {
			out["items"] = p.Items.render(true)
		}
	case TypeObject:
		if p.Properties != nil {
			nested := p.Properties.JSONSchema()
			out["properties"] = nested["properties"]
			if req, ok := nested["required"]; ok {
				out["required"] = req
			}
		} else {
			out["properties"] = map[string]interface{}{}
		}
		if p.Values != nil {
			out["additionalProperties"] = p.Values.render(true)
		}
	}

	return out
}
