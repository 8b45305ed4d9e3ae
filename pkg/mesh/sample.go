package mesh

import (
	"time"

	"github.com/meshgate/meshgate/pkg/schema"
)

// Value is one typed field value inside a Sample. Exactly one of the value
// slots is meaningful, selected by Kind.
type Value struct {
	Kind  schema.FieldType
	Str   string
	Int   int64 // holds both int32 and int64 field values
	Float float64
	Bool  bool
}

// StringValue wraps a string field value.
func StringValue(s string) Value { return Value{Kind: schema.TypeString, Str: s} }

// BoolValue wraps a boolean field value.
func BoolValue(b bool) Value { return Value{Kind: schema.TypeBool, Bool: b} }

// IntValue wraps an integer field value of the given declared width.
func IntValue(kind schema.FieldType, v int64) Value { return Value{Kind: kind, Int: v} }

// FloatValue wraps a floating point field value of the given declared width.
func FloatValue(kind schema.FieldType, v float64) Value { return Value{Kind: kind, Float: v} }

// Sample is one keyed, typed sample as the mesh carries it. Fields is a
// complete mapping for the topic's declared fields; key fields are always
// present.
type Sample struct {
	// Topic is the topic this sample was published on
	Topic string

	// At is the publication timestamp assigned by the writer
	At time.Time

	// Fields maps field name to typed value
	Fields map[string]Value
}

// Copy returns a deep copy of the sample.
func (s Sample) Copy() Sample {
	fields := make(map[string]Value, len(s.Fields))
	for k, v := range s.Fields {
		fields[k] = v
	}
	return Sample{Topic: s.Topic, At: s.At, Fields: fields}
}
