package schema

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyTopicName is returned when a descriptor has no topic name
	ErrEmptyTopicName = errors.New("topic name cannot be empty")
	// ErrNoFields is returned when a descriptor declares no fields
	ErrNoFields = errors.New("topic must declare at least one field")
	// ErrNoKeyFields is returned when a descriptor declares no key fields
	ErrNoKeyFields = errors.New("topic must declare at least one key field")
)

// FieldType identifies the declared wire type of a topic field.
type FieldType int

const (
	// TypeString is a UTF-8 string field
	TypeString FieldType = iota
	// TypeBool is a boolean field
	TypeBool
	// TypeInt32 is a 32-bit signed integer field
	TypeInt32
	// TypeInt64 is a 64-bit signed integer field
	TypeInt64
	// TypeFloat32 is a 32-bit floating point field
	TypeFloat32
	// TypeFloat64 is a 64-bit floating point field
	TypeFloat64
)

func (t FieldType) String() string {
	switch t {
	case TypeString:
		return "string"
	case TypeBool:
		return "bool"
	case TypeInt32:
		return "int32"
	case TypeInt64:
		return "int64"
	case TypeFloat32:
		return "float32"
	case TypeFloat64:
		return "float64"
	default:
		return "unknown"
	}
}

// ParseFieldType converts a configuration type name into a FieldType.
func ParseFieldType(name string) (FieldType, error) {
	switch name {
	case "string":
		return TypeString, nil
	case "bool", "boolean":
		return TypeBool, nil
	case "int32":
		return TypeInt32, nil
	case "int64", "int":
		return TypeInt64, nil
	case "float32":
		return TypeFloat32, nil
	case "float64", "float", "double":
		return TypeFloat64, nil
	default:
		return 0, fmt.Errorf("unknown field type %q", name)
	}
}

// FieldDef describes a single typed field of a topic.
type FieldDef struct {
	// Name is the field name used in caller-facing records
	Name string

	// Type is the declared wire type of the field
	Type FieldType

	// Key marks this field as part of the topic's instance key.
	// Key fields must be present on every write and are always present
	// on read results.
	Key bool
}

// TopicDescriptor describes one topic: its name, field layout and the
// QoS profile its transport endpoints are created with.
// Descriptors are immutable after construction.
type TopicDescriptor struct {
	// Name is the topic name on the mesh
	Name string

	// Fields is the ordered field list; order is fixed at load time
	Fields []FieldDef

	// QoS is the transport quality-of-service profile for this topic
	QoS QoSProfile
}

// Field returns the definition for the named field, or false when the
// topic does not declare it.
func (d *TopicDescriptor) Field(name string) (FieldDef, bool) {
	for _, f := range d.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldDef{}, false
}

// KeyFields returns the declared key fields in declaration order.
func (d *TopicDescriptor) KeyFields() []FieldDef {
	keys := make([]FieldDef, 0, len(d.Fields))
	for _, f := range d.Fields {
		if f.Key {
			keys = append(keys, f)
		}
	}
	return keys
}

// Validate checks the descriptor for structural problems: an empty name,
// an empty field list, duplicate field names or a missing key.
func (d *TopicDescriptor) Validate() error {
	if d.Name == "" {
		return ErrEmptyTopicName
	}
	if len(d.Fields) == 0 {
		return fmt.Errorf("topic %q: %w", d.Name, ErrNoFields)
	}

	seen := make(map[string]bool, len(d.Fields))
	hasKey := false
	for _, f := range d.Fields {
		if f.Name == "" {
			return fmt.Errorf("topic %q: field name cannot be empty", d.Name)
		}
		if seen[f.Name] {
			return fmt.Errorf("topic %q: duplicate field %q", d.Name, f.Name)
		}
		seen[f.Name] = true
		if f.Key {
			hasKey = true
		}
	}
	if !hasKey {
		return fmt.Errorf("topic %q: %w", d.Name, ErrNoKeyFields)
	}

	return d.QoS.Validate()
}
