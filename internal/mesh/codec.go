package mesh

import (
	"math"
	"time"

	"github.com/meshgate/meshgate/pkg/gateway"
	meshpkg "github.com/meshgate/meshgate/pkg/mesh"
	"github.com/meshgate/meshgate/pkg/schema"
)

// Schema-driven codec between caller-facing records and the mesh's typed
// sample representation. The descriptor drives every conversion: unknown
// fields and type mismatches are rejected explicitly, never coerced
// silently, and numeric values are converted with the declared width.

// MarshalRecord converts a record into a typed sample for the topic.
//
// Key fields must be present; non-key fields that are absent take their
// type's zero value. Fields the topic does not declare, values of the wrong
// type, integer overflow and floating point precision loss all fail with a
// schema mismatch naming the offending field.
func MarshalRecord(desc *schema.TopicDescriptor, record gateway.Record) (meshpkg.Sample, error) {
	for name := range record {
		if _, ok := desc.Field(name); !ok {
			return meshpkg.Sample{}, schemaErr(desc.Name, name, "field not declared by topic")
		}
	}

	fields := make(map[string]meshpkg.Value, len(desc.Fields))
	for _, f := range desc.Fields {
		raw, present := record[f.Name]
		if !present {
			if f.Key {
				return meshpkg.Sample{}, schemaErr(desc.Name, f.Name, "missing key field")
			}
			fields[f.Name] = zeroValue(f.Type)
			continue
		}
		v, reason := convertValue(f.Type, raw)
		if reason != "" {
			return meshpkg.Sample{}, schemaErr(desc.Name, f.Name, reason)
		}
		fields[f.Name] = v
	}

	return meshpkg.Sample{
		Topic:  desc.Name,
		At:     time.Now().UTC(),
		Fields: fields,
	}, nil
}

// UnmarshalSample converts a typed sample back into a caller-facing record.
// Every declared field, key fields included, is present in the result.
func UnmarshalSample(desc *schema.TopicDescriptor, sample meshpkg.Sample) gateway.Record {
	record := make(gateway.Record, len(desc.Fields))
	for _, f := range desc.Fields {
		v, ok := sample.Fields[f.Name]
		if !ok {
			v = zeroValue(f.Type)
		}
		switch f.Type {
		case schema.TypeString:
			record[f.Name] = v.Str
		case schema.TypeBool:
			record[f.Name] = v.Bool
		case schema.TypeInt32, schema.TypeInt64:
			record[f.Name] = v.Int
		case schema.TypeFloat32, schema.TypeFloat64:
			record[f.Name] = v.Float
		}
	}
	return record
}

// convertValue converts one raw record value into a typed mesh value.
// An empty reason means success.
func convertValue(t schema.FieldType, raw any) (meshpkg.Value, string) {
	switch t {
	case schema.TypeString:
		s, ok := raw.(string)
		if !ok {
			return meshpkg.Value{}, "expected string, got " + typeName(raw)
		}
		return meshpkg.StringValue(s), ""

	case schema.TypeBool:
		b, ok := raw.(bool)
		if !ok {
			return meshpkg.Value{}, "expected bool, got " + typeName(raw)
		}
		return meshpkg.BoolValue(b), ""

	case schema.TypeInt32:
		i, reason := coerceInt(raw)
		if reason != "" {
			return meshpkg.Value{}, reason
		}
		if i < math.MinInt32 || i > math.MaxInt32 {
			return meshpkg.Value{}, "value overflows int32"
		}
		return meshpkg.IntValue(schema.TypeInt32, i), ""

	case schema.TypeInt64:
		i, reason := coerceInt(raw)
		if reason != "" {
			return meshpkg.Value{}, reason
		}
		return meshpkg.IntValue(schema.TypeInt64, i), ""

	case schema.TypeFloat32:
		f, reason := coerceFloat(raw)
		if reason != "" {
			return meshpkg.Value{}, reason
		}
		if math.Abs(f) > math.MaxFloat32 {
			return meshpkg.Value{}, "value overflows float32"
		}
		if float64(float32(f)) != f {
			return meshpkg.Value{}, "value loses precision as float32"
		}
		return meshpkg.FloatValue(schema.TypeFloat32, f), ""

	case schema.TypeFloat64:
		f, reason := coerceFloat(raw)
		if reason != "" {
			return meshpkg.Value{}, reason
		}
		return meshpkg.FloatValue(schema.TypeFloat64, f), ""
	}
	return meshpkg.Value{}, "unsupported field type"
}

// coerceInt widens any integer-valued input to int64. JSON decoding yields
// float64 for numbers, so integral floats are accepted; fractional values
// are not.
func coerceInt(raw any) (int64, string) {
	switch v := raw.(type) {
	case int:
		return int64(v), ""
	case int32:
		return int64(v), ""
	case int64:
		return v, ""
	case float64:
		if v != math.Trunc(v) {
			return 0, "expected integer, got fractional number"
		}
		if v < math.MinInt64 || v >= math.MaxInt64 {
			return 0, "value overflows int64"
		}
		return int64(v), ""
	default:
		return 0, "expected integer, got " + typeName(raw)
	}
}

// coerceFloat widens any numeric input to float64, rejecting integers that
// cannot be represented exactly.
func coerceFloat(raw any) (float64, string) {
	switch v := raw.(type) {
	case float64:
		return v, ""
	case float32:
		return float64(v), ""
	case int:
		return intToFloat(int64(v))
	case int32:
		return float64(v), ""
	case int64:
		return intToFloat(v)
	default:
		return 0, "expected number, got " + typeName(raw)
	}
}

func intToFloat(i int64) (float64, string) {
	f := float64(i)
	if int64(f) != i {
		return 0, "integer value loses precision as float"
	}
	return f, ""
}

func zeroValue(t schema.FieldType) meshpkg.Value {
	return meshpkg.Value{Kind: t}
}

func typeName(raw any) string {
	switch raw.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "bool"
	case int, int32, int64:
		return "integer"
	case float32, float64:
		return "number"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	default:
		return "unsupported value"
	}
}

func schemaErr(topic, field, reason string) error {
	return &gateway.Error{
		Kind:  gateway.KindSchemaMismatch,
		Op:    "marshal",
		Topic: topic,
		Field: field,
		Msg:   reason,
	}
}
