package schema

import (
	"errors"
	"testing"
)

func validDescriptor() TopicDescriptor {
	return TopicDescriptor{
		Name: "SensorData",
		Fields: []FieldDef{
			{Name: "sensor_id", Type: TypeString, Key: true},
			{Name: "temperature", Type: TypeFloat64},
		},
		QoS: DefaultQoS(),
	}
}

func TestDescriptorValidate(t *testing.T) {
	desc := validDescriptor()
	if err := desc.Validate(); err != nil {
		t.Errorf("expected valid descriptor, got %v", err)
	}
}

func TestDescriptorValidateEmptyName(t *testing.T) {
	desc := validDescriptor()
	desc.Name = ""
	if err := desc.Validate(); !errors.Is(err, ErrEmptyTopicName) {
		t.Errorf("expected ErrEmptyTopicName, got %v", err)
	}
}

func TestDescriptorValidateNoFields(t *testing.T) {
	desc := validDescriptor()
	desc.Fields = nil
	if err := desc.Validate(); !errors.Is(err, ErrNoFields) {
		t.Errorf("expected ErrNoFields, got %v", err)
	}
}

func TestDescriptorValidateNoKey(t *testing.T) {
	desc := validDescriptor()
	desc.Fields[0].Key = false
	if err := desc.Validate(); !errors.Is(err, ErrNoKeyFields) {
		t.Errorf("expected ErrNoKeyFields, got %v", err)
	}
}

func TestDescriptorValidateDuplicateField(t *testing.T) {
	desc := validDescriptor()
	desc.Fields = append(desc.Fields, FieldDef{Name: "sensor_id", Type: TypeString})
	if err := desc.Validate(); err == nil {
		t.Error("expected error for duplicate field name")
	}
}

func TestDescriptorField(t *testing.T) {
	desc := validDescriptor()

	f, ok := desc.Field("temperature")
	if !ok {
		t.Fatal("expected temperature field to exist")
	}
	if f.Type != TypeFloat64 {
		t.Errorf("expected float64 type, got %v", f.Type)
	}

	if _, ok := desc.Field("missing"); ok {
		t.Error("expected lookup of undeclared field to fail")
	}
}

func TestDescriptorKeyFields(t *testing.T) {
	desc := validDescriptor()
	keys := desc.KeyFields()
	if len(keys) != 1 || keys[0].Name != "sensor_id" {
		t.Errorf("expected [sensor_id], got %v", keys)
	}
}

func TestParseFieldType(t *testing.T) {
	cases := map[string]FieldType{
		"string":  TypeString,
		"bool":    TypeBool,
		"boolean": TypeBool,
		"int32":   TypeInt32,
		"int64":   TypeInt64,
		"int":     TypeInt64,
		"float32": TypeFloat32,
		"float64": TypeFloat64,
		"double":  TypeFloat64,
	}
	for name, want := range cases {
		got, err := ParseFieldType(name)
		if err != nil {
			t.Errorf("ParseFieldType(%q): unexpected error %v", name, err)
			continue
		}
		if got != want {
			t.Errorf("ParseFieldType(%q) = %v, want %v", name, got, want)
		}
	}

	if _, err := ParseFieldType("varchar"); err == nil {
		t.Error("expected error for unknown field type")
	}
}

func TestParseQoSStrings(t *testing.T) {
	if r, err := ParseReliability("BEST_EFFORT"); err != nil || r != BestEffort {
		t.Errorf("ParseReliability(BEST_EFFORT) = %v, %v", r, err)
	}
	if r, err := ParseReliability(""); err != nil || r != Reliable {
		t.Errorf("ParseReliability(\"\") = %v, %v; want default Reliable", r, err)
	}
	if d, err := ParseDurability("TRANSIENT_LOCAL"); err != nil || d != TransientLocal {
		t.Errorf("ParseDurability(TRANSIENT_LOCAL) = %v, %v", d, err)
	}
	if h, err := ParseHistoryKind("KEEP_ALL"); err != nil || h != KeepAll {
		t.Errorf("ParseHistoryKind(KEEP_ALL) = %v, %v", h, err)
	}
	if _, err := ParseReliability("SOMETIMES"); err == nil {
		t.Error("expected error for unknown reliability")
	}
}

func TestQoSValidateDepth(t *testing.T) {
	q := QoSProfile{Reliability: Reliable, Durability: Volatile, History: KeepLast, Depth: 0}
	if err := q.Validate(); err == nil {
		t.Error("expected error for KEEP_LAST with zero depth")
	}

	q.History = KeepAll
	if err := q.Validate(); err != nil {
		t.Errorf("KEEP_ALL should not require depth, got %v", err)
	}
}
