package gateway

// Record is one topic sample in caller-facing form: a mapping from field
// name to scalar value. Records are transient, created per read or write
// call and never persisted by the gateway.
//
// Value domain after codec normalization: string, bool, int64, float64.
// Inbound records (e.g. decoded from JSON) may additionally carry int, int32
// and float values that are integral; the topic codec converts them against
// the declared field widths and rejects anything else.
type Record map[string]any

// Copy returns a shallow copy of the record. Values are scalars, so a
// shallow copy is a full copy.
func (r Record) Copy() Record {
	c := make(Record, len(r))
	for k, v := range r {
		c[k] = v
	}
	return c
}
