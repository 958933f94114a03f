package meshproto

import "encoding/json"

// JSONEnvelope is the shape of a type=json MQTT message: the same
// ServiceEnvelope fields as the binary path, but camelCase JSON rather
// than a protobuf wire encoding. Gateways disagree on casing for a
// couple of fields in the wild, so the lookups below check both forms
// before giving up.
type JSONEnvelope struct {
	raw map[string]json.RawMessage
}

// ParseJSONEnvelope unmarshals a type=json MQTT payload into a
// field-lookup helper. It does not validate structure beyond being a
// JSON object: per-field decoding is lazy, via the String/Uint32/
// Float64/Raw accessors below.
func ParseJSONEnvelope(b []byte) (*JSONEnvelope, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, err
	}
	return &JSONEnvelope{raw: raw}, nil
}

// field returns the raw JSON for the first of names present in the object.
func (e *JSONEnvelope) field(names ...string) (json.RawMessage, bool) {
	for _, n := range names {
		if v, ok := e.raw[n]; ok {
			return v, true
		}
	}
	return nil, false
}

// String reads a string-valued field, trying each of names in order.
func (e *JSONEnvelope) String(names ...string) string {
	v, ok := e.field(names...)
	if !ok {
		return ""
	}
	var s string
	_ = json.Unmarshal(v, &s)
	return s
}

// Uint32 reads a numeric field, trying each of names in order.
func (e *JSONEnvelope) Uint32(names ...string) uint32 {
	v, ok := e.field(names...)
	if !ok {
		return 0
	}
	var n uint32
	_ = json.Unmarshal(v, &n)
	return n
}

// Float64 reads a float-valued field, trying each of names in order.
func (e *JSONEnvelope) Float64(names ...string) float64 {
	v, ok := e.field(names...)
	if !ok {
		return 0
	}
	var f float64
	_ = json.Unmarshal(v, &f)
	return f
}

// Raw returns the undecoded payload for fields the caller wants to
// hand to a nested parser (e.g. the "payload" object for a position).
func (e *JSONEnvelope) Raw(names ...string) (json.RawMessage, bool) {
	return e.field(names...)
}

// Common field-name aliases seen across gateway firmware versions.
var (
	fieldFrom      = []string{"from", "sender"}
	fieldTo        = []string{"to"}
	fieldID        = []string{"id"}
	fieldType      = []string{"type"}
	fieldPayload   = []string{"payload"}
	fieldChannel   = []string{"channel"}
	fieldHopLimit  = []string{"hop_limit", "hopLimit"}
	fieldRxSnr     = []string{"rssi_snr", "rxSnr", "rx_snr"}
	fieldRxRssi    = []string{"rssi", "rxRssi", "rx_rssi"}
	fieldSenderID  = []string{"sender", "sender_id", "senderId"}
	fieldGatewayID = []string{"gateway_id", "gatewayId"}
)

// ToMeshPacket extracts the subset of fields the ingest pipeline needs
// from a type=json message: enough to run it through the same
// dedup/store/mapagg path as a decoded binary packet, without
// requiring every JSON field the binary form carries.
func (e *JSONEnvelope) ToMeshPacket() MeshPacket {
	return MeshPacket{
		From:     e.Uint32(fieldFrom...),
		To:       e.Uint32(fieldTo...),
		ID:       e.Uint32(fieldID...),
		HopLimit: e.Uint32(fieldHopLimit...),
		RxSnr:    float32(e.Float64(fieldRxSnr...)),
		RxRssi:   int32(e.Float64(fieldRxRssi...)),
	}
}

// PortnumName returns the JSON "type" field, which on this path is a
// human-readable port name rather than a numeric Portnum.
func (e *JSONEnvelope) PortnumName() string {
	return e.String(fieldType...)
}

// GatewayID returns the announcing gateway's device id string.
func (e *JSONEnvelope) GatewayID() string {
	return e.String(fieldGatewayID...)
}
