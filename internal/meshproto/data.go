package meshproto

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Data field numbers.
const (
	dataPortnumField protowire.Number = 1
	dataPayloadField protowire.Number = 2
)

// Portnum identifies the payload kind carried inside a Data message.
// The numeric values match the well-known Meshtastic port assignments
// this pipeline dispatches on; anything not listed here is still
// carried through with its numeric value and raw bytes intact.
type Portnum uint32

const (
	PortnumTextMessage    Portnum = 1
	PortnumPosition       Portnum = 3
	PortnumNodeInfo       Portnum = 4
	PortnumRouting        Portnum = 5
	PortnumAdmin          Portnum = 6
	PortnumWaypoint       Portnum = 8
	PortnumNeighborInfo   Portnum = 71
	PortnumMapReport      Portnum = 73
	PortnumTelemetry      Portnum = 67
	PortnumTraceroute     Portnum = 70
	PortnumRangeTest      Portnum = 66
	PortnumStoreForward   Portnum = 65
	PortnumSerial         Portnum = 64
	PortnumDetectionSensr Portnum = 68
)

// Data is the payload of a decrypted or already-plaintext MeshPacket.
type Data struct {
	Portnum Portnum
	Payload []byte
}

func decodeData(b []byte) (*Data, error) {
	d := &Data{}
	err := walkFields(b, func(f rawField) error {
		switch f.Num {
		case dataPortnumField:
			d.Portnum = Portnum(f.asUint32())
		case dataPayloadField:
			if f.Typ != protowire.BytesType {
				return fmt.Errorf("invalid wire type: payload field")
			}
			d.Payload = f.Bytes
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

func encodeData(d *Data) []byte {
	var out []byte
	out = protowire.AppendTag(out, dataPortnumField, protowire.VarintType)
	out = protowire.AppendVarint(out, uint64(d.Portnum))
	out = protowire.AppendTag(out, dataPayloadField, protowire.BytesType)
	out = protowire.AppendBytes(out, d.Payload)
	return out
}

// Position field numbers.
const (
	posLatitudeField  protowire.Number = 1
	posLongitudeField protowire.Number = 2
	posAltitudeField  protowire.Number = 3
	posTimeField      protowire.Number = 4
)

// Position is the decoded PortnumPosition payload. Coordinates are
// fixed-point degrees * 1e-7, matching the radio firmware's on-wire
// convention; callers divide by 1e7 to get floating-point degrees.
type Position struct {
	LatitudeI  int32
	LongitudeI int32
	Altitude   int32
	Time       uint32
}

// DecodePosition parses a PortnumPosition payload.
func DecodePosition(b []byte) (*Position, error) {
	p := &Position{}
	err := walkFields(b, func(f rawField) error {
		switch f.Num {
		case posLatitudeField:
			p.LatitudeI = f.asSint32()
		case posLongitudeField:
			p.LongitudeI = f.asSint32()
		case posAltitudeField:
			p.Altitude = int32(f.asUint32())
		case posTimeField:
			p.Time = f.asUint32()
		}
		return nil
	})
	return p, err
}

// User field numbers.
const (
	userIDField        protowire.Number = 1
	userLongNameField  protowire.Number = 2
	userShortNameField protowire.Number = 3
	userMacaddrField   protowire.Number = 4
	userPublicKeyField protowire.Number = 5
)

// User is the decoded PortnumNodeInfo payload.
type User struct {
	ID        string
	LongName  string
	ShortName string
	Macaddr   []byte
	PublicKey []byte
}

// DecodeUser parses a PortnumNodeInfo payload.
func DecodeUser(b []byte) (*User, error) {
	u := &User{}
	err := walkFields(b, func(f rawField) error {
		switch f.Num {
		case userIDField:
			u.ID = f.asString()
		case userLongNameField:
			u.LongName = f.asString()
		case userShortNameField:
			u.ShortName = f.asString()
		case userMacaddrField:
			u.Macaddr = f.Bytes
		case userPublicKeyField:
			u.PublicKey = f.Bytes
		}
		return nil
	})
	return u, err
}

// Telemetry field numbers. DeviceMetrics and EnvironmentMetrics are
// mutually exclusive oneof variants on the wire; this package does not
// decode their contents (the pipeline only needs to know a telemetry
// record arrived and which variant it was), so both are kept as raw
// bytes.
const (
	telTimeField               protowire.Number = 1
	telDeviceMetricsField      protowire.Number = 2
	telEnvironmentMetricsField protowire.Number = 3
)

// TelemetryVariant distinguishes which oneof arm a Telemetry record carries.
type TelemetryVariant int

const (
	TelemetryNone TelemetryVariant = iota
	TelemetryDevice
	TelemetryEnvironment
)

// Telemetry is the decoded PortnumTelemetry payload.
type Telemetry struct {
	Time    uint32
	Variant TelemetryVariant
	Raw     []byte // raw bytes of whichever oneof arm was present
}

// DecodeTelemetry parses a PortnumTelemetry payload.
func DecodeTelemetry(b []byte) (*Telemetry, error) {
	t := &Telemetry{}
	err := walkFields(b, func(f rawField) error {
		switch f.Num {
		case telTimeField:
			t.Time = f.asUint32()
		case telDeviceMetricsField:
			t.Variant = TelemetryDevice
			t.Raw = f.Bytes
		case telEnvironmentMetricsField:
			t.Variant = TelemetryEnvironment
			t.Raw = f.Bytes
		}
		return nil
	})
	return t, err
}

// Waypoint field numbers.
const (
	wptIDField          protowire.Number = 1
	wptLatitudeField    protowire.Number = 2
	wptLongitudeField   protowire.Number = 3
	wptNameField        protowire.Number = 4
	wptDescriptionField protowire.Number = 5
)

// Waypoint is the decoded PortnumWaypoint payload.
type Waypoint struct {
	ID          uint32
	LatitudeI   int32
	LongitudeI  int32
	Name        string
	Description string
}

// DecodeWaypoint parses a PortnumWaypoint payload.
func DecodeWaypoint(b []byte) (*Waypoint, error) {
	w := &Waypoint{}
	err := walkFields(b, func(f rawField) error {
		switch f.Num {
		case wptIDField:
			w.ID = f.asUint32()
		case wptLatitudeField:
			w.LatitudeI = f.asSint32()
		case wptLongitudeField:
			w.LongitudeI = f.asSint32()
		case wptNameField:
			w.Name = f.asString()
		case wptDescriptionField:
			w.Description = f.asString()
		}
		return nil
	})
	return w, err
}

// MapReport field numbers.
const (
	mrLongNameField  protowire.Number = 1
	mrShortNameField protowire.Number = 2
	mrLatitudeField  protowire.Number = 3
	mrLongitudeField protowire.Number = 4
	mrAltitudeField  protowire.Number = 5
)

// MapReport is the decoded PortnumMapReport payload: a node's
// self-announced identity plus its position, used to seed or refresh
// a Dot without needing a prior NodeInfo/Position pair.
type MapReport struct {
	LongName   string
	ShortName  string
	LatitudeI  int32
	LongitudeI int32
	Altitude   int32
}

// DecodeMapReport parses a PortnumMapReport payload.
func DecodeMapReport(b []byte) (*MapReport, error) {
	m := &MapReport{}
	err := walkFields(b, func(f rawField) error {
		switch f.Num {
		case mrLongNameField:
			m.LongName = f.asString()
		case mrShortNameField:
			m.ShortName = f.asString()
		case mrLatitudeField:
			m.LatitudeI = f.asSint32()
		case mrLongitudeField:
			m.LongitudeI = f.asSint32()
		case mrAltitudeField:
			m.Altitude = int32(f.asUint32())
		}
		return nil
	})
	return m, err
}

// NeighborInfo field numbers. Only the neighbor count is needed by the
// pipeline, which treats NeighborInfo as liveness evidence rather than
// map data, so individual neighbor entries are not decoded.
const (
	niNodeIDField       protowire.Number = 1
	niLastSentByIDField protowire.Number = 2
	niNeighborsField    protowire.Number = 3
)

// NeighborInfo is the decoded PortnumNeighborInfo payload.
type NeighborInfo struct {
	NodeID        uint32
	LastSentByID  uint32
	NeighborCount int
}

// DecodeNeighborInfo parses a PortnumNeighborInfo payload.
func DecodeNeighborInfo(b []byte) (*NeighborInfo, error) {
	n := &NeighborInfo{}
	err := walkFields(b, func(f rawField) error {
		switch f.Num {
		case niNodeIDField:
			n.NodeID = f.asUint32()
		case niLastSentByIDField:
			n.LastSentByID = f.asUint32()
		case niNeighborsField:
			n.NeighborCount++
		}
		return nil
	})
	return n, err
}

// RouteDiscovery field number: "route" is a packed-or-unpacked repeated
// uint32 of relay node ids; this pipeline only needs the hop count.
const routeField protowire.Number = 1

// RouteDiscovery is the decoded PortnumTraceroute payload.
type RouteDiscovery struct {
	Route []uint32
}

// DecodeRouteDiscovery parses a PortnumTraceroute payload. Both the
// packed (single Bytes field of varints) and unpacked (repeated
// Varint fields) encodings are accepted, since traceroute payloads
// have been seen in both forms across firmware versions.
func DecodeRouteDiscovery(b []byte) (*RouteDiscovery, error) {
	r := &RouteDiscovery{}
	err := walkFields(b, func(f rawField) error {
		if f.Num != routeField {
			return nil
		}
		switch f.Typ {
		case protowire.VarintType:
			r.Route = append(r.Route, f.asUint32())
		case protowire.BytesType:
			packed := f.Bytes
			for len(packed) > 0 {
				v, n := protowire.ConsumeVarint(packed)
				if n < 0 {
					return fmt.Errorf("illegal tag: packed route")
				}
				r.Route = append(r.Route, uint32(v))
				packed = packed[n:]
			}
		}
		return nil
	})
	return r, err
}
