package meshproto

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// rawField is one top-level field of a length-delimited protobuf
// message, already split into number/wire-type plus its decoded
// scalar or raw bytes payload.
type rawField struct {
	Num   protowire.Number
	Typ   protowire.Type
	Uint  uint64 // valid for Varint, Fixed32, Fixed64
	Bytes []byte // valid for BytesType
}

// walkFields parses b as a flat sequence of protobuf fields and calls
// visit for each recognized one (Varint/Fixed32/Fixed64/Bytes).
// Group-encoded fields are skipped rather than rejected, since no
// message in this pipeline uses them. Any malformed tag or value stops
// the walk and returns an error whose text matches the suppression
// list in package errs, so these are never noisy in production logs.
func walkFields(b []byte, visit func(rawField) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("illegal tag")
		}
		b = b[n:]

		var f rawField
		f.Num, f.Typ = num, typ

		switch typ {
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return fmt.Errorf("invalid wire type: truncated varint")
			}
			f.Uint = v
			b = b[n:]
		case protowire.Fixed32Type:
			v, n := protowire.ConsumeFixed32(b)
			if n < 0 {
				return fmt.Errorf("invalid wire type: truncated fixed32")
			}
			f.Uint = uint64(v)
			b = b[n:]
		case protowire.Fixed64Type:
			v, n := protowire.ConsumeFixed64(b)
			if n < 0 {
				return fmt.Errorf("invalid wire type: truncated fixed64")
			}
			f.Uint = v
			b = b[n:]
		case protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return fmt.Errorf("index out of range")
			}
			f.Bytes = v
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return fmt.Errorf("invalid wire type")
			}
			b = b[n:]
			continue
		}

		if err := visit(f); err != nil {
			return err
		}
	}
	return nil
}

func (f rawField) asString() string { return string(f.Bytes) }
func (f rawField) asUint32() uint32 { return uint32(f.Uint) }
func (f rawField) asBool() bool     { return f.Uint != 0 }
func (f rawField) asFloat32() float32 {
	return math.Float32frombits(uint32(f.Uint))
}

// asSint32 decodes a zigzag-encoded signed 32-bit field (the wire
// shape protobuf uses for sint32, which Position/Waypoint/MapReport
// coordinates are).
func (f rawField) asSint32() int32 {
	return int32(protowire.DecodeZigZag(f.Uint))
}

// float32bits is the inverse of asFloat32, used by the re-encode path.
func float32bits(v float32) uint32 {
	return math.Float32bits(v)
}
