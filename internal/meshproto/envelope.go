// Package meshproto decodes the MQTT-carried mesh radio envelope: the
// ServiceEnvelope wrapping a MeshPacket, and the per-port Data payload
// once decrypted or already in the clear.
//
// There is no .proto source behind these types — this pipeline
// deliberately decodes only the fields it needs rather than vendoring
// the full upstream schema — so the field numbers below are this
// package's own internal wire contract, agreed between Decode and the
// re-Encode used by round-trip tests, not a transcription of any
// upstream schema.
package meshproto

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Size bounds a ServiceEnvelope must fall within to be worth decoding.
const (
	MinPacketBytes = 10
	MaxPacketBytes = 524288
)

// Envelope field numbers.
const (
	envPacketField    protowire.Number = 1
	envChannelIDField protowire.Number = 2
	envGatewayIDField protowire.Number = 3
)

// MeshPacket field numbers.
const (
	pktFromField      protowire.Number = 1
	pktToField        protowire.Number = 2
	pktIDField        protowire.Number = 3
	pktRxTimeField    protowire.Number = 4
	pktRxSnrField     protowire.Number = 5
	pktRxRssiField    protowire.Number = 6
	pktHopLimitField  protowire.Number = 7
	pktDecodedField   protowire.Number = 8
	pktEncryptedField protowire.Number = 9
)

// ServiceEnvelope is the outer MQTT message.
type ServiceEnvelope struct {
	Packet    MeshPacket
	ChannelID string
	GatewayID string
}

// MeshPacket carries the RF-layer fields plus either a decoded Data
// payload or an encrypted blob that must be tried against the
// configured key list (see Decrypt).
type MeshPacket struct {
	From      uint32
	To        uint32
	ID        uint32
	RxTime    uint32 // seconds, as reported by the radio
	RxSnr     float32
	RxRssi    int32
	HopLimit  uint32
	Decoded   *Data
	Encrypted []byte // nil if Decoded is set
}

// ValidateEnvelope applies sanity checks before any decoding is
// attempted: size bounds, and the first field must announce itself
// as length-delimited field 1 (the "packet" field) with a size that
// actually fits in the buffer.
func ValidateEnvelope(buf []byte) error {
	if len(buf) < MinPacketBytes || len(buf) > MaxPacketBytes {
		return fmt.Errorf("packet size %d out of bounds [%d,%d]", len(buf), MinPacketBytes, MaxPacketBytes)
	}

	num, typ, n := protowire.ConsumeTag(buf)
	if n < 0 {
		return fmt.Errorf("illegal tag")
	}
	if typ != protowire.BytesType {
		return fmt.Errorf("invalid wire type: want length-delimited, got %d", typ)
	}
	if num != envPacketField {
		return fmt.Errorf("invalid wire type: want field %d, got %d", envPacketField, num)
	}

	rest := buf[n:]
	size, n2 := protowire.ConsumeVarint(rest)
	if n2 < 0 {
		return fmt.Errorf("illegal tag: truncated length")
	}
	if uint64(len(rest)-n2) < size {
		return fmt.Errorf("index out of range: announced size %d exceeds buffer", size)
	}
	return nil
}

// DecodeEnvelope validates and parses buf into a ServiceEnvelope. A
// clear-text MeshPacket's Data message is parsed into Decoded (portnum
// plus payload bytes), but the payload itself is left undecoded: the
// caller runs it through the per-port decoder (DecodePosition,
// DecodeUser, ...) once portnum dispatch is known. If
// MeshPacket.Encrypted is set instead, it must go through Decrypt first.
func DecodeEnvelope(buf []byte) (*ServiceEnvelope, error) {
	if err := ValidateEnvelope(buf); err != nil {
		return nil, err
	}

	env := &ServiceEnvelope{}
	err := walkFields(buf, func(f rawField) error {
		switch f.Num {
		case envPacketField:
			if f.Typ != protowire.BytesType {
				return fmt.Errorf("invalid wire type: packet field")
			}
			pkt, err := decodeMeshPacket(f.Bytes)
			if err != nil {
				return err
			}
			env.Packet = *pkt
		case envChannelIDField:
			env.ChannelID = f.asString()
		case envGatewayIDField:
			env.GatewayID = f.asString()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if env.Packet.Decoded == nil && env.Packet.Encrypted == nil {
		return nil, fmt.Errorf("packet has neither decoded nor encrypted payload")
	}
	if env.Packet.Decoded != nil && env.Packet.Encrypted != nil {
		return nil, fmt.Errorf("packet has both decoded and encrypted payload")
	}
	return env, nil
}

func decodeMeshPacket(b []byte) (*MeshPacket, error) {
	pkt := &MeshPacket{}
	err := walkFields(b, func(f rawField) error {
		switch f.Num {
		case pktFromField:
			pkt.From = f.asUint32()
		case pktToField:
			pkt.To = f.asUint32()
		case pktIDField:
			pkt.ID = f.asUint32()
		case pktRxTimeField:
			pkt.RxTime = f.asUint32()
		case pktRxSnrField:
			pkt.RxSnr = f.asFloat32()
		case pktRxRssiField:
			pkt.RxRssi = f.asSint32()
		case pktHopLimitField:
			pkt.HopLimit = f.asUint32()
		case pktDecodedField:
			if f.Typ != protowire.BytesType {
				return fmt.Errorf("invalid wire type: decoded field")
			}
			data, err := decodeData(f.Bytes)
			if err != nil {
				return err
			}
			pkt.Decoded = data
		case pktEncryptedField:
			if f.Typ != protowire.BytesType {
				return fmt.Errorf("invalid wire type: encrypted field")
			}
			pkt.Encrypted = f.Bytes
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return pkt, nil
}

// EncodeEnvelope re-serializes env using this package's own wire
// contract. It exists for round-trip tests (Encode(Decode(buf))
// preserves every field the decoder captured) and is not used on the
// ingest hot path.
func EncodeEnvelope(env *ServiceEnvelope) []byte {
	var pb []byte
	pb = protowire.AppendTag(pb, pktFromField, protowire.VarintType)
	pb = protowire.AppendVarint(pb, uint64(env.Packet.From))
	pb = protowire.AppendTag(pb, pktToField, protowire.VarintType)
	pb = protowire.AppendVarint(pb, uint64(env.Packet.To))
	pb = protowire.AppendTag(pb, pktIDField, protowire.VarintType)
	pb = protowire.AppendVarint(pb, uint64(env.Packet.ID))
	pb = protowire.AppendTag(pb, pktRxTimeField, protowire.VarintType)
	pb = protowire.AppendVarint(pb, uint64(env.Packet.RxTime))
	pb = protowire.AppendTag(pb, pktRxSnrField, protowire.Fixed32Type)
	pb = protowire.AppendFixed32(pb, float32bits(env.Packet.RxSnr))
	pb = protowire.AppendTag(pb, pktRxRssiField, protowire.VarintType)
	pb = protowire.AppendVarint(pb, protowire.EncodeZigZag(int64(env.Packet.RxRssi)))
	pb = protowire.AppendTag(pb, pktHopLimitField, protowire.VarintType)
	pb = protowire.AppendVarint(pb, uint64(env.Packet.HopLimit))

	if env.Packet.Decoded != nil {
		data := encodeData(env.Packet.Decoded)
		pb = protowire.AppendTag(pb, pktDecodedField, protowire.BytesType)
		pb = protowire.AppendBytes(pb, data)
	}
	if env.Packet.Encrypted != nil {
		pb = protowire.AppendTag(pb, pktEncryptedField, protowire.BytesType)
		pb = protowire.AppendBytes(pb, env.Packet.Encrypted)
	}

	var out []byte
	out = protowire.AppendTag(out, envPacketField, protowire.BytesType)
	out = protowire.AppendBytes(out, pb)
	if env.ChannelID != "" {
		out = protowire.AppendTag(out, envChannelIDField, protowire.BytesType)
		out = protowire.AppendString(out, env.ChannelID)
	}
	if env.GatewayID != "" {
		out = protowire.AppendTag(out, envGatewayIDField, protowire.BytesType)
		out = protowire.AppendString(out, env.GatewayID)
	}
	return out
}
