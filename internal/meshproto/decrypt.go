package meshproto

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"encoding/binary"
	"fmt"
)

// MaxPlaintextBytes bounds a decrypted Data payload: anything
// outside (0, MaxPlaintextBytes] is treated as a failed decrypt
// attempt rather than a message, since AES-CTR never fails on its own
// — a wrong key just produces garbage that has to be caught downstream.
const MaxPlaintextBytes = 65536

// Key is a parsed AES key ready to try against an encrypted packet.
// AES-128 and AES-256 are both in use across the fleet; the block
// cipher's key length determines which.
type Key struct {
	Name  string
	Bytes []byte
}

// ParseKeys decodes a list of standard-base64 AES keys into Keys,
// tagging each with an index-based name for logging. Every key must
// decode to 16 or 32 bytes; any other length, including the one-byte
// "AQ==" shorthand for the default public channel key, makes ParseKeys
// return an error.
func ParseKeys(b64 []string) ([]Key, error) {
	keys := make([]Key, 0, len(b64))
	for i, s := range b64 {
		raw, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("key %d: %w", i, err)
		}
		switch len(raw) {
		case 16, 32:
		default:
			return nil, fmt.Errorf("key %d: unsupported length %d (want 16 or 32)", i, len(raw))
		}
		keys = append(keys, Key{Name: fmt.Sprintf("key-%d", i), Bytes: raw})
	}
	return keys, nil
}

// nonce builds the 16-byte little-endian AES-CTR counter block used by
// the radio firmware: packet id in bytes 0-8, packet "from" node in
// bytes 8-12, and a zeroed 32-bit block counter in bytes 12-16 that
// crypto/cipher's CTR stream increments itself.
func nonce(packetID uint64, from uint32) [aes.BlockSize]byte {
	var n [aes.BlockSize]byte
	binary.LittleEndian.PutUint64(n[0:8], packetID)
	binary.LittleEndian.PutUint32(n[8:12], from)
	return n
}

// Decrypt tries each key in turn against an encrypted MeshPacket
// payload, stopping at the first one that yields a plausible plaintext
// (size within (0, MaxPlaintextBytes] and itself a well-formed Data
// message). Returns the decoded Data and the key that worked, or an
// error if every key failed; the caller attaches the error Kind.
func Decrypt(pkt *MeshPacket, keys []Key) (*Data, *Key, error) {
	if len(pkt.Encrypted) == 0 {
		return nil, nil, fmt.Errorf("no encrypted payload")
	}
	n := nonce(uint64(pkt.ID), pkt.From)

	for i := range keys {
		k := &keys[i]
		block, err := aes.NewCipher(k.Bytes)
		if err != nil {
			continue
		}
		stream := cipher.NewCTR(block, n[:])
		plain := make([]byte, len(pkt.Encrypted))
		stream.XORKeyStream(plain, pkt.Encrypted)

		if len(plain) == 0 || len(plain) > MaxPlaintextBytes {
			continue
		}
		data, err := decodeData(plain)
		if err != nil {
			continue
		}
		return data, k, nil
	}
	return nil, nil, fmt.Errorf("no key decrypted packet %d from %08x", pkt.ID, pkt.From)
}
