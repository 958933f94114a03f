package meshproto

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"testing"
)

func encryptForTest(t *testing.T, key []byte, id uint64, from uint32, plain []byte) []byte {
	t.Helper()
	block, err := aes.NewCipher(key)
	if err != nil {
		t.Fatalf("aes.NewCipher: %v", err)
	}
	n := nonce(id, from)
	stream := cipher.NewCTR(block, n[:])
	out := make([]byte, len(plain))
	stream.XORKeyStream(out, plain)
	return out
}

func testDecryptFirstKeySucceeds(t *testing.T) {
	key := make([]byte, 16)
	for i := range key {
		key[i] = byte(i)
	}
	data := encodeData(&Data{Portnum: PortnumTextMessage, Payload: []byte("hello mesh")})
	pkt := &MeshPacket{
		ID:        99,
		From:      0xAABBCCDD,
		Encrypted: encryptForTest(t, key, 99, 0xAABBCCDD, data),
	}

	keys, err := ParseKeys([]string{base64.StdEncoding.EncodeToString(key)})
	if err != nil {
		t.Fatalf("ParseKeys: %v", err)
	}

	got, usedKey, err := Decrypt(pkt, keys)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if got.Portnum != PortnumTextMessage || string(got.Payload) != "hello mesh" {
		t.Errorf("got %+v", got)
	}
	if usedKey.Name != "key-0" {
		t.Errorf("usedKey = %+v", usedKey)
	}
}

func testDecryptFallsThroughKeys(t *testing.T) {
	wrongKey := make([]byte, 16)
	rightKey := make([]byte, 16)
	for i := range rightKey {
		rightKey[i] = byte(i + 1)
	}
	data := encodeData(&Data{Portnum: PortnumPosition, Payload: []byte{1, 2, 3, 4}})
	pkt := &MeshPacket{
		ID:        7,
		From:      1,
		Encrypted: encryptForTest(t, rightKey, 7, 1, data),
	}

	keys, err := ParseKeys([]string{
		base64.StdEncoding.EncodeToString(wrongKey),
		base64.StdEncoding.EncodeToString(rightKey),
	})
	if err != nil {
		t.Fatalf("ParseKeys: %v", err)
	}

	got, usedKey, err := Decrypt(pkt, keys)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if got.Portnum != PortnumPosition {
		t.Errorf("got %+v", got)
	}
	if usedKey.Name != "key-1" {
		t.Errorf("usedKey = %+v, want key-1", usedKey)
	}
}

func testDecryptNoKeyWorks(t *testing.T) {
	key := make([]byte, 32)
	pkt := &MeshPacket{ID: 1, From: 1, Encrypted: []byte{0xDE, 0xAD, 0xBE, 0xEF}}
	keys, err := ParseKeys([]string{base64.StdEncoding.EncodeToString(key)})
	if err != nil {
		t.Fatalf("ParseKeys: %v", err)
	}
	if _, _, err := Decrypt(pkt, keys); err == nil {
		t.Fatal("expected decrypt failure for garbage ciphertext")
	}
}

func testParseKeysRejectsBadLength(t *testing.T) {
	bad := base64.StdEncoding.EncodeToString([]byte("too-short"))
	if _, err := ParseKeys([]string{bad}); err == nil {
		t.Fatal("expected error for non-16/32-byte key")
	}
}

func TestDecrypt(t *testing.T) {
	tests := []struct {
		name string
		fct  func(t *testing.T)
	}{
		{"first-key-succeeds", testDecryptFirstKeySucceeds},
		{"falls-through-keys", testDecryptFallsThroughKeys},
		{"no-key-works", testDecryptNoKeyWorks},
		{"parse-keys-rejects-bad-length", testParseKeysRejectsBadLength},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) { test.fct(t) })
	}
}
