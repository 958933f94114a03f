package ids

import "testing"

func testRoundTrip(t *testing.T) {
	cases := []string{"!015ba416", "!00000000", "!ffffffff", "!0a0b0c0d"}
	for _, hex := range cases {
		n, err := FromHex(hex)
		if err != nil {
			t.Fatalf("FromHex(%q): %s", hex, err)
		}
		if got := ToHex(n); got != hex {
			t.Errorf("ToHex(FromHex(%q)) = %q, want %q", hex, got, hex)
		}
	}
}

func testFromHexNoBang(t *testing.T) {
	n, err := FromHex("015ba416")
	if err != nil {
		t.Fatalf("FromHex: %s", err)
	}
	if n != 0x015ba416 {
		t.Errorf("got %x, want %x", n, 0x015ba416)
	}
}

func testFromHexInvalid(t *testing.T) {
	for _, bad := range []string{"", "!xyz", "!01", "!015ba4166"} {
		if _, err := FromHex(bad); err == nil {
			t.Errorf("FromHex(%q): expected error", bad)
		}
	}
}

func TestIDs(t *testing.T) {
	tests := []struct {
		name string
		fct  func(t *testing.T)
	}{
		{"round-trip", testRoundTrip},
		{"from-hex-no-bang", testFromHexNoBang},
		{"from-hex-invalid", testFromHexInvalid},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) { test.fct(t) })
	}
}
