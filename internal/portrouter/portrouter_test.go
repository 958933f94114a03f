package portrouter

import (
	"testing"

	"github.com/pico-cs/mesh-ingest/internal/meshproto"
	"google.golang.org/protobuf/encoding/protowire"
)

// encodePositionPayload builds a minimal Position payload (field 1 =
// latitudeI, field 2 = longitudeI, both zigzag varints) for tests,
// mirroring the wire shape meshproto.DecodePosition expects.
func encodePositionPayload(latitudeI, longitudeI int32) []byte {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, protowire.EncodeZigZag(int64(latitudeI)))
	b = protowire.AppendTag(b, 2, protowire.VarintType)
	b = protowire.AppendVarint(b, protowire.EncodeZigZag(int64(longitudeI)))
	return b
}

func testUnknownPortnumName(t *testing.T) {
	name := NameFor(999)
	if name != "UNKNOWN_999" {
		t.Errorf("NameFor(999) = %q", name)
	}
	if Known(999) {
		t.Error("999 should not be Known")
	}
}

func testKnownPortnumName(t *testing.T) {
	if NameFor(meshproto.PortnumPosition) != NamePosition {
		t.Errorf("NameFor(Position) = %q", NameFor(meshproto.PortnumPosition))
	}
	if !Known(meshproto.PortnumTextMessage) {
		t.Error("TextMessage should be Known")
	}
}

func testZeroCoordsNoDotUpdate(t *testing.T) {
	payload := encodePositionPayload(0, 0)
	data := &meshproto.Data{Portnum: meshproto.PortnumPosition, Payload: payload}
	route, err := RouteData(data, false, false)
	if err != nil {
		t.Fatalf("RouteData: %v", err)
	}
	if route.HasDot {
		t.Error("zero coordinates must not produce a Dot update")
	}
}

func testPositionUpdatesDot(t *testing.T) {
	payload := encodePositionPayload(515000000, 372000000) // ~51.5, 37.2 degrees
	data := &meshproto.Data{Portnum: meshproto.PortnumPosition, Payload: payload}
	route, err := RouteData(data, false, false)
	if err != nil {
		t.Fatalf("RouteData: %v", err)
	}
	if !route.HasDot || !route.DotUpdate.HasCoords {
		t.Fatalf("expected coordinate update, got %+v", route)
	}
	if route.DotUpdate.Latitude <= 51 || route.DotUpdate.Latitude >= 52 {
		t.Errorf("latitude = %v", route.DotUpdate.Latitude)
	}
}

func testMixedZeroCoordsNoDotUpdate(t *testing.T) {
	cases := []struct {
		name       string
		latitudeI  int32
		longitudeI int32
	}{
		{"lat-zero-lon-nonzero", 0, 372000000},
		{"lat-nonzero-lon-zero", 515000000, 0},
	}
	for _, c := range cases {
		payload := encodePositionPayload(c.latitudeI, c.longitudeI)
		data := &meshproto.Data{Portnum: meshproto.PortnumPosition, Payload: payload}
		route, err := RouteData(data, false, false)
		if err != nil {
			t.Fatalf("%s: RouteData: %v", c.name, err)
		}
		if route.HasDot || route.DotUpdate.HasCoords {
			t.Errorf("%s: a single zero coordinate must not produce a Dot update, got %+v", c.name, route)
		}
	}
}

func testTextBroadcastGroupable(t *testing.T) {
	data := &meshproto.Data{Portnum: meshproto.PortnumTextMessage, Payload: []byte("hello")}
	route, err := RouteData(data, true, true)
	if err != nil {
		t.Fatalf("RouteData: %v", err)
	}
	if !route.Groupable {
		t.Error("broadcast text in allowed region should be groupable")
	}

	route2, err := RouteData(data, true, false)
	if err != nil {
		t.Fatalf("RouteData: %v", err)
	}
	if route2.Groupable {
		t.Error("broadcast text outside allowed region must not be groupable")
	}
}

func testUserNameValidation(t *testing.T) {
	cases := []struct {
		name string
		want bool
	}{
		{"", false},
		{"   ", false},
		{"Base-42", true},
		{"Василий", true},
	}
	for _, c := range cases {
		if got := ValidUserName(c.name); got != c.want {
			t.Errorf("ValidUserName(%q) = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestPortRouter(t *testing.T) {
	tests := []struct {
		name string
		fct  func(t *testing.T)
	}{
		{"unknown-portnum-name", testUnknownPortnumName},
		{"known-portnum-name", testKnownPortnumName},
		{"zero-coords-no-dot-update", testZeroCoordsNoDotUpdate},
		{"position-updates-dot", testPositionUpdatesDot},
		{"mixed-zero-coords-no-dot-update", testMixedZeroCoordsNoDotUpdate},
		{"text-broadcast-groupable", testTextBroadcastGroupable},
		{"user-name-validation", testUserNameValidation},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) { test.fct(t) })
	}
}
