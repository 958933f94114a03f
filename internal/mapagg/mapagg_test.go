package mapagg

import (
	"context"
	"testing"

	"github.com/pico-cs/mesh-ingest/internal/dedup"
	"github.com/pico-cs/mesh-ingest/internal/portrouter"
	"github.com/pico-cs/mesh-ingest/internal/store"
)

func testPositionUpdateSetsDot(t *testing.T) {
	s := store.NewMemoryStore()
	agg := New(s, dedup.New(s, dedup.Window))
	ctx := context.Background()

	route := portrouter.Route{
		HasDot: true,
		DotUpdate: portrouter.DotUpdate{
			HasCoords: true,
			Latitude:  51.5,
			Longitude: 37.2,
		},
	}
	if err := agg.UpdateFromPortnum(ctx, 7, route, "!00000007", 1000); err != nil {
		t.Fatalf("UpdateFromPortnum: %v", err)
	}
	dot, ok, _ := s.ReadDot(ctx, "7")
	if !ok {
		t.Fatal("expected dot to exist")
	}
	if dot.Latitude != 51.5 || dot.Longitude != 37.2 {
		t.Errorf("dot = %+v", dot)
	}
	if !dot.Mqtt {
		t.Error("mqtt flag should be set when gatewayId == from")
	}
}

func testNonMatchingGatewayClearsMqttFlag(t *testing.T) {
	s := store.NewMemoryStore()
	agg := New(s, dedup.New(s, dedup.Window))
	ctx := context.Background()

	route := portrouter.Route{
		HasDot:    true,
		DotUpdate: portrouter.DotUpdate{HasCoords: true, Latitude: 1, Longitude: 2},
	}
	if err := agg.UpdateFromPortnum(ctx, 7, route, "!000000ff", 1000); err != nil {
		t.Fatalf("UpdateFromPortnum: %v", err)
	}
	dot, _, _ := s.ReadDot(ctx, "7")
	if dot.Mqtt {
		t.Error("mqtt flag should be false when gatewayId != from")
	}
}

func testUnknownPortnumOnlyBumpsExistingDot(t *testing.T) {
	s := store.NewMemoryStore()
	agg := New(s, dedup.New(s, dedup.Window))
	ctx := context.Background()

	route := portrouter.Route{} // no coords, no names
	if err := agg.UpdateFromPortnum(ctx, 99, route, "!00000099", 1000); err != nil {
		t.Fatalf("UpdateFromPortnum: %v", err)
	}
	if _, ok, _ := s.ReadDot(ctx, "99"); ok {
		t.Error("a bare activity tick must not create a Dot from nothing")
	}

	// Seed a valid dot, then confirm the bump path touches it without error.
	lat, lon := 10.0, 20.0
	if err := s.UpsertDot(ctx, "99", store.DotPartial{Latitude: &lat, Longitude: &lon}); err != nil {
		t.Fatalf("seed UpsertDot: %v", err)
	}
	if err := agg.UpdateFromPortnum(ctx, 99, route, "!00000099", 2000); err != nil {
		t.Fatalf("UpdateFromPortnum on seeded dot: %v", err)
	}
	dot, ok, _ := s.ReadDot(ctx, "99")
	if !ok {
		t.Fatal("seeded dot must survive an activity-only bump")
	}
	if dot.Latitude != lat || dot.Longitude != lon {
		t.Errorf("coords must not change on activity-only bump: %+v", dot)
	}
}

func TestMapAggregator(t *testing.T) {
	tests := []struct {
		name string
		fct  func(t *testing.T)
	}{
		{"position-update-sets-dot", testPositionUpdateSetsDot},
		{"non-matching-gateway-clears-mqtt-flag", testNonMatchingGatewayClearsMqttFlag},
		{"unknown-portnum-only-bumps-existing-dot", testUnknownPortnumOnlyBumpsExistingDot},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) { test.fct(t) })
	}
}
