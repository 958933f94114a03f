// Package mapagg implements the MapAggregator: it turns a routed
// packet into the Store.UpsertDot partial that keeps a device's Dot
// current, including the mqtt self-gateway flag and the s_time
// activity bump every packet carries regardless of portnum.
package mapagg

import (
	"context"
	"strconv"

	"github.com/pico-cs/mesh-ingest/internal/dedup"
	"github.com/pico-cs/mesh-ingest/internal/ids"
	"github.com/pico-cs/mesh-ingest/internal/portrouter"
	"github.com/pico-cs/mesh-ingest/internal/store"
)

// MapAggregator applies portrouter.Route DotUpdates to the Store,
// gated by the Dot-level Deduper so that identical repeats observed
// through multiple gateways don't thrash the backend.
type MapAggregator struct {
	store  store.Store
	dedupe *dedup.Deduper
}

// New returns a MapAggregator writing through s, gated by d.
func New(s store.Store, d *dedup.Deduper) *MapAggregator {
	return &MapAggregator{store: s, dedupe: d}
}

// UpdateFromPortnum applies the Dot-level side effects of one routed
// packet. from is the sender's numeric id, keyed in the Store by its
// decimal string form; gatewayID is the hex device id string the MQTT
// gateway announced for this packet.
func (a *MapAggregator) UpdateFromPortnum(ctx context.Context, from uint32, route portrouter.Route, gatewayID string, nowUnix int64) error {
	mqtt := gatewayNumericEquals(gatewayID, from)
	deviceID := deviceKey(from)

	switch {
	case route.DotUpdate.HasCoords:
		key := dedup.DotPositionKey(from, route.DotUpdate.Latitude, route.DotUpdate.Longitude)
		ok, err := a.dedupe.AllowDotUpdate(ctx, key)
		if err != nil {
			return err
		}
		if !ok {
			return a.bumpActivityOnly(ctx, from, deviceID, mqtt, nowUnix)
		}
		return a.store.UpsertDot(ctx, deviceID, store.DotPartial{
			Longitude: &route.DotUpdate.Longitude,
			Latitude:  &route.DotUpdate.Latitude,
			Mqtt:      &mqtt,
		})

	case route.DotUpdate.HasNames:
		key := dedup.DotNameKey(from, route.DotUpdate.LongName, route.DotUpdate.ShortName)
		ok, err := a.dedupe.AllowDotUpdate(ctx, key)
		if err != nil {
			return err
		}
		if !ok {
			return a.bumpActivityOnly(ctx, from, deviceID, mqtt, nowUnix)
		}
		return a.store.UpsertDot(ctx, deviceID, store.DotPartial{
			LongName:  &route.DotUpdate.LongName,
			ShortName: &route.DotUpdate.ShortName,
			Mqtt:      &mqtt,
		})

	default:
		return a.bumpActivityOnly(ctx, from, deviceID, mqtt, nowUnix)
	}
}

// bumpActivityOnly advances s_time and the mqtt flag without touching
// coordinates or names — the fallback for every portnum that carries
// neither. It only writes if a Dot already exists: a bare activity
// tick must not create a Dot out of nothing, since that would leave
// it with neither coordinates nor a name and so fail Dot.Valid.
func (a *MapAggregator) bumpActivityOnly(ctx context.Context, from uint32, deviceID string, mqtt bool, nowUnix int64) error {
	if _, ok, err := a.store.ReadDot(ctx, deviceID); err != nil || !ok {
		return err
	}
	key := dedup.DotActivityKey(from, nowUnix)
	ok, err := a.dedupe.AllowDotUpdate(ctx, key)
	if err != nil || !ok {
		return err
	}
	return a.store.UpsertDot(ctx, deviceID, store.DotPartial{Mqtt: &mqtt})
}

// deviceKey is the Store's numeric-form device key.
func deviceKey(numeric uint32) string {
	return strconv.FormatUint(uint64(numeric), 10)
}

func gatewayNumericEquals(gatewayHex string, from uint32) bool {
	n, err := ids.FromHex(gatewayHex)
	if err != nil {
		return false
	}
	return n == from
}
