// Package dedup implements cross-gateway suppression: a store-level
// gate before every port-list append, and a content-addressed gate
// before every Dot upsert.
package dedup

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/pico-cs/mesh-ingest/internal/store"
)

// Window is the default dedup TTL: strictly shorter than the
// minimum interesting inter-packet period, so a retransmit relayed by
// a second gateway within this window is suppressed, while a genuinely
// new observation a few seconds later is not.
const Window = 3 * time.Second

// Deduper gates writes against a Store-backed marker set.
type Deduper struct {
	store store.Store
	ttl   time.Duration
}

// New returns a Deduper using ttl as the marker lifetime, or Window if
// ttl is zero.
func New(s store.Store, ttl time.Duration) *Deduper {
	if ttl <= 0 {
		ttl = Window
	}
	return &Deduper{store: s, ttl: ttl}
}

// StorePortnumKey is the logical identity a packet dedupes on before
// an AppendPortnum: the same (from, portnum, rxTime) observed through
// a different gateway within the window is the same logical packet.
func StorePortnumKey(from uint32, portnum uint32, rxTime int64) string {
	return fmt.Sprintf("dedupe:portnum:%d:%d:%d", from, portnum, rxTime)
}

// AllowAppend reports whether the caller won the race to append this
// logical (from, portnum, rxTime) observation. Only the winner should
// call Store.AppendPortnum.
func (d *Deduper) AllowAppend(ctx context.Context, from uint32, portnum uint32, rxTime int64) (bool, error) {
	key := StorePortnumKey(from, portnum, rxTime)
	return d.store.MarkSeen(ctx, key, d.ttl)
}

// DotPositionKey is the content-addressed key for a coordinate
// update: lat/lon rounded to 1e-6 degrees so that jitter-free repeats
// of the same fix collapse to one key, while a genuinely new fix
// (even a few meters away) gets its own.
func DotPositionKey(from uint32, lat, lon float64) string {
	return fmt.Sprintf("dedupe:dot:%d:pos:%d:%d", from, round1e6(lat), round1e6(lon))
}

// DotNameKey is the content-addressed key for a name update.
func DotNameKey(from uint32, longName, shortName string) string {
	return fmt.Sprintf("dedupe:dot:%d:name:%s:%s", from, longName, shortName)
}

// DotActivityKey is the content-addressed key for a bare
// activity tick (a packet that only advances s_time).
func DotActivityKey(from uint32, unixSeconds int64) string {
	return fmt.Sprintf("dedupe:dot:%d:time:%d", from, unixSeconds)
}

// AllowDotUpdate reports whether the caller won the race for the given
// content-addressed Dot key.
func (d *Deduper) AllowDotUpdate(ctx context.Context, key string) (bool, error) {
	return d.store.MarkSeen(ctx, key, d.ttl)
}

func round1e6(v float64) int64 {
	return int64(math.Round(v * 1e6))
}
