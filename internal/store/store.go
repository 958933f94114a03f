// Package store defines the KV-backed persistence contract for the
// ingest pipeline and a Redis-backed implementation of it.
package store

import (
	"context"
	"strings"
	"time"
)

// PortnumRecord is one observation appended to a device's per-port
// history list.
type PortnumRecord struct {
	Timestamp int64   `json:"timestamp"` // ms since epoch, server clock
	From      uint32  `json:"from"`
	To        uint32  `json:"to"`
	RxTime    int64   `json:"rxTime"` // ms
	RxSnr     float32 `json:"rxSnr"`
	RxRssi    int32   `json:"rxRssi"`
	HopLimit  uint32  `json:"hopLimit"`
	GatewayID string  `json:"gatewayId"`
	Broker    string  `json:"broker"`
	RawData   any     `json:"rawData"`
}

// DotPartial is the subset of Dot fields a caller wants to merge into
// the existing hash. A nil pointer field means "leave unchanged".
type DotPartial struct {
	LongName  *string
	ShortName *string
	Longitude *float64
	Latitude  *float64
	Mqtt      *bool
}

// Dot is a device's full observable map-point state.
type Dot struct {
	LongName  string
	ShortName string
	Longitude float64
	Latitude  float64
	Mqtt      bool
	STime     int64 // ms, server clock
}

// Valid reports whether a Dot is usable: it must carry non-zero
// coordinates, a usable name, or both.
func (d Dot) Valid() bool {
	hasCoords := d.Longitude != 0 && d.Latitude != 0
	hasName := strings.TrimSpace(d.LongName) != "" || strings.TrimSpace(d.ShortName) != ""
	return hasCoords || hasName
}

// Store is the persistence contract every ingest worker writes
// through. Implementations MUST bound per-port history lists at
// MaxPortnumMessages and keep Dot existence and active-set membership
// in lockstep: a device has one iff it has the other.
type Store interface {
	AppendPortnum(ctx context.Context, portnumName, deviceID string, rec PortnumRecord) error
	GetPortnum(ctx context.Context, portnumName, deviceID string, limit int) ([]PortnumRecord, error)
	ListPortnums(ctx context.Context, portnumName string) ([]string, error)

	UpsertDot(ctx context.Context, deviceID string, partial DotPartial) error
	ReadDot(ctx context.Context, deviceID string) (Dot, bool, error)

	SetActiveDevice(ctx context.Context, deviceID string) error
	ClearActiveDevice(ctx context.Context, deviceID string) error
	ActiveDevices(ctx context.Context) ([]string, error)

	MarkSeen(ctx context.Context, key string, ttl time.Duration) (bool, error)

	DeleteDevice(ctx context.Context, deviceID string) (int, error)

	Close() error
}

// MaxPortnumMessages is the default bound on a device's per-port
// history list length.
const MaxPortnumMessages = 200
