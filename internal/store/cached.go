package store

import (
	"context"
	"fmt"
	"time"
)

// CachedStore wraps any Store with an optional read cache: reads are
// served from an in-memory, TTL-bounded cache when possible; every
// write invalidates the cache entries it could have made stale.
// Capped at a 15s TTL.
type CachedStore struct {
	Store
	cache *readCache
}

const defaultCacheTTL = 15 * time.Second

// NewCachedStore wraps inner with a read cache bounded to maxEntries,
// each entry living at most ttl (clamped to defaultCacheTTL if longer
// or zero).
func NewCachedStore(inner Store, maxEntries int, ttl time.Duration) *CachedStore {
	if ttl <= 0 || ttl > defaultCacheTTL {
		ttl = defaultCacheTTL
	}
	return &CachedStore{Store: inner, cache: newReadCache(maxEntries, ttl)}
}

func (s *CachedStore) GetPortnum(ctx context.Context, portnumName, deviceID string, limit int) ([]PortnumRecord, error) {
	key := fmt.Sprintf("get:%s:%s:%d", portnumName, deviceID, limit)
	if v, ok := s.cache.get(key); ok {
		return v.([]PortnumRecord), nil
	}
	recs, err := s.Store.GetPortnum(ctx, portnumName, deviceID, limit)
	if err != nil {
		return nil, err
	}
	s.cache.put(key, recs)
	return recs, nil
}

func (s *CachedStore) ListPortnums(ctx context.Context, portnumName string) ([]string, error) {
	key := fmt.Sprintf("list:%s", portnumName)
	if v, ok := s.cache.get(key); ok {
		return v.([]string), nil
	}
	ids, err := s.Store.ListPortnums(ctx, portnumName)
	if err != nil {
		return nil, err
	}
	s.cache.put(key, ids)
	return ids, nil
}

func (s *CachedStore) ReadDot(ctx context.Context, deviceID string) (Dot, bool, error) {
	key := fmt.Sprintf("dot:%s", deviceID)
	if v, ok := s.cache.get(key); ok {
		pair := v.([2]any)
		return pair[0].(Dot), pair[1].(bool), nil
	}
	dot, ok, err := s.Store.ReadDot(ctx, deviceID)
	if err != nil {
		return Dot{}, false, err
	}
	s.cache.put(key, [2]any{dot, ok})
	return dot, ok, nil
}

func (s *CachedStore) ActiveDevices(ctx context.Context) ([]string, error) {
	const key = "active-devices"
	if v, ok := s.cache.get(key); ok {
		return v.([]string), nil
	}
	ids, err := s.Store.ActiveDevices(ctx)
	if err != nil {
		return nil, err
	}
	s.cache.put(key, ids)
	return ids, nil
}

func (s *CachedStore) AppendPortnum(ctx context.Context, portnumName, deviceID string, rec PortnumRecord) error {
	if err := s.Store.AppendPortnum(ctx, portnumName, deviceID, rec); err != nil {
		return err
	}
	s.cache.invalidate(fmt.Sprintf("get:%s:%s", portnumName, deviceID))
	s.cache.invalidate(fmt.Sprintf("list:%s", portnumName))
	return nil
}

func (s *CachedStore) UpsertDot(ctx context.Context, deviceID string, partial DotPartial) error {
	if err := s.Store.UpsertDot(ctx, deviceID, partial); err != nil {
		return err
	}
	s.cache.invalidate(fmt.Sprintf("dot:%s", deviceID))
	s.cache.invalidate("active-devices")
	return nil
}

func (s *CachedStore) SetActiveDevice(ctx context.Context, deviceID string) error {
	if err := s.Store.SetActiveDevice(ctx, deviceID); err != nil {
		return err
	}
	s.cache.invalidate("active-devices")
	return nil
}

func (s *CachedStore) ClearActiveDevice(ctx context.Context, deviceID string) error {
	if err := s.Store.ClearActiveDevice(ctx, deviceID); err != nil {
		return err
	}
	s.cache.invalidate("active-devices")
	return nil
}

func (s *CachedStore) DeleteDevice(ctx context.Context, deviceID string) (int, error) {
	n, err := s.Store.DeleteDevice(ctx, deviceID)
	if err != nil {
		return n, err
	}
	s.cache.invalidate(fmt.Sprintf("dot:%s", deviceID))
	s.cache.invalidate("active-devices")
	return n, nil
}
