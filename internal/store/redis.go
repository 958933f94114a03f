package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store against a Redis (or Redis-protocol
// compatible) backend: a thin wrapper translating domain operations to
// client calls, errors passed through with fmt.Errorf context rather
// than a bespoke error type.
type RedisStore struct {
	client redis.Cmdable
}

const activeDevicesKey = "devices:active"

// NewRedisStore wraps an already-constructed redis client. Accepting
// redis.Cmdable rather than *redis.Client lets tests substitute a
// miniredis-backed client without changing this package.
func NewRedisStore(client redis.Cmdable) *RedisStore {
	return &RedisStore{client: client}
}

func portnumListKey(portnumName, deviceID string) string {
	return fmt.Sprintf("%s:%s", portnumName, deviceID)
}

func dotKey(deviceID string) string {
	return fmt.Sprintf("dots:%s", deviceID)
}

func (s *RedisStore) AppendPortnum(ctx context.Context, portnumName, deviceID string, rec PortnumRecord) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal portnum record: %w", err)
	}
	key := portnumListKey(portnumName, deviceID)
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, b)
	pipe.LTrim(ctx, key, -MaxPortnumMessages, -1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append portnum %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) GetPortnum(ctx context.Context, portnumName, deviceID string, limit int) ([]PortnumRecord, error) {
	key := portnumListKey(portnumName, deviceID)
	raw, err := s.client.LRange(ctx, key, -int64(limit), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("get portnum %s: %w", key, err)
	}
	out := make([]PortnumRecord, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- { // newest first
		var rec PortnumRecord
		if err := json.Unmarshal([]byte(raw[i]), &rec); err != nil {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *RedisStore) ListPortnums(ctx context.Context, portnumName string) ([]string, error) {
	pattern := portnumName + ":*"
	var ids []string
	iter := s.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		ids = append(ids, strings.TrimPrefix(key, portnumName+":"))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("list portnums %s: %w", portnumName, err)
	}
	return ids, nil
}

func (s *RedisStore) ReadDot(ctx context.Context, deviceID string) (Dot, bool, error) {
	key := dotKey(deviceID)
	fields, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return Dot{}, false, fmt.Errorf("read dot %s: %w", key, err)
	}
	if len(fields) == 0 {
		return Dot{}, false, nil
	}
	return dotFromFields(fields), true, nil
}

func (s *RedisStore) UpsertDot(ctx context.Context, deviceID string, partial DotPartial) error {
	key := dotKey(deviceID)
	existing, _, err := s.ReadDot(ctx, deviceID)
	if err != nil {
		return err
	}
	merged := mergeDot(existing, partial)

	if !merged.Valid() {
		if err := s.client.Del(ctx, key).Err(); err != nil {
			return fmt.Errorf("delete invalid dot %s: %w", key, err)
		}
		return s.ClearActiveDevice(ctx, deviceID)
	}

	if err := s.client.HSet(ctx, key, dotToFields(merged)).Err(); err != nil {
		return fmt.Errorf("upsert dot %s: %w", key, err)
	}
	return s.SetActiveDevice(ctx, deviceID)
}

func (s *RedisStore) SetActiveDevice(ctx context.Context, deviceID string) error {
	if err := s.client.SAdd(ctx, activeDevicesKey, deviceID).Err(); err != nil {
		return fmt.Errorf("set active device %s: %w", deviceID, err)
	}
	return nil
}

func (s *RedisStore) ClearActiveDevice(ctx context.Context, deviceID string) error {
	if err := s.client.SRem(ctx, activeDevicesKey, deviceID).Err(); err != nil {
		return fmt.Errorf("clear active device %s: %w", deviceID, err)
	}
	return nil
}

func (s *RedisStore) ActiveDevices(ctx context.Context) ([]string, error) {
	ids, err := s.client.SMembers(ctx, activeDevicesKey).Result()
	if err != nil {
		return nil, fmt.Errorf("active devices: %w", err)
	}
	return ids, nil
}

func (s *RedisStore) MarkSeen(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("mark seen %s: %w", key, err)
	}
	return ok, nil
}

func (s *RedisStore) DeleteDevice(ctx context.Context, deviceID string) (int, error) {
	var keys []string
	keys = append(keys, dotKey(deviceID))

	for _, portName := range []string{
		"TEXT_MESSAGE_APP", "POSITION_APP", "NODEINFO_APP", "WAYPOINT_APP",
		"TELEMETRY_APP", "TRACEROUTE_APP", "NEIGHBORINFO_APP", "MAP_REPORT_APP",
	} {
		keys = append(keys, portnumListKey(portName, deviceID))
	}

	deleted := 0
	for _, k := range keys {
		n, err := s.client.Del(ctx, k).Result()
		if err != nil {
			return deleted, fmt.Errorf("delete device key %s: %w", k, err)
		}
		deleted += int(n)
	}
	n, err := s.client.SRem(ctx, activeDevicesKey, deviceID).Result()
	if err != nil {
		return deleted, fmt.Errorf("delete device from active set: %w", err)
	}
	deleted += int(n)
	return deleted, nil
}

func (s *RedisStore) Close() error {
	if c, ok := s.client.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

func mergeDot(existing Dot, p DotPartial) Dot {
	merged := existing
	if p.LongName != nil {
		merged.LongName = *p.LongName
	}
	if p.ShortName != nil {
		merged.ShortName = *p.ShortName
	}
	if p.Longitude != nil {
		merged.Longitude = *p.Longitude
	}
	if p.Latitude != nil {
		merged.Latitude = *p.Latitude
	}
	if p.Mqtt != nil {
		merged.Mqtt = *p.Mqtt
	}
	merged.STime = time.Now().UnixMilli()
	return merged
}

func dotToFields(d Dot) map[string]any {
	mqtt := "0"
	if d.Mqtt {
		mqtt = "1"
	}
	return map[string]any{
		"longName":  d.LongName,
		"shortName": d.ShortName,
		"longitude": d.Longitude,
		"latitude":  d.Latitude,
		"mqtt":      mqtt,
		"s_time":    d.STime,
	}
}

func dotFromFields(fields map[string]string) Dot {
	var d Dot
	d.LongName = fields["longName"]
	d.ShortName = fields["shortName"]
	fmt.Sscanf(fields["longitude"], "%f", &d.Longitude)
	fmt.Sscanf(fields["latitude"], "%f", &d.Latitude)
	fmt.Sscanf(fields["s_time"], "%d", &d.STime)
	d.Mqtt = fields["mqtt"] == "1"
	return d
}
