package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/darthrootbeer/movie-heat/internal/domain"
	"github.com/darthrootbeer/movie-heat/internal/ports"
)

const redisKeyPrefix = "movieheat:record:"

// RedisStore keeps provider records in Redis with native key expiry, so
// several processes share one cache.
type RedisStore struct {
	client redis.UniversalClient
	now    func() time.Time
}

var _ ports.RecordStore = (*RedisStore)(nil)

type redisEntry struct {
	Record    domain.ProviderRecord `json:"record"`
	ExpiresAt time.Time             `json:"expires_at"`
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client, now: time.Now}
}

// OpenRedis dials addr and verifies the connection.
func OpenRedis(ctx context.Context, addr, password string, db int) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return NewRedisStore(client), nil
}

func redisKey(key domain.RecordKey) string {
	return redisKeyPrefix + key.String()
}

func encodeEntry(rec domain.ProviderRecord, expiresAt time.Time) ([]byte, error) {
	return json.Marshal(redisEntry{Record: rec, ExpiresAt: expiresAt.UTC()})
}

func decodeEntry(data []byte) (redisEntry, error) {
	var entry redisEntry
	err := json.Unmarshal(data, &entry)
	return entry, err
}

// Get loads the record stored under key.
func (s *RedisStore) Get(ctx context.Context, key domain.RecordKey) (domain.ProviderRecord, time.Time, bool, error) {
	data, err := s.client.Get(ctx, redisKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.ProviderRecord{}, time.Time{}, false, nil
	}
	if err != nil {
		return domain.ProviderRecord{}, time.Time{}, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	entry, err := decodeEntry(data)
	if err != nil {
		return domain.ProviderRecord{}, time.Time{}, false, fmt.Errorf("decode record %s: %w", key, err)
	}
	return entry.Record, entry.ExpiresAt, true, nil
}

// Set stores rec until expiresAt. Already expired records are not written.
func (s *RedisStore) Set(ctx context.Context, key domain.RecordKey, rec domain.ProviderRecord, expiresAt time.Time) error {
	ttl := expiresAt.Sub(s.now())
	if ttl <= 0 {
		return nil
	}
	data, err := encodeEntry(rec, expiresAt)
	if err != nil {
		return fmt.Errorf("encode record %s: %w", key, err)
	}
	if err := s.client.Set(ctx, redisKey(key), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// HasFresh reports whether key holds a record that has not expired at now.
func (s *RedisStore) HasFresh(ctx context.Context, key domain.RecordKey, now time.Time) (bool, error) {
	_, expiresAt, found, err := s.Get(ctx, key)
	if err != nil || !found {
		return false, err
	}
	return now.Before(expiresAt), nil
}

// Close releases the client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
