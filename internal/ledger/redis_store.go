package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps the ledger in one hash: field customer_id, value RFC3339Nano.
type RedisStore struct {
	client *redis.Client
	key    string
}

// NewRedisStore creates a store under "<prefix>:ledger".
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, key: prefix + ":ledger"}
}

// Load reads the hash. A missing key returns ErrNotFound.
func (s *RedisStore) Load(ctx context.Context) (map[string]time.Time, error) {
	fields, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("reading ledger hash %s: %w", s.key, err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}
	records := make(map[string]time.Time, len(fields))
	for id, raw := range fields {
		t, err := parseTimestamp(raw)
		if err != nil {
			return nil, fmt.Errorf("decoding ledger field %s: %w", id, err)
		}
		records[id] = t
	}
	return records, nil
}

// Save replaces the hash inside MULTI/EXEC.
func (s *RedisStore) Save(ctx context.Context, records map[string]time.Time) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key)
		if len(records) == 0 {
			return nil
		}
		values := make(map[string]interface{}, len(records))
		for id, t := range records {
			values[id] = t.UTC().Format(time.RFC3339Nano)
		}
		pipe.HSet(ctx, s.key, values)
		return nil
	})
	if err != nil {
		return fmt.Errorf("writing ledger hash %s: %w", s.key, err)
	}
	return nil
}
