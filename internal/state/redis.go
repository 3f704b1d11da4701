package state

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/zclconf/go-cty/cty"
	ctyjson "github.com/zclconf/go-cty/cty/json"
)

const (
	// DefaultTTL bounds how long carried state can outlive a crashed run.
	DefaultTTL = 60 * time.Minute

	keyPrefix = "gridloop:run:"
)

// RedisStore persists carried state in Redis, so a run's state survives the
// process and can be inspected from outside. Values are JSON with embedded
// cty type information, written with a TTL as crash insurance.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore connects to the Redis instance named by url (redis:// form)
// and verifies the connection with a ping.
func NewRedisStore(ctx context.Context, url string, ttl time.Duration) (*RedisStore, error) {
	if url == "" {
		return nil, fmt.Errorf("redis state store requires a connection URL")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, ttl: ttl}, nil
}

func (s *RedisStore) key(key Key) string {
	return fmt.Sprintf("%s%s:cycle:%s:node:%s", keyPrefix, key.RunID, key.CycleID, key.NodeID)
}

func (s *RedisStore) Snapshot(ctx context.Context, key Key) (cty.Value, error) {
	data, err := s.client.Get(ctx, s.key(key)).Bytes()
	if err == redis.Nil {
		return Empty(), nil
	}
	if err != nil {
		return cty.NilVal, fmt.Errorf("reading state for %s: %w", key.NodeID, err)
	}

	val, err := ctyjson.Unmarshal(data, cty.DynamicPseudoType)
	if err != nil {
		return cty.NilVal, fmt.Errorf("decoding state for %s: %w", key.NodeID, err)
	}
	if val.IsNull() {
		return Empty(), nil
	}
	return val, nil
}

func (s *RedisStore) Save(ctx context.Context, key Key, _ int, state cty.Value) error {
	if state == cty.NilVal || state.IsNull() {
		state = Empty()
	}
	data, err := ctyjson.Marshal(state, cty.DynamicPseudoType)
	if err != nil {
		return fmt.Errorf("encoding state for %s: %w", key.NodeID, err)
	}
	if err := s.client.Set(ctx, s.key(key), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("writing state for %s: %w", key.NodeID, err)
	}
	return nil
}

func (s *RedisStore) Discard(ctx context.Context, runID string) error {
	pattern := keyPrefix + runID + ":*"
	iter := s.client.Scan(ctx, 0, pattern, 0).Iterator()

	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scanning state for run %s: %w", runID, err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("discarding state for run %s: %w", runID, err)
	}
	return nil
}

// Close releases the underlying Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

var _ Store = (*RedisStore)(nil)
