package settings

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// RedisSnapshotKey holds the serialized copy of the last good snapshot.
const RedisSnapshotKey = "settings:snapshot"

// RedisMirror keeps the snapshot copy in Redis. The copy never expires so it
// survives a long store outage.
type RedisMirror struct {
	client *redis.Client
	key    string
}

func NewRedisMirror(client *redis.Client) *RedisMirror {
	return &RedisMirror{client: client, key: RedisSnapshotKey}
}

func (m *RedisMirror) Name() string { return SourceRedis }

func (m *RedisMirror) Put(ctx context.Context, data []byte) error {
	return m.client.Set(ctx, m.key, data, 0).Err()
}

func (m *RedisMirror) Get(ctx context.Context) ([]byte, error) {
	return m.client.Get(ctx, m.key).Bytes()
}
