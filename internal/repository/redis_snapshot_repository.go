package repository

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
)

type redisSnapshotRepository struct {
	redisClient *redis.Client
	key         string
}

// NewRedisSnapshotRepository 创建一个把快照存放在 Redis 单个键下的 SnapshotRepository。
// 快照不设置过期时间。
func NewRedisSnapshotRepository(redisClient *redis.Client, key string) SnapshotRepository {
	return &redisSnapshotRepository{redisClient: redisClient, key: key}
}

// Load 从 Redis 获取快照。
func (r *redisSnapshotRepository) Load(ctx context.Context) ([]byte, error) {
	data, err := r.redisClient.Get(ctx, r.key).Bytes()
	if err == redis.Nil {
		return nil, ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}
	return data, nil
}

// Save 在 Redis 中覆盖快照。
func (r *redisSnapshotRepository) Save(ctx context.Context, data []byte) error {
	if err := r.redisClient.Set(ctx, r.key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to set snapshot: %w", err)
	}
	return nil
}

func (r *redisSnapshotRepository) Close() error {
	return r.redisClient.Close()
}
