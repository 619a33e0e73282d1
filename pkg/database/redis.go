package database

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/jiyuchen1/AiHistory/pkg/log"
)

// OpenRedis 创建 Redis 客户端并测试连接
func OpenRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Info("Redis client connected successfully")
	return rdb, nil
}
