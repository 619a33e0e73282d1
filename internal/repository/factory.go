package repository

import (
	"context"
	"fmt"

	"github.com/jiyuchen1/AiHistory/internal/config"
	"github.com/jiyuchen1/AiHistory/pkg/database"
	"gorm.io/gorm"
)

// NewSnapshotRepository 根据存储配置创建对应的快照槽位，并套上容量上限。
func NewSnapshotRepository(ctx context.Context, cfg config.StorageConfig) (SnapshotRepository, error) {
	var (
		repo SnapshotRepository
		err  error
	)

	switch cfg.Driver {
	case "memory":
		repo = NewMemorySnapshotRepository()
	case "file":
		repo, err = NewFileSnapshotRepository(cfg.File.Path)
	case "redis":
		rdb, openErr := database.OpenRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if openErr != nil {
			return nil, openErr
		}
		repo = NewRedisSnapshotRepository(rdb, cfg.Key)
	case "mysql":
		db, openErr := database.OpenMySQL(cfg.MySQL.DSN)
		if openErr != nil {
			return nil, openErr
		}
		repo, err = newGormRepository(db, cfg.Key)
	case "sqlite":
		db, openErr := database.OpenSQLite(cfg.SQLite.Path)
		if openErr != nil {
			return nil, openErr
		}
		repo, err = NewSQLiteSnapshotRepository(db, cfg.Key)
		if err != nil {
			db.Close()
		}
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	return WithQuota(repo, cfg.MaxBytes), nil
}

// newGormRepository 在建表失败时关闭连接，避免泄漏连接池。
func newGormRepository(db *gorm.DB, key string) (SnapshotRepository, error) {
	repo, err := NewGormSnapshotRepository(db, key)
	if err != nil {
		if sqlDB, dbErr := db.DB(); dbErr == nil {
			_ = sqlDB.Close()
		}
		return nil, err
	}
	return repo, nil
}
