package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jiyuchen1/AiHistory/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type gormSnapshotRepository struct {
	db  *gorm.DB
	key string
}

// NewGormSnapshotRepository 创建一个基于 GORM 的 SnapshotRepository，并确保快照表存在。
func NewGormSnapshotRepository(db *gorm.DB, key string) (SnapshotRepository, error) {
	if err := db.AutoMigrate(&model.SnapshotRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate snapshot table: %w", err)
	}
	return &gormSnapshotRepository{db: db, key: key}, nil
}

func (r *gormSnapshotRepository) Load(ctx context.Context) ([]byte, error) {
	var row model.SnapshotRow
	err := r.db.WithContext(ctx).Where("slot_key = ?", r.key).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot: %w", err)
	}
	return []byte(row.Payload), nil
}

// Save 以 upsert 的方式覆盖当前槽位的快照。
func (r *gormSnapshotRepository) Save(ctx context.Context, data []byte) error {
	row := model.SnapshotRow{SlotKey: r.key, Payload: string(data)}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "slot_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"payload", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to upsert snapshot: %w", err)
	}
	return nil
}

func (r *gormSnapshotRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
