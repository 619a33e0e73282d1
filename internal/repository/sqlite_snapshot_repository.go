package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

type sqliteSnapshotRepository struct {
	db  *sql.DB
	key string
}

// NewSQLiteSnapshotRepository 创建一个基于 SQLite 的 SnapshotRepository，并确保快照表存在。
func NewSQLiteSnapshotRepository(db *sql.DB, key string) (SnapshotRepository, error) {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS dialogue_snapshots (
		slot_key TEXT PRIMARY KEY,
		payload TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		return nil, fmt.Errorf("create snapshot table: %w", err)
	}
	return &sqliteSnapshotRepository{db: db, key: key}, nil
}

func (r *sqliteSnapshotRepository) Load(ctx context.Context) ([]byte, error) {
	var payload string
	err := r.db.QueryRowContext(ctx, "SELECT payload FROM dialogue_snapshots WHERE slot_key = ?", r.key).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query snapshot: %w", err)
	}
	return []byte(payload), nil
}

func (r *sqliteSnapshotRepository) Save(ctx context.Context, data []byte) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO dialogue_snapshots (slot_key, payload, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(slot_key) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		r.key, string(data))
	if err != nil {
		return fmt.Errorf("upsert snapshot: %w", err)
	}
	return nil
}

func (r *sqliteSnapshotRepository) Close() error {
	return r.db.Close()
}
