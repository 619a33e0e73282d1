package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

type fileSnapshotRepository struct {
	path string
}

// NewFileSnapshotRepository 创建一个以单个本地文件为槽位的 SnapshotRepository。
func NewFileSnapshotRepository(path string) (SnapshotRepository, error) {
	if path == "" {
		return nil, errors.New("file snapshot path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	return &fileSnapshotRepository{path: path}, nil
}

func (r *fileSnapshotRepository) Load(_ context.Context) ([]byte, error) {
	data, err := os.ReadFile(r.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot file: %w", err)
	}
	return data, nil
}

// Save 先写临时文件再重命名，保证槽位里不会留下写了一半的快照。
func (r *fileSnapshotRepository) Save(_ context.Context, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(r.path), ".snapshot-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp snapshot: %w", err)
	}
	if err := os.Rename(tmpName, r.path); err != nil {
		return fmt.Errorf("failed to replace snapshot file: %w", err)
	}
	return nil
}

func (r *fileSnapshotRepository) Close() error { return nil }
