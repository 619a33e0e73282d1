// Package repository 提供了数据访问层的实现。
package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrSnapshotNotFound 表示槽位中还没有任何快照。
	ErrSnapshotNotFound = errors.New("snapshot not found")
	// ErrQuotaExceeded 表示快照超过了槽位的容量上限。
	ErrQuotaExceeded = errors.New("snapshot quota exceeded")
)

// SnapshotRepository 定义了对话快照槽位的读写接口。
// 每个实现都绑定在一个固定的键上，读写的是完整的序列化快照。
type SnapshotRepository interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, data []byte) error
	Close() error
}

type memorySnapshotRepository struct {
	mu    sync.RWMutex
	data  []byte
	saved bool
}

// NewMemorySnapshotRepository 创建一个进程内的快照槽位，进程退出后数据即丢失。
func NewMemorySnapshotRepository() SnapshotRepository {
	return &memorySnapshotRepository{}
}

func (r *memorySnapshotRepository) Load(_ context.Context) ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.saved {
		return nil, ErrSnapshotNotFound
	}
	out := make([]byte, len(r.data))
	copy(out, r.data)
	return out, nil
}

func (r *memorySnapshotRepository) Save(_ context.Context, data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data = append(r.data[:0], data...)
	r.saved = true
	return nil
}

func (r *memorySnapshotRepository) Close() error { return nil }

type quotaSnapshotRepository struct {
	SnapshotRepository
	maxBytes int
}

// WithQuota 为槽位加上容量上限，超过 maxBytes 的快照会以 ErrQuotaExceeded 拒绝，
// 槽位中原有的数据保持不变。maxBytes <= 0 时不做限制。
func WithQuota(repo SnapshotRepository, maxBytes int) SnapshotRepository {
	if maxBytes <= 0 {
		return repo
	}
	return &quotaSnapshotRepository{SnapshotRepository: repo, maxBytes: maxBytes}
}

func (r *quotaSnapshotRepository) Save(ctx context.Context, data []byte) error {
	if len(data) > r.maxBytes {
		return fmt.Errorf("%w: %d bytes exceeds limit of %d", ErrQuotaExceeded, len(data), r.maxBytes)
	}
	return r.SnapshotRepository.Save(ctx, data)
}
