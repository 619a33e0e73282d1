// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jiyuchen1/AiHistory/internal/model"
	"github.com/jiyuchen1/AiHistory/internal/repository"
	"github.com/jiyuchen1/AiHistory/pkg/log"
)

// Confirmation 在删除前被调用，返回 false 表示用户取消。
type Confirmation func(record model.TurnRecord) bool

// Recorder 接收操作结果与快照大小，用于监控。
type Recorder interface {
	RecordOperation(op string, level Level)
	RecordSnapshot(records, bytes int)
}

// DialogueService 定义了对话记录存储的全部操作。
// 所有操作互斥执行，且在返回前已完成持久化。
type DialogueService interface {
	Hydrate(ctx context.Context) error
	Append(ctx context.Context, role model.Role, dialogue, think string) (model.TurnRecord, error)
	Delete(ctx context.Context, id string, confirm Confirmation) error
	ImportBatch(ctx context.Context, data []byte) (int, error)
	ImportRecords(ctx context.Context, candidates []model.TurnRecord) (int, error)
	ExportSnapshot(ctx context.Context) ([]byte, error)
	Clear(ctx context.Context, confirm func() bool) error
	Records() []model.TurnRecord
	Len() int
}

// Option 用于定制 DialogueService。
type Option func(*dialogueService)

// WithClock 替换记录时间戳使用的时钟。
func WithClock(now func() time.Time) Option {
	return func(s *dialogueService) { s.now = now }
}

// WithIDGenerator 替换记录 id 的生成方式。
func WithIDGenerator(gen func() (string, error)) Option {
	return func(s *dialogueService) { s.newID = gen }
}

// WithRecorder 挂接监控指标。
func WithRecorder(r Recorder) Option {
	return func(s *dialogueService) { s.recorder = r }
}

type dialogueService struct {
	mu       sync.Mutex
	repo     repository.SnapshotRepository
	records  []model.TurnRecord
	ids      map[string]struct{}
	now      func() time.Time
	newID    func() (string, error)
	recorder Recorder
}

// NewDialogueService 创建一个空的 DialogueService，调用 Hydrate 之后才会载入已保存的记录。
func NewDialogueService(repo repository.SnapshotRepository, opts ...Option) DialogueService {
	s := &dialogueService{
		repo:     repo,
		records:  []model.TurnRecord{},
		ids:      make(map[string]struct{}),
		now:      time.Now,
		newID:    newUUIDv7,
		recorder: nopRecorder{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// newUUIDv7 生成带毫秒时间戳前缀的 UUIDv7，同一进程内单调递增。
func newUUIDv7() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Hydrate 从持久化槽位载入记录。
// 槽位为空时得到空序列；槽位损坏或读取失败时同样退化为空序列，并返回提示性的错误。
func (s *dialogueService) Hydrate(ctx context.Context) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer func() { s.recorder.RecordOperation("hydrate", Classify(err)) }()

	s.reset(nil)

	data, err := s.repo.Load(ctx)
	if errors.Is(err, repository.ErrSnapshotNotFound) {
		log.Info("未找到已保存的对话快照，使用空记录")
		return nil
	}
	if err != nil {
		log.Error("读取对话快照失败，使用空记录", err)
		return &PersistenceError{Op: "hydrate", Err: err}
	}

	records, err := model.DecodeSnapshot(data)
	if err != nil {
		log.Warnw("对话快照已损坏，使用空记录", "error", err, "bytes", len(data))
		return fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}

	dropped := s.reset(records)
	if dropped > 0 {
		log.Warnf("对话快照中有 %d 条重复 id 的记录，已忽略", dropped)
	}
	s.recorder.RecordSnapshot(len(s.records), len(data))
	log.Infof("已载入 %d 条对话记录", len(s.records))
	return nil
}

// reset 用 records 替换当前序列，重复 id 只保留第一次出现的记录，返回被丢弃的数量。
func (s *dialogueService) reset(records []model.TurnRecord) int {
	s.records = make([]model.TurnRecord, 0, len(records))
	s.ids = make(map[string]struct{}, len(records))
	dropped := 0
	for _, rec := range records {
		if _, ok := s.ids[rec.ID]; ok {
			dropped++
			continue
		}
		s.ids[rec.ID] = struct{}{}
		s.records = append(s.records, rec)
	}
	return dropped
}

// persist 把整个序列写入槽位。失败时内存状态保持不变。
func (s *dialogueService) persist(ctx context.Context, op string) error {
	data, err := model.EncodeSnapshot(s.records)
	if err != nil {
		return &PersistenceError{Op: op, Err: err}
	}
	if err := s.repo.Save(ctx, data); err != nil {
		log.Warnw("保存对话快照失败，内存中的记录仍然有效", "op", op, "records", len(s.records), "error", err)
		return &PersistenceError{Op: op, Err: err}
	}
	s.recorder.RecordSnapshot(len(s.records), len(data))
	return nil
}

// Append 在序列末尾追加一条记录并保存。
// 持久化失败时记录仍保留在内存中，并与 *PersistenceError 一起返回。
func (s *dialogueService) Append(ctx context.Context, role model.Role, dialogue, think string) (rec model.TurnRecord, err error) {
	defer func() { s.recorder.RecordOperation("append", Classify(err)) }()

	if !role.Valid() {
		return model.TurnRecord{}, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	if strings.TrimSpace(dialogue) == "" {
		return model.TurnRecord{}, ErrEmptyDialogue
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.uniqueID()
	if err != nil {
		return model.TurnRecord{}, err
	}
	rec = model.TurnRecord{
		ID:        id,
		Role:      role,
		Dialogue:  dialogue,
		Think:     think,
		Timestamp: model.FormatLocal(s.now()),
	}.Normalize()

	s.records = append(s.records, rec)
	s.ids[rec.ID] = struct{}{}

	return rec, s.persist(ctx, "append")
}

func (s *dialogueService) uniqueID() (string, error) {
	for attempt := 0; attempt < 8; attempt++ {
		id, err := s.newID()
		if err != nil {
			return "", fmt.Errorf("generate id: %w", err)
		}
		if _, taken := s.ids[id]; !taken && id != "" {
			return id, nil
		}
	}
	return "", errIDSpaceExhausted
}

func (s *dialogueService) indexOf(id string) int {
	for i, rec := range s.records {
		if rec.ID == id {
			return i
		}
	}
	return -1
}

// Delete 删除指定 id 的记录。confirm 在锁外调用，可以安全地阻塞等待用户。
func (s *dialogueService) Delete(ctx context.Context, id string, confirm Confirmation) (err error) {
	defer func() { s.recorder.RecordOperation("delete", Classify(err)) }()

	s.mu.Lock()
	idx := s.indexOf(id)
	var target model.TurnRecord
	if idx >= 0 {
		target = s.records[idx]
	}
	s.mu.Unlock()

	if idx < 0 {
		return ErrNotFound
	}
	if confirm == nil || !confirm(target) {
		return ErrNotConfirmed
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// 确认期间记录可能已被其他调用删除
	idx = s.indexOf(id)
	if idx < 0 {
		return ErrNotFound
	}
	s.records = append(s.records[:idx], s.records[idx+1:]...)
	delete(s.ids, id)

	return s.persist(ctx, "delete")
}

// ImportBatch 解析导入文本并把新记录整体插入到序列开头。
func (s *dialogueService) ImportBatch(ctx context.Context, data []byte) (n int, err error) {
	candidates, err := model.DecodeSnapshot(data)
	if err != nil {
		s.recorder.RecordOperation("import", LevelError)
		return 0, &ValidationError{Err: err}
	}
	return s.importRecords(ctx, candidates)
}

// ImportRecords 与 ImportBatch 相同，但接收已经解析好的记录。
func (s *dialogueService) ImportRecords(ctx context.Context, candidates []model.TurnRecord) (int, error) {
	normalized := make([]model.TurnRecord, 0, len(candidates))
	for i, c := range candidates {
		if err := validateCandidate(i, c); err != nil {
			s.recorder.RecordOperation("import", LevelError)
			return 0, &ValidationError{Err: err}
		}
		normalized = append(normalized, c.Normalize())
	}
	return s.importRecords(ctx, normalized)
}

func validateCandidate(index int, c model.TurnRecord) error {
	switch {
	case strings.TrimSpace(c.ID) == "":
		return &model.FieldError{Index: index, Field: "id", Reason: "is empty"}
	case !c.Role.Valid():
		return &model.FieldError{Index: index, Field: "role", Reason: fmt.Sprintf("has unknown value %q", c.Role)}
	case strings.TrimSpace(c.Dialogue) == "":
		return &model.FieldError{Index: index, Field: "dialogue", Reason: "is empty"}
	}
	return nil
}

// importRecords 去掉已存在的 id（批内重复只保留第一条），把剩余记录按原顺序放到最前面。
func (s *dialogueService) importRecords(ctx context.Context, candidates []model.TurnRecord) (n int, err error) {
	defer func() { s.recorder.RecordOperation("import", Classify(err)) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]struct{}, len(candidates))
	fresh := make([]model.TurnRecord, 0, len(candidates))
	for _, c := range candidates {
		if _, exists := s.ids[c.ID]; exists {
			continue
		}
		if _, dup := seen[c.ID]; dup {
			continue
		}
		seen[c.ID] = struct{}{}
		fresh = append(fresh, c)
	}
	if len(fresh) == 0 {
		return 0, ErrNothingNew
	}

	merged := make([]model.TurnRecord, 0, len(fresh)+len(s.records))
	merged = append(merged, fresh...)
	merged = append(merged, s.records...)
	s.records = merged
	for id := range seen {
		s.ids[id] = struct{}{}
	}

	log.Infof("导入了 %d 条对话记录，跳过 %d 条", len(fresh), len(candidates)-len(fresh))
	return len(fresh), s.persist(ctx, "import")
}

// ExportSnapshot 返回可直接被 ImportBatch 读取的缩进 JSON 文档。
func (s *dialogueService) ExportSnapshot(_ context.Context) (data []byte, err error) {
	defer func() { s.recorder.RecordOperation("export", Classify(err)) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.records) == 0 {
		return nil, ErrNothingToExport
	}
	return model.EncodeSnapshotIndent(s.records)
}

// Clear 清空所有记录。存储为空时直接返回 ErrNothingToClear，不会写入槽位。
func (s *dialogueService) Clear(ctx context.Context, confirm func() bool) (err error) {
	defer func() { s.recorder.RecordOperation("clear", Classify(err)) }()

	if s.Len() == 0 {
		return ErrNothingToClear
	}
	if confirm == nil || !confirm() {
		return ErrNotConfirmed
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.records) == 0 {
		return ErrNothingToClear
	}
	s.reset(nil)
	return s.persist(ctx, "clear")
}

// Records 返回当前序列的副本。
func (s *dialogueService) Records() []model.TurnRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.TurnRecord, len(s.records))
	copy(out, s.records)
	return out
}

func (s *dialogueService) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// ExportFilename 返回导出文件的建议文件名。
func ExportFilename(now time.Time) string {
	return fmt.Sprintf("dialogue-history-%s.json", now.Format("2006-01-02"))
}

type nopRecorder struct{}

func (nopRecorder) RecordOperation(string, Level) {}
func (nopRecorder) RecordSnapshot(int, int)       {}
