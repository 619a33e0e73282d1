package service

import (
	"errors"
	"fmt"

	"github.com/jiyuchen1/AiHistory/internal/model"
)

// 校验类错误：请求被拒绝，存储保持不变。
var (
	ErrEmptyDialogue = errors.New("empty dialogue")
	ErrInvalidRole   = errors.New("invalid role")
	// ErrMalformedImport 是导入批次结构不合法时所有错误的根。
	ErrMalformedImport = model.ErrMalformedSnapshot
)

// 提示类错误：操作没有产生变化，但这不是故障。
var (
	ErrNotFound         = errors.New("record not found")
	ErrNothingToExport  = errors.New("nothing to export")
	ErrNothingToClear   = errors.New("nothing to clear")
	ErrNothingNew       = errors.New("nothing new to import")
	ErrNotConfirmed     = errors.New("operation not confirmed")
	ErrCorruptSnapshot  = errors.New("persisted snapshot is corrupt")
	errIDSpaceExhausted = errors.New("failed to generate a unique id")
)

// ValidationError 表示整批导入被拒绝的原因。
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("import rejected: %v", e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// PersistenceError 表示内存中的变更已生效，但没能写入持久化槽位。
// 内存状态在本次会话中仍然有效，调用方应提示用户刷新后可能丢失最近的修改。
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: failed to persist snapshot: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Level 是操作结果面向用户的提示级别。
type Level string

const (
	LevelSuccess Level = "success"
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Classify 把操作返回的错误映射为提示级别。
func Classify(err error) Level {
	if err == nil {
		return LevelSuccess
	}
	var perr *PersistenceError
	if errors.As(err, &perr) {
		return LevelWarning
	}
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrNothingToExport),
		errors.Is(err, ErrNothingToClear),
		errors.Is(err, ErrNothingNew),
		errors.Is(err, ErrNotConfirmed),
		errors.Is(err, ErrCorruptSnapshot):
		return LevelInfo
	}
	return LevelError
}

// Describe 返回面向用户的中文提示，err 为 nil 时返回 success。
// 无法识别的错误原样返回 err.Error()，由调用方决定是否对用户隐藏。
func Describe(err error, success string) string {
	var (
		verr *ValidationError
		perr *PersistenceError
	)
	switch {
	case err == nil:
		return success
	case errors.As(err, &perr):
		return success + "，但保存到本地存储失败，刷新后可能丢失"
	case errors.Is(err, ErrEmptyDialogue):
		return "对话内容不能为空"
	case errors.Is(err, ErrInvalidRole):
		return "未知的角色"
	case errors.As(err, &verr):
		return fmt.Sprintf("导入文件格式不正确: %v", verr.Err)
	case errors.Is(err, ErrNotFound):
		return "记录不存在"
	case errors.Is(err, ErrNotConfirmed):
		return "操作未确认"
	case errors.Is(err, ErrNothingToExport):
		return "没有可以导出的记录"
	case errors.Is(err, ErrNothingToClear):
		return "没有可以清空的记录"
	case errors.Is(err, ErrNothingNew):
		return "没有新的记录可以导入"
	case errors.Is(err, ErrCorruptSnapshot):
		return "本地保存的记录已损坏，已从空记录开始"
	}
	return err.Error()
}
