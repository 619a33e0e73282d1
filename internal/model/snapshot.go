package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedSnapshot 表示快照文本不符合记录数组的结构。
var ErrMalformedSnapshot = errors.New("malformed snapshot")

// FieldError 描述快照中第一处结构错误。Index 为 -1 表示整体结构错误。
type FieldError struct {
	Index  int
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	switch {
	case e.Index < 0:
		return fmt.Sprintf("malformed snapshot: %s", e.Reason)
	case e.Field == "":
		return fmt.Sprintf("malformed snapshot: record %d: %s", e.Index, e.Reason)
	default:
		return fmt.Sprintf("malformed snapshot: record %d: field %q %s", e.Index, e.Field, e.Reason)
	}
}

func (e *FieldError) Unwrap() error {
	return ErrMalformedSnapshot
}

// EncodeSnapshot 将记录序列编码为紧凑的 JSON 数组，用于写入持久化槽位。
func EncodeSnapshot(records []TurnRecord) ([]byte, error) {
	data, err := encodeSnapshot(records, "")
	if err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(data, []byte("\n")), nil
}

// EncodeSnapshotIndent 将记录序列编码为两空格缩进、以换行结尾的 JSON 文档，用于导出。
// 输出可以原样交给 DecodeSnapshot。
func EncodeSnapshotIndent(records []TurnRecord) ([]byte, error) {
	return encodeSnapshot(records, "  ")
}

// encodeSnapshot 不转义 <、>、&，对话里的代码保持原样可读。
func encodeSnapshot(records []TurnRecord, indent string) ([]byte, error) {
	if records == nil {
		records = []TurnRecord{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if indent != "" {
		enc.SetIndent("", indent)
	}
	if err := enc.Encode(records); err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeSnapshot 解析并校验快照文本。
// 输入必须是对象数组，每个对象的 id、role、dialogue、timestamp 都必须是字符串，
// think 可省略。任何一条不合法都会让整批失败，返回 *FieldError。
// 返回的记录已经过 Normalize。
func DecodeSnapshot(data []byte) ([]TurnRecord, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, &FieldError{Index: -1, Reason: "expected a JSON array of records"}
	}

	var items []json.RawMessage
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, &FieldError{Index: -1, Reason: err.Error()}
	}

	records := make([]TurnRecord, 0, len(items))
	for i, item := range items {
		rec, err := decodeRecord(i, item)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func decodeRecord(index int, item json.RawMessage) (TurnRecord, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(item, &obj); err != nil || obj == nil {
		return TurnRecord{}, &FieldError{Index: index, Reason: "is not an object"}
	}

	var rec TurnRecord
	var err error
	if rec.ID, err = stringField(index, obj, "id", true); err != nil {
		return TurnRecord{}, err
	}
	if strings.TrimSpace(rec.ID) == "" {
		return TurnRecord{}, &FieldError{Index: index, Field: "id", Reason: "is empty"}
	}

	role, err := stringField(index, obj, "role", true)
	if err != nil {
		return TurnRecord{}, err
	}
	parsed, ok := ParseRole(role)
	if !ok {
		return TurnRecord{}, &FieldError{Index: index, Field: "role", Reason: fmt.Sprintf("has unknown value %q", role)}
	}
	rec.Role = parsed

	if rec.Dialogue, err = stringField(index, obj, "dialogue", true); err != nil {
		return TurnRecord{}, err
	}
	if strings.TrimSpace(rec.Dialogue) == "" {
		return TurnRecord{}, &FieldError{Index: index, Field: "dialogue", Reason: "is empty"}
	}

	if rec.Timestamp, err = stringField(index, obj, "timestamp", true); err != nil {
		return TurnRecord{}, err
	}
	if rec.Think, err = stringField(index, obj, "think", false); err != nil {
		return TurnRecord{}, err
	}
	return rec.Normalize(), nil
}

func stringField(index int, obj map[string]json.RawMessage, name string, required bool) (string, error) {
	raw, ok := obj[name]
	if !ok {
		if required {
			return "", &FieldError{Index: index, Field: name, Reason: "is missing"}
		}
		return "", nil
	}
	// null 会被 json 静默解析为空字符串，这里单独拒绝
	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		if !required {
			return "", nil
		}
		return "", &FieldError{Index: index, Field: name, Reason: "is null"}
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", &FieldError{Index: index, Field: name, Reason: "is not a string"}
	}
	return s, nil
}
