// Package model 包含了应用的数据模型定义。
package model

import "strings"

// Role 表示一轮对话的发言方。
type Role string

const (
	// RoleQuestioner 是提问的一方。
	RoleQuestioner Role = "user"
	// RoleResponder 是回答的一方，只有它可以携带思考过程。
	RoleResponder Role = "assistant"
)

// Valid 报告 r 是否为已知角色。
func (r Role) Valid() bool {
	return r == RoleQuestioner || r == RoleResponder
}

// ParseRole 解析外部输入的角色名，大小写与首尾空白不敏感。
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	return r, r.Valid()
}

// TurnRecord 代表持久化槽位中的单条对话记录。
type TurnRecord struct {
	ID        string `json:"id"`
	Role      Role   `json:"role"`
	Dialogue  string `json:"dialogue"`
	Think     string `json:"think"`
	Timestamp string `json:"timestamp"`
}

// Normalize 去掉文本首尾空白，把非法 UTF-8 字节替换为 U+FFFD（与 JSON 编码结果一致，
// 内存与槽位中的文本因此逐字节相同），并清空非回答方的思考过程。
func (t TurnRecord) Normalize() TurnRecord {
	t.Dialogue = strings.TrimSpace(strings.ToValidUTF8(t.Dialogue, "\uFFFD"))
	t.Think = strings.TrimSpace(strings.ToValidUTF8(t.Think, "\uFFFD"))
	if t.Role != RoleResponder {
		t.Think = ""
	}
	return t
}
