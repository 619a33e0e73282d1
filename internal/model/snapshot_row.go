package model

import "time"

// SnapshotRow 是关系型数据库中保存快照槽位的一行，每个槽位键对应一行。
type SnapshotRow struct {
	SlotKey   string    `gorm:"primaryKey;size:191" json:"slotKey"`
	Payload   string    `gorm:"type:longtext;not null" json:"payload"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (SnapshotRow) TableName() string {
	return "dialogue_snapshots"
}
