package models

import (
	"time"
)

// KVEntry 键值存储记录（本地持久化存储的最小单元）
type KVEntry struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Key       string    `gorm:"uniqueIndex;size:191;not null" json:"key"`
	Value     string    `gorm:"type:text" json:"value"` // JSON编码后的值
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName 指定表名
func (KVEntry) TableName() string {
	return "kv_entries"
}

// Size 记录占用的字节数估算（键+值）
func (e *KVEntry) Size() int64 {
	return int64(len(e.Key) + len(e.Value))
}
