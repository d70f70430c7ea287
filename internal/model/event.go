package model

import (
	"errors"
	"time"

	"gorm.io/datatypes"
)

// 事件投递状态
const (
	EventStatusPending   = "pending"
	EventStatusDelivered = "delivered"
	EventStatusFailed    = "failed"
	EventStatusSkipped   = "skipped" // 未配置 webhook
)

// EventModel 通知事件 outbox 数据模型
type EventModel struct {
	ID        string         `gorm:"primaryKey;type:varchar(64)"`
	ResultID  string         `gorm:"type:varchar(64);not null;index"`
	StudentID string         `gorm:"type:varchar(64);not null;index"`
	Type      string         `gorm:"type:varchar(32);not null;index"`
	Data      datatypes.JSON `gorm:"not null"` // 序列化后的事件数据
	Status    string         `gorm:"type:varchar(32);not null;default:'pending'"`
	LastError string         `gorm:"type:text"`
	CreatedAt time.Time      `gorm:"not null;index"`
	UpdatedAt time.Time      `gorm:"not null"`
}

// TableName 指定表名
func (EventModel) TableName() string {
	return "events"
}

// Validate 验证事件模型
func (em *EventModel) Validate() error {
	if em.ID == "" {
		return errors.New("event ID is required")
	}
	if em.ResultID == "" {
		return errors.New("result ID is required")
	}
	if em.Type == "" {
		return errors.New("event type is required")
	}
	if len(em.Data) == 0 {
		return errors.New("event data is required")
	}
	if em.Status == "" {
		em.Status = EventStatusPending
	}
	return nil
}
