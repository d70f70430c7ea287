// Package notify 成绩事件通知: 尽力而为,不阻塞也不影响已提交的状态变更
package notify

import (
	"context"
	"errors"
	"time"
)

// EventType 事件类型
type EventType string

const (
	EventResultPublished EventType = "result_published"
	EventResultRejected  EventType = "result_rejected"
)

// Event 成绩事件
type Event struct {
	Type           EventType `json:"type"`
	ResultID       string    `json:"result_id"`
	StudentID      string    `json:"student_id"`
	UnitCode       string    `json:"unit_code"`
	AssessmentType string    `json:"assessment_type"`
	AcademicYear   string    `json:"academic_year"`
	Semester       int       `json:"semester"`
	Status         string    `json:"status"`
	Grade          string    `json:"grade,omitempty"`
	Percentage     float64   `json:"percentage,omitempty"`
	Reason         string    `json:"reason,omitempty"`
	Actor          string    `json:"actor"`
	Version        int       `json:"version"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// Notifier 通知接收方,返回的错误只用于记录日志
type Notifier interface {
	Notify(ctx context.Context, evt Event) error
}

// Nop 丢弃所有事件
type Nop struct{}

// Notify 实现 Notifier
func (Nop) Notify(context.Context, Event) error { return nil }

// Multi 依次投递给多个接收方,单个失败不影响其他接收方
type Multi []Notifier

// Notify 实现 Notifier,返回所有失败的合并错误
func (m Multi) Notify(ctx context.Context, evt Event) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, evt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
