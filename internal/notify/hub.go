package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mautops/results-gin/internal/metrics"
)

// Broadcaster 向订阅某学生的连接推送消息
type Broadcaster interface {
	BroadcastToStudent(studentID string, message []byte)
}

// HubNotifier 将已发布成绩推送给学生的 WebSocket 订阅者
type HubNotifier struct {
	hub Broadcaster
}

// NewHubNotifier 创建 WebSocket 推送通知器
func NewHubNotifier(hub Broadcaster) *HubNotifier {
	return &HubNotifier{hub: hub}
}

// Notify 只推送 result_published,驳回事件不对学生可见
func (n *HubNotifier) Notify(_ context.Context, evt Event) error {
	if evt.Type != EventResultPublished {
		return nil
	}
	msg, err := json.Marshal(map[string]interface{}{
		"type": evt.Type,
		"data": evt,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	n.hub.BroadcastToStudent(evt.StudentID, msg)
	metrics.RecordNotification(string(evt.Type), "broadcast")
	return nil
}
