package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mautops/results-gin/internal/metrics"
	"github.com/mautops/results-gin/internal/model"
	"github.com/mautops/results-gin/internal/repository"
	"github.com/sirupsen/logrus"
)

// OutboxConfig outbox 通知配置
type OutboxConfig struct {
	WebhookURL string
	Workers    int
	QueueSize  int
	Timeout    time.Duration
}

type delivery struct {
	eventID string
	evt     Event
	payload []byte
}

// OutboxNotifier 先将事件写入 events 表,再由 worker 异步推送到 Webhook,只尝试一次
type OutboxNotifier struct {
	eventRepo  repository.EventRepository
	webhookURL string
	httpClient *http.Client
	logger     *logrus.Logger
	queue      chan delivery
	workers    int
	wg         sync.WaitGroup
	stopOnce   sync.Once
	stop       chan struct{}
}

// NewOutboxNotifier 创建 outbox 通知器并启动 worker
func NewOutboxNotifier(eventRepo repository.EventRepository, cfg OutboxConfig, logger *logrus.Logger) *OutboxNotifier {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	n := &OutboxNotifier{
		eventRepo:  eventRepo,
		webhookURL: cfg.WebhookURL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
		queue:      make(chan delivery, cfg.QueueSize),
		workers:    cfg.Workers,
		stop:       make(chan struct{}),
	}

	// 启动 worker goroutines
	for i := 0; i < cfg.Workers; i++ {
		n.wg.Add(1)
		go n.worker()
	}

	return n
}

// Notify 持久化事件并入队,队列满时丢弃推送但事件已落库
func (n *OutboxNotifier) Notify(ctx context.Context, evt Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	now := time.Now()
	status := model.EventStatusPending
	if n.webhookURL == "" {
		status = model.EventStatusSkipped
	}
	em := &model.EventModel{
		ID:        uuid.New().String(),
		ResultID:  evt.ResultID,
		StudentID: evt.StudentID,
		Type:      string(evt.Type),
		Data:      payload,
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := n.eventRepo.Save(ctx, em); err != nil {
		return fmt.Errorf("failed to save event: %w", err)
	}

	if status == model.EventStatusSkipped {
		metrics.RecordNotification(string(evt.Type), "skipped")
		return nil
	}

	select {
	case n.queue <- delivery{eventID: em.ID, evt: evt, payload: payload}:
	case <-n.stop:
		return fmt.Errorf("notifier stopped")
	default:
		// 队列满时不阻塞调用方,事件保持 pending
		metrics.RecordNotification(string(evt.Type), "dropped")
		n.logger.WithFields(logrus.Fields{
			"event_id":  em.ID,
			"type":      evt.Type,
			"result_id": evt.ResultID,
		}).Warn("event queue full, webhook delivery skipped")
	}
	return nil
}

// worker 事件推送 worker
func (n *OutboxNotifier) worker() {
	defer n.wg.Done()
	for {
		select {
		case d := <-n.queue:
			n.deliver(d)
		case <-n.stop:
			// 处理完已入队的事件再退出
			for {
				select {
				case d := <-n.queue:
					n.deliver(d)
				default:
					return
				}
			}
		}
	}
}

// deliver 推送一次,结果记录到事件表
func (n *OutboxNotifier) deliver(d delivery) {
	ctx := context.Background()
	status, outcome, lastErr := model.EventStatusDelivered, "delivered", ""

	if err := n.sendWebhookRequest(ctx, d.payload); err != nil {
		status, outcome, lastErr = model.EventStatusFailed, "failed", err.Error()
		n.logger.WithFields(logrus.Fields{
			"event_id":  d.eventID,
			"type":      d.evt.Type,
			"result_id": d.evt.ResultID,
		}).WithError(err).Warn("webhook delivery failed")
	}
	metrics.RecordNotification(string(d.evt.Type), outcome)

	if err := n.eventRepo.UpdateStatus(ctx, d.eventID, status, lastErr); err != nil {
		n.logger.WithError(err).WithField("event_id", d.eventID).Error("failed to update event status")
	}
}

// sendWebhookRequest 发送 Webhook 请求
func (n *OutboxNotifier) sendWebhookRequest(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status code: %d", resp.StatusCode)
	}
	return nil
}

// Stop 停止 worker,等待已入队事件处理完毕
func (n *OutboxNotifier) Stop() {
	n.stopOnce.Do(func() {
		close(n.stop)
	})
	n.wg.Wait()
}
