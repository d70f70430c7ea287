package notify_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/mautops/results-gin/internal/logging"
	"github.com/mautops/results-gin/internal/model"
	"github.com/mautops/results-gin/internal/notify"
	"github.com/mautops/results-gin/internal/repository"
	"github.com/mautops/results-gin/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func publishedEvent(resultID string) notify.Event {
	return notify.Event{
		Type:           notify.EventResultPublished,
		ResultID:       resultID,
		StudentID:      "s-001",
		UnitCode:       "CS101",
		AssessmentType: "exam",
		AcademicYear:   "2024/2025",
		Semester:       1,
		Status:         "published",
		Grade:          "A",
		Percentage:     75,
		Actor:          testutil.HODCS,
		Version:        5,
		OccurredAt:     time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestOutboxNotifier_DeliversWebhook(t *testing.T) {
	var mu sync.Mutex
	var received []notify.Event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		var evt notify.Event
		assert.NoError(t, json.Unmarshal(body, &evt))
		mu.Lock()
		received = append(received, evt)
		mu.Unlock()
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	repo := repository.NewEventRepository(testutil.NewDB(t))
	n := notify.NewOutboxNotifier(repo, notify.OutboxConfig{WebhookURL: srv.URL, Workers: 2}, logging.Discard())

	require.NoError(t, n.Notify(context.Background(), publishedEvent("r-1")))
	n.Stop()

	mu.Lock()
	require.Len(t, received, 1)
	assert.Equal(t, "r-1", received[0].ResultID)
	assert.Equal(t, "A", received[0].Grade)
	mu.Unlock()

	events, err := repo.FindByResultID(context.Background(), "r-1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, model.EventStatusDelivered, events[0].Status)
	assert.Equal(t, "s-001", events[0].StudentID)
	assert.Empty(t, events[0].LastError)
}

func TestOutboxNotifier_FailedDeliveryIsRecorded(t *testing.T) {
	var calls int
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		mu.Unlock()
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	repo := repository.NewEventRepository(testutil.NewDB(t))
	n := notify.NewOutboxNotifier(repo, notify.OutboxConfig{WebhookURL: srv.URL, Workers: 1}, logging.Discard())

	require.NoError(t, n.Notify(context.Background(), publishedEvent("r-2")))
	n.Stop()

	// 只尝试一次
	mu.Lock()
	assert.Equal(t, 1, calls)
	mu.Unlock()

	events, err := repo.FindByResultID(context.Background(), "r-2")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, model.EventStatusFailed, events[0].Status)
	assert.Contains(t, events[0].LastError, "500")
}

func TestOutboxNotifier_NoWebhookSkips(t *testing.T) {
	repo := repository.NewEventRepository(testutil.NewDB(t))
	n := notify.NewOutboxNotifier(repo, notify.OutboxConfig{}, logging.Discard())
	defer n.Stop()

	require.NoError(t, n.Notify(context.Background(), publishedEvent("r-3")))

	events, err := repo.FindByResultID(context.Background(), "r-3")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, model.EventStatusSkipped, events[0].Status)

	var stored notify.Event
	require.NoError(t, json.Unmarshal(events[0].Data, &stored))
	assert.Equal(t, notify.EventResultPublished, stored.Type)

	pending, err := repo.FindPending(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestOutboxNotifier_AfterStop(t *testing.T) {
	repo := repository.NewEventRepository(testutil.NewDB(t))
	n := notify.NewOutboxNotifier(repo, notify.OutboxConfig{WebhookURL: "http://127.0.0.1:1", QueueSize: 1}, logging.Discard())
	n.Stop()
	n.Stop()

	// 事件已落库,推送队列已关闭
	err := n.Notify(context.Background(), publishedEvent("r-4"))
	if err != nil {
		assert.Contains(t, err.Error(), "stopped")
	}
	events, ferr := repo.FindByResultID(context.Background(), "r-4")
	require.NoError(t, ferr)
	assert.Len(t, events, 1)
}

type fakeBroadcaster struct {
	mu       sync.Mutex
	messages map[string][][]byte
}

func (b *fakeBroadcaster) BroadcastToStudent(studentID string, message []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.messages == nil {
		b.messages = make(map[string][][]byte)
	}
	b.messages[studentID] = append(b.messages[studentID], message)
}

func TestHubNotifier(t *testing.T) {
	hub := &fakeBroadcaster{}
	n := notify.NewHubNotifier(hub)
	ctx := context.Background()

	require.NoError(t, n.Notify(ctx, publishedEvent("r-1")))

	rejected := publishedEvent("r-2")
	rejected.Type = notify.EventResultRejected
	rejected.Reason = "marks exceed moderation"
	require.NoError(t, n.Notify(ctx, rejected))

	require.Len(t, hub.messages["s-001"], 1)
	var msg struct {
		Type string       `json:"type"`
		Data notify.Event `json:"data"`
	}
	require.NoError(t, json.Unmarshal(hub.messages["s-001"][0], &msg))
	assert.Equal(t, "result_published", msg.Type)
	assert.Equal(t, "r-1", msg.Data.ResultID)
}

type failingNotifier struct{ err error }

func (f failingNotifier) Notify(context.Context, notify.Event) error { return f.err }

func TestMulti(t *testing.T) {
	rec := &testutil.RecordingNotifier{}
	down := errors.New("smtp down")
	m := notify.Multi{failingNotifier{err: down}, nil, rec, notify.Nop{}}

	err := m.Notify(context.Background(), publishedEvent("r-1"))
	require.Error(t, err)
	assert.ErrorIs(t, err, down)
	// 前一个失败不影响后续接收方
	require.Len(t, rec.Events(), 1)

	assert.NoError(t, notify.Multi{notify.Nop{}, rec}.Notify(context.Background(), publishedEvent("r-2")))
}
