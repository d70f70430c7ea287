package websocket

import (
	"sync"
)

// Hub 管理按学生订阅的 WebSocket 连接
type Hub struct {
	// studentID -> 订阅该学生成绩的客户端
	subscribers map[string]map[*Client]bool

	// 注册新客户端
	Register chan *Client

	// 注销客户端
	Unregister chan *Client

	done chan struct{}
	mu   sync.RWMutex
}

// NewHub 创建新的 Hub
func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[string]map[*Client]bool),
		Register:    make(chan *Client),
		Unregister:  make(chan *Client),
		done:        make(chan struct{}),
	}
}

// Run 处理注册和注销,直到 Stop 被调用
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			h.mu.Lock()
			subs := h.subscribers[client.StudentID]
			if subs == nil {
				subs = make(map[*Client]bool)
				h.subscribers[client.StudentID] = subs
			}
			subs[client] = true
			h.mu.Unlock()

		case client := <-h.Unregister:
			h.mu.Lock()
			h.remove(client)
			h.mu.Unlock()

		case <-h.done:
			h.mu.Lock()
			for _, subs := range h.subscribers {
				for client := range subs {
					h.remove(client)
				}
			}
			h.mu.Unlock()
			return
		}
	}
}

// Stop 关闭所有连接并退出 Run
func (h *Hub) Stop() {
	select {
	case <-h.done:
	default:
		close(h.done)
	}
}

// remove 调用方需持有写锁
func (h *Hub) remove(client *Client) {
	subs, ok := h.subscribers[client.StudentID]
	if !ok || !subs[client] {
		return
	}
	delete(subs, client)
	close(client.Send)
	if len(subs) == 0 {
		delete(h.subscribers, client.StudentID)
	}
}

// BroadcastToStudent 向订阅该学生的所有连接推送消息,发送队列已满的连接会被断开
func (h *Hub) BroadcastToStudent(studentID string, message []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.subscribers[studentID] {
		select {
		case client.Send <- message:
		default:
			h.remove(client)
		}
	}
}

// HasClient 检查客户端是否存在
func (h *Hub) HasClient(clientID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, subs := range h.subscribers {
		for client := range subs {
			if client.ID == clientID {
				return true
			}
		}
	}
	return false
}

// GetClientCount 获取客户端数量
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for _, subs := range h.subscribers {
		n += len(subs)
	}
	return n
}
