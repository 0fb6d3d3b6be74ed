package realtime

import (
	"encoding/json"
	"sync"
)

// 扫描生命周期事件类型。
const (
	EventScanStarted  = "scan_started"
	EventScanFinished = "scan_finished"
)

// Event 描述 /api/events 推送的消息载荷。
type Event struct {
	Type    string      `json:"type"`
	ScanID  string      `json:"scanId,omitempty"`
	Host    string      `json:"host,omitempty"`
	Payload interface{} `json:"payload,omitempty"`
}

// Broker 负责向实时订阅者（SSE 客户端）分发事件。
type Broker struct {
	mu      sync.RWMutex
	clients map[chan []byte]struct{}
	closed  bool
}

// NewBroker 创建一个新的 Broker 实例。
func NewBroker() *Broker {
	return &Broker{clients: make(map[chan []byte]struct{})}
}

// Subscribe 注册客户端通道并返回清理函数。清理函数可重复调用。
func (b *Broker) Subscribe() (<-chan []byte, func()) {
	ch := make(chan []byte, 8)
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	b.clients[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			b.mu.Lock()
			if _, ok := b.clients[ch]; ok {
				delete(b.clients, ch)
				close(ch)
			}
			b.mu.Unlock()
		})
	}
	return ch, cleanup
}

// Publish 将事件广播给所有订阅者。
func (b *Broker) Publish(evt Event) {
	data, err := json.Marshal(evt)
	if err != nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.clients {
		select {
		case ch <- data:
		default:
			// 如果订阅者处理过慢则丢弃消息，避免阻塞。
		}
	}
}

// Close 关闭所有订阅通道，之后的订阅立即结束。
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for ch := range b.clients {
		delete(b.clients, ch)
		close(ch)
	}
}

// Subscribers 返回当前订阅者数量。
func (b *Broker) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}
