// Package livefeed 将追加的交互事件实时广播给WebSocket订阅端，
// 供仪表板或调试工具观察会话延迟变化。
package livefeed

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"RealtimeVoiceKB/internal/latency"
)

// EventMessage 推送给订阅端的单条事件
type EventMessage struct {
	SessionID           string                   `json:"session_id"`
	Event               latency.InteractionEvent `json:"event"`
	TotalInteractions   int64                    `json:"total_interactions"`
	AverageResponseTime int64                    `json:"average_response_time"`
	Timestamp           time.Time                `json:"timestamp"`
}

// subscriber 单个订阅连接
type subscriber struct {
	id   string
	conn *websocket.Conn
}

// Feed WebSocket事件广播器
type Feed struct {
	upgrader websocket.Upgrader

	clients    map[string]*subscriber
	broadcast  chan EventMessage
	register   chan *subscriber
	unregister chan string
	done       chan struct{}

	mu      sync.RWMutex
	stopped sync.Once
}

// NewFeed 创建事件广播器，bufferSize为广播通道容量
func NewFeed(bufferSize int) *Feed {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &Feed{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients:    make(map[string]*subscriber),
		broadcast:  make(chan EventMessage, bufferSize),
		register:   make(chan *subscriber),
		unregister: make(chan string),
		done:       make(chan struct{}),
	}
}

// Run 广播循环，应在独立goroutine中运行
func (f *Feed) Run() {
	for {
		select {
		case <-f.done:
			f.mu.Lock()
			for id, client := range f.clients {
				client.conn.Close()
				delete(f.clients, id)
			}
			f.mu.Unlock()
			return

		case client := <-f.register:
			f.mu.Lock()
			f.clients[client.id] = client
			count := len(f.clients)
			f.mu.Unlock()
			log.Printf("📡 实时推送订阅端已连接 (%s)，当前连接数: %d", client.id, count)

		case id := <-f.unregister:
			f.mu.Lock()
			if client, ok := f.clients[id]; ok {
				client.conn.Close()
				delete(f.clients, id)
			}
			count := len(f.clients)
			f.mu.Unlock()
			log.Printf("📡 实时推送订阅端已断开 (%s)，当前连接数: %d", id, count)

		case message := <-f.broadcast:
			f.mu.RLock()
			var dead []string
			for id, client := range f.clients {
				if err := client.conn.WriteJSON(message); err != nil {
					dead = append(dead, id)
				}
			}
			f.mu.RUnlock()

			if len(dead) > 0 {
				f.mu.Lock()
				for _, id := range dead {
					if client, ok := f.clients[id]; ok {
						client.conn.Close()
						delete(f.clients, id)
					}
				}
				f.mu.Unlock()
			}
		}
	}
}

// Stop 停止广播并断开所有订阅端
func (f *Feed) Stop() {
	f.stopped.Do(func() {
		close(f.done)
	})
}

// Publish 投递一条事件，通道满时丢弃避免阻塞追加路径
func (f *Feed) Publish(message EventMessage) {
	select {
	case f.broadcast <- message:
	default:
	}
}

// ClientCount 当前订阅端数量
func (f *Feed) ClientCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.clients)
}

// HandleWS 升级HTTP连接为WebSocket订阅
func (f *Feed) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket升级失败: %v", err)
		return
	}

	client := &subscriber{
		id:   uuid.NewString(),
		conn: conn,
	}

	select {
	case f.register <- client:
	case <-f.done:
		conn.Close()
		return
	}

	// 读循环只为感知断开，订阅端不发送业务消息
	go func() {
		defer func() {
			select {
			case f.unregister <- client.id:
			case <-f.done:
			}
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
