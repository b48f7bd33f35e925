package services

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// 事件类型
const (
	EventMessageAppended = "message-appended"
	EventAnalysisUpdated = "analysis-updated"
)

// TicketEvent 工单事件，推送给 WebSocket 客户端与进程内订阅者
type TicketEvent struct {
	Type       string      `json:"type"`
	TicketID   string      `json:"ticket_id"`
	SenderRole string      `json:"sender_role,omitempty"`
	MessageID  string      `json:"message_id,omitempty"`
	Data       interface{} `json:"data,omitempty"`
	Timestamp  time.Time   `json:"timestamp"`
}

// HubClient 已连接的 WebSocket 客户端。TicketID 为空表示订阅全部工单。
type HubClient struct {
	ID       string
	TicketID string
	Conn     *websocket.Conn
	Send     chan TicketEvent
	Hub      *EventHub
}

// EventHub 工单事件集线器：向坐席端 WebSocket 扇出，
// 同时为 ActivityWatcher 提供进程内订阅通道。
type EventHub struct {
	clients    map[string]*HubClient
	broadcast  chan TicketEvent
	register   chan *HubClient
	unregister chan *HubClient

	subMutex    sync.RWMutex
	subscribers []chan TicketEvent

	mutex sync.RWMutex
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 生产环境需要验证源
	},
}

func NewEventHub() *EventHub {
	return &EventHub{
		clients:    make(map[string]*HubClient),
		broadcast:  make(chan TicketEvent, 64),
		register:   make(chan *HubClient),
		unregister: make(chan *HubClient),
	}
}

func (h *EventHub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client.ID] = client
			h.mutex.Unlock()
			logrus.Infof("Client %s connected", client.ID)

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client.ID]; ok {
				delete(h.clients, client.ID)
				close(client.Send)
				logrus.Infof("Client %s disconnected", client.ID)
			}
			h.mutex.Unlock()

		case event := <-h.broadcast:
			h.mutex.Lock()
			for _, client := range h.clients {
				if client.TicketID != "" && client.TicketID != event.TicketID {
					continue
				}
				select {
				case client.Send <- event:
				default:
					close(client.Send)
					delete(h.clients, client.ID)
				}
			}
			h.mutex.Unlock()

			h.subMutex.RLock()
			for _, sub := range h.subscribers {
				select {
				case sub <- event:
				default:
					// 订阅者跟不上时丢弃，集线器绝不阻塞
				}
			}
			h.subMutex.RUnlock()
		}
	}
}

// Publish 发布一个工单事件
func (h *EventHub) Publish(event TicketEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	h.broadcast <- event
}

// Subscribe 返回进程内订阅通道
func (h *EventHub) Subscribe() <-chan TicketEvent {
	ch := make(chan TicketEvent, 256)
	h.subMutex.Lock()
	h.subscribers = append(h.subscribers, ch)
	h.subMutex.Unlock()
	return ch
}

// HandleWebSocket 升级连接并注册客户端，?ticket_id= 可选过滤
func (h *EventHub) HandleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logrus.Error("WebSocket upgrade failed:", err)
		return
	}

	client := &HubClient{
		ID:       fmt.Sprintf("client_%d", time.Now().UnixNano()),
		TicketID: c.Query("ticket_id"),
		Conn:     conn,
		Send:     make(chan TicketEvent, 256),
		Hub:      h,
	}

	h.register <- client

	go client.writePump()
	go client.readPump()
}

// readPump 只负责保活与关闭检测，客户端是纯观察者
func (c *HubClient) readPump() {
	defer func() {
		c.Hub.unregister <- c
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(512)
	c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logrus.Errorf("WebSocket error: %v", err)
			}
			break
		}
	}
}

func (c *HubClient) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case event, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteJSON(event); err != nil {
				logrus.Error("WriteJSON error:", err)
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// GetClientCount 当前连接数
func (h *EventHub) GetClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}
