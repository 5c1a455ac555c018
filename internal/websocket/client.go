package websocket

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// 错误定义
var (
	ErrSendBufferFull = errors.New("发送缓冲区已满")
	ErrClientClosed   = errors.New("客户端已关闭")
)

// Client WebSocket客户端
type Client struct {
	ID   string          // 客户端ID
	Hub  *Hub            // Hub引用
	Conn *websocket.Conn // WebSocket连接
	Send chan []byte     // 发送通道

	mu     sync.Mutex
	closed bool
	subs   map[string]func() // 路径 -> 取消订阅
}

// NewClient 创建新客户端
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		ID:   uuid.New().String(),
		Hub:  hub,
		Conn: conn,
		Send: make(chan []byte, 256),
		subs: make(map[string]func()),
	}
}

// ReadPump 读取消息
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	cfg := c.Hub.cfg
	c.Conn.SetReadLimit(cfg.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(cfg.PongTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(cfg.PongTimeout))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.logger.Error("WebSocket读取错误",
					zap.String("client_id", c.ID),
					zap.Error(err))
			}
			break
		}

		// 处理接收到的消息
		c.handleMessage(message)
	}
}

// WritePump 写入消息
func (c *Client) WritePump() {
	cfg := c.Hub.cfg
	ticker := time.NewTicker(cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
			if !ok {
				// Hub关闭了通道
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.Hub.logger.Debug("WebSocket写入失败",
					zap.String("client_id", c.ID),
					zap.Error(err))
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage 处理接收到的消息
func (c *Client) handleMessage(data []byte) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		c.Hub.logger.Warn("解析WebSocket消息失败",
			zap.String("client_id", c.ID),
			zap.Error(err))
		c.sendError("消息格式错误")
		return
	}

	switch msg.Type {
	case MessageTypeSubscribe:
		c.subscribe(msg.Path)

	case MessageTypeUnsubscribe:
		c.unsubscribe(msg.Path)

	case MessageTypePing:
		c.enqueue(&Message{Type: MessageTypePong, Timestamp: time.Now().Unix()})

	case MessageTypePong:
		// 客户端响应ping
		c.Hub.logger.Debug("收到pong", zap.String("client_id", c.ID))

	case "":
		c.sendError("消息类型不能为空")

	default:
		// 不支持的消息类型
		c.Hub.logger.Warn("收到不支持的消息类型",
			zap.String("client_id", c.ID),
			zap.String("type", msg.Type))
		c.sendError("不支持的消息类型: " + msg.Type)
	}
}

// subscribe 订阅状态路径，并立即推送当前值
func (c *Client) subscribe(path string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if _, exists := c.subs[path]; exists {
		c.mu.Unlock()
		c.pushState(path, c.Hub.store.Get(path))
		return
	}
	c.subs[path] = c.Hub.store.Subscribe(path, func(value interface{}) {
		c.pushState(path, value)
	})
	c.mu.Unlock()

	c.Hub.logger.Debug("客户端订阅",
		zap.String("client_id", c.ID),
		zap.String("path", path))
	c.pushState(path, c.Hub.store.Get(path))
}

// unsubscribe 取消订阅
func (c *Client) unsubscribe(path string) {
	c.mu.Lock()
	cancel, exists := c.subs[path]
	delete(c.subs, path)
	c.mu.Unlock()

	if exists {
		cancel()
	}
}

// pushState 推送状态帧
func (c *Client) pushState(path string, value interface{}) {
	data, err := json.Marshal(value)
	if err != nil {
		c.Hub.logger.Error("序列化状态失败",
			zap.String("path", path),
			zap.Error(err))
		return
	}
	c.enqueue(&Message{
		Type:      MessageTypeState,
		Path:      path,
		Data:      data,
		Timestamp: time.Now().Unix(),
	})
}

// sendError 发送错误消息
func (c *Client) sendError(message string) {
	data, _ := json.Marshal(map[string]string{"error": message})
	c.enqueue(&Message{
		Type:      MessageTypeError,
		Data:      data,
		Timestamp: time.Now().Unix(),
	})
}

// enqueue 非阻塞写入发送队列
func (c *Client) enqueue(message *Message) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClientClosed
	}

	select {
	case c.Send <- data:
		return nil
	default:
		c.Hub.logger.Warn("客户端发送缓冲区满", zap.String("client_id", c.ID))
		return ErrSendBufferFull
	}
}

// shutdown 取消全部订阅并关闭发送通道
func (c *Client) shutdown() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	subs := c.subs
	c.subs = nil
	close(c.Send)
	c.mu.Unlock()

	for _, cancel := range subs {
		cancel()
	}
}

// Subscriptions 当前订阅的路径数
func (c *Client) Subscriptions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}
