// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/jiyuchen1/AiHistory/internal/service"
	"github.com/jiyuchen1/AiHistory/pkg/log"
)

var (
	upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true // 本地单用户工具，允许所有来源
		},
	}
)

const (
	clientBuffer = 16
	writeWait    = 5 * time.Second
)

// NotificationRecorder 接收每一条广播出去的提示。
type NotificationRecorder interface {
	RecordNotification(level service.Level)
}

// NotificationHub 把存储操作的结果推送给所有已连接的 WebSocket 客户端，
// 前端据此弹出自动消失的提示并重新渲染记录列表。
type NotificationHub struct {
	mu       sync.Mutex
	clients  map[*websocket.Conn]chan []byte
	recorder NotificationRecorder
}

// NewNotificationHub 创建一个新的 NotificationHub。recorder 可以为 nil。
func NewNotificationHub(recorder NotificationRecorder) *NotificationHub {
	return &NotificationHub{
		clients:  make(map[*websocket.Conn]chan []byte),
		recorder: recorder,
	}
}

// Notify 广播一条提示。
func (h *NotificationHub) Notify(level service.Level, message string) {
	if h.recorder != nil {
		h.recorder.RecordNotification(level)
	}
	h.broadcast(map[string]interface{}{
		"type":      "notification",
		"level":     level,
		"message":   message,
		"timestamp": time.Now().UnixMilli(),
	})
}

// RecordsChanged 通知客户端记录序列已变化，需要重新拉取并渲染。
func (h *NotificationHub) RecordsChanged(count int) {
	h.broadcast(map[string]interface{}{
		"type":      "records",
		"count":     count,
		"timestamp": time.Now().UnixMilli(),
	})
}

// ClientCount 返回当前连接数。
func (h *NotificationHub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *NotificationHub) broadcast(msg map[string]interface{}) {
	b, err := json.Marshal(msg)
	if err != nil {
		log.Error("序列化通知失败", err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn, ch := range h.clients {
		select {
		case ch <- b:
		default:
			// 客户端太慢，丢弃这一条，提示本来就是易逝的
			log.Warnf("通知队列已满，丢弃一条消息: %s", conn.RemoteAddr())
		}
	}
}

// Serve 把请求升级为 WebSocket 并保持连接，直到客户端断开。
func (h *NotificationHub) Serve(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}

	ch := make(chan []byte, clientBuffer)
	h.mu.Lock()
	h.clients[conn] = ch
	h.mu.Unlock()
	log.Infof("通知连接已建立: %s", conn.RemoteAddr())

	done := make(chan struct{})
	go func() {
		defer close(done)
		for b := range ch {
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
				log.Warnf("写入通知失败: %v", err)
				// 关闭连接以唤醒下面的读循环
				conn.Close()
				return
			}
		}
	}()

	// 客户端不会发送业务消息，读循环只用于感知断开
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.mu.Lock()
	delete(h.clients, conn)
	h.mu.Unlock()
	close(ch)
	<-done
	conn.Close()
	log.Infof("通知连接已关闭: %s", conn.RemoteAddr())
}
