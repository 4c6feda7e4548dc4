package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	chatService "github.com/zhouzirui/aichat/internal/service/chat"
)

const (
	readTimeout  = 60 * time.Second
	writeTimeout = 10 * time.Second
	pingInterval = 54 * time.Second
)

// Handler WebSocket对话处理器
type Handler struct {
	controller   *chatService.Controller
	logger       *zap.Logger
	upgrader     websocket.Upgrader
	pingInterval time.Duration
}

// New 创建WebSocket处理器
func New(controller *chatService.Controller, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		controller: controller,
		logger:     logger.Named("handler.ws"),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		pingInterval: pingInterval,
	}
}

// RegisterRoutes 注册WebSocket路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws", h.handleWebSocket)
}

type inboundMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// TextMessage 文本消息
type TextMessage struct {
	Text string `json:"text"`
}

// PersonaMessage 人设修改消息
type PersonaMessage struct {
	Name   string `json:"name"`
	Prompt string `json:"prompt"`
}

type outgoingMessage struct {
	Type      string `json:"type"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// conn serialises writes; gorilla allows one concurrent writer.
type conn struct {
	ws     *websocket.Conn
	id     string
	logger *zap.Logger
	mu     sync.Mutex
}

func (c *conn) send(msgType string, data any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	err := c.ws.WriteJSON(outgoingMessage{Type: msgType, Data: data, Timestamp: time.Now().Unix()})
	if err != nil {
		c.logger.Debug("write failed", zap.String("type", msgType), zap.Error(err))
	}
	return err
}

func (c *conn) sendError(kind chatService.ErrorKind, message string) {
	_ = c.send("error", map[string]string{"kind": string(kind), "message": message})
}

func (c *conn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
}

// handleWebSocket 处理WebSocket连接
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("upgrade failed", zap.Error(err))
		return
	}
	defer ws.Close()

	c := &conn{ws: ws, id: uuid.NewString()}
	c.logger = h.logger.With(zap.String("conn", c.id))
	c.logger.Info("connection opened")

	// Pending turns are cancelled before they are waited for.
	var turns sync.WaitGroup
	defer turns.Wait()
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	_ = ws.SetReadDeadline(time.Now().Add(readTimeout))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(readTimeout))
	})

	go h.pingLoop(ctx, c)

	record := h.controller.Snapshot()
	_ = c.send("connected", map[string]any{
		"connectionId": c.id,
		"sessionId":    record.Identifier,
		"personaName":  record.PersonaName,
	})

	for {
		var msg inboundMessage
		if err := ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("read error", zap.Error(err))
			}
			c.logger.Info("connection closed")
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(readTimeout))

		h.handleMessage(ctx, c, &msg, &turns)
	}
}

func (h *Handler) handleMessage(ctx context.Context, c *conn, msg *inboundMessage, turns *sync.WaitGroup) {
	switch msg.Type {
	case "message":
		var text TextMessage
		if err := json.Unmarshal(msg.Data, &text); err != nil {
			c.sendError(chatService.KindInvalidMessage, "invalid message payload")
			return
		}
		h.startTurn(ctx, c, text.Text, turns)
	case "cancel":
		_ = c.send("cancelled", map[string]bool{"cancelled": h.controller.Cancel()})
	case "persona":
		var p PersonaMessage
		if err := json.Unmarshal(msg.Data, &p); err != nil {
			c.sendError(chatService.KindInvalidMessage, "invalid persona payload")
			return
		}
		if err := h.controller.SetPersona(p.Name, p.Prompt); err != nil {
			c.sendError(chatService.ClassifyError(err), err.Error())
			return
		}
		_ = c.send("session", h.controller.Snapshot())
	default:
		c.sendError(chatService.KindInvalidMessage, "unsupported message type: "+msg.Type)
	}
}

// startTurn runs Submit off the read loop so a cancel message can arrive
// while the reply streams.
func (h *Handler) startTurn(ctx context.Context, c *conn, text string, turns *sync.WaitGroup) {
	if h.controller.Busy() {
		c.sendError(chatService.KindBusy, chatService.ErrBusy.Error())
		return
	}

	turns.Add(1)
	go func() {
		defer turns.Done()
		err := h.controller.Submit(ctx, text, func(ev chatService.Event) {
			_ = c.send("event", ev)
		})
		switch {
		case errors.Is(err, chatService.ErrBusy), errors.Is(err, chatService.ErrEmptyInput):
			c.sendError(chatService.ClassifyError(err), err.Error())
		case err != nil:
			c.logger.Warn("turn failed", zap.Error(err))
		}
	}()
}

// pingLoop 定期发送ping消息
func (h *Handler) pingLoop(ctx context.Context, c *conn) {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.ping(); err != nil {
				return
			}
		}
	}
}
