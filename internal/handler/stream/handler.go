package stream

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zhouzirui/aichat/internal/handler/httperr"
	chatService "github.com/zhouzirui/aichat/internal/service/chat"
	"github.com/zhouzirui/aichat/pkg/utils"
)

// Handler manages streaming AI responses via Server-Sent Events
type Handler struct {
	controller *chatService.Controller
	logger     *zap.Logger
}

// New creates a new stream handler
func New(controller *chatService.Controller, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{controller: controller, logger: logger.Named("handler.stream")}
}

// RegisterRoutes registers the chat streaming routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/chat", h.handleChat)
	r.Post("/chat/cancel", h.handleCancel)
}

// endFrame closes every event stream.
type endFrame struct {
	Event     string `json:"event"`
	SessionID string `json:"sessionId"`
}

// handleChat submits one user message and relays the turn's events as SSE
// frames. Rejections that happen before the turn starts are plain JSON errors.
func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Message string `json:"message"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	started := false
	clientGone := false
	listener := func(ev chatService.Event) {
		if clientGone {
			return
		}
		if !started {
			utils.SetupSSEHeaders(w)
			w.WriteHeader(http.StatusOK)
			started = true
		}
		if err := utils.SendSSEChunk(w, flusher, ev); err != nil {
			h.logger.Info("client went away, cancelling turn", zap.Error(err))
			clientGone = true
			h.controller.Cancel()
		}
	}

	err := h.controller.Submit(r.Context(), payload.Message, listener)
	if !started {
		if err != nil {
			httperr.Respond(w, err)
			return
		}
		utils.SetupSSEHeaders(w)
		w.WriteHeader(http.StatusOK)
	}
	if err != nil && !errors.Is(err, chatService.ErrBusy) {
		h.logger.Warn("chat turn failed", zap.Error(err))
	}
	if clientGone {
		return
	}
	_ = utils.SendSSEChunk(w, flusher, endFrame{Event: "end", SessionID: h.controller.ActiveID()})
}

// handleCancel stops the reply in progress.
func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]bool{"cancelled": h.controller.Cancel()})
}
