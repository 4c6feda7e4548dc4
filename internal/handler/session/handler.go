package session

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zhouzirui/aichat/internal/handler/httperr"
	"github.com/zhouzirui/aichat/internal/model/chat"
	"github.com/zhouzirui/aichat/internal/model/persona"
	chatService "github.com/zhouzirui/aichat/internal/service/chat"
	"github.com/zhouzirui/aichat/pkg/utils"
)

// Handler 会话管理的HTTP处理器
type Handler struct {
	controller *chatService.Controller
	personas   persona.Store
	logger     *zap.Logger
}

// New 创建会话处理器
func New(controller *chatService.Controller, personas persona.Store, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		controller: controller,
		personas:   personas,
		logger:     logger.Named("handler.session"),
	}
}

// RegisterRoutes 注册会话相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/session", h.handleGetSession)
	r.Put("/session/persona", h.handleSetPersona)
	r.Get("/sessions", h.handleListSessions)
	r.Post("/sessions", h.handleNewSession)
	r.Post("/sessions/{sessionID}/load", h.handleLoadSession)
	r.Delete("/sessions/{sessionID}", h.handleDeleteSession)
}

// sessionView 是活动会话的响应体
type sessionView struct {
	chat.Record
	State string `json:"state"`
}

func (h *Handler) view() sessionView {
	return sessionView{Record: h.controller.Snapshot(), State: h.controller.State().String()}
}

// handleGetSession 返回当前活动会话
func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.view())
}

// handleSetPersona 修改当前会话的人设；presetId 可引用预设
func (h *Handler) handleSetPersona(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		PresetID string `json:"presetId"`
		Name     string `json:"name"`
		Prompt   string `json:"prompt"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	name, prompt := payload.Name, payload.Prompt
	if payload.PresetID != "" {
		preset, ok := h.personas.FindByID(payload.PresetID)
		if !ok {
			utils.RespondError(w, http.StatusBadRequest, "persona not found")
			return
		}
		if strings.TrimSpace(name) == "" {
			name = preset.Name
		}
		if strings.TrimSpace(prompt) == "" {
			prompt = preset.Prompt
		}
	}

	if err := h.controller.SetPersona(name, prompt); err != nil {
		h.logger.Warn("set persona failed", zap.Error(err))
		httperr.Respond(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, h.view())
}

// handleListSessions 列出已保存的会话，最近的在前
func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	ids, err := h.controller.ListSessions()
	if err != nil {
		h.logger.Error("list sessions failed", zap.Error(err))
		httperr.Respond(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"sessions": ids,
		"active":   h.controller.ActiveID(),
	})
}

// handleNewSession 保存当前会话并开始新会话
func (h *Handler) handleNewSession(w http.ResponseWriter, r *http.Request) {
	if err := h.controller.NewSession(); err != nil {
		h.logger.Warn("new session failed", zap.Error(err))
		httperr.Respond(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusCreated, h.view())
}

// handleLoadSession 加载已保存的会话
func (h *Handler) handleLoadSession(w http.ResponseWriter, r *http.Request) {
	if err := h.controller.LoadSession(chi.URLParam(r, "sessionID")); err != nil {
		httperr.Respond(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, h.view())
}

// handleDeleteSession 删除会话
func (h *Handler) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.controller.DeleteSession(chi.URLParam(r, "sessionID")); err != nil {
		h.logger.Warn("delete session failed", zap.Error(err))
		httperr.Respond(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
