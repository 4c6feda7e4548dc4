package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/zhouzirui/aichat/internal/handler/persona"
	"github.com/zhouzirui/aichat/internal/handler/session"
	"github.com/zhouzirui/aichat/internal/handler/stream"
	"github.com/zhouzirui/aichat/internal/handler/ws"
	middlewarePkg "github.com/zhouzirui/aichat/internal/middleware"
	personaModel "github.com/zhouzirui/aichat/internal/model/persona"
	chatService "github.com/zhouzirui/aichat/internal/service/chat"
	"github.com/zhouzirui/aichat/pkg/utils"
)

// NewRouter wires HTTP routes to core services.
func NewRouter(personas personaModel.Store, controller *chatService.Controller, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(api chi.Router) {
		persona.New(personas).RegisterRoutes(api)
		session.New(controller, personas, logger).RegisterRoutes(api)
		stream.New(controller, logger).RegisterRoutes(api)
		ws.New(controller, logger).RegisterRoutes(api)
	})

	return r
}
