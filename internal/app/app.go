// Package app assembles the chat core from configuration.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/zhouzirui/aichat/internal/config"
	"github.com/zhouzirui/aichat/internal/model/persona"
	"github.com/zhouzirui/aichat/internal/service/ai"
	"github.com/zhouzirui/aichat/internal/service/chat"
	"github.com/zhouzirui/aichat/internal/service/session"
)

// App is the wired core shared by the server and the terminal client.
type App struct {
	Personas   *persona.MemoryStore
	Store      *session.FileStore
	Controller *chat.Controller
}

// New builds the persona catalogue, the session store, the remote client and
// the controller.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	personas, err := LoadPersonas(cfg.Session.PersonasFile)
	if err != nil {
		return nil, err
	}

	client, err := cfg.AI.NewClient(ctx, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s client: %w", cfg.AI.Provider, err)
	}
	if !cfg.AI.Enabled() {
		logger.Warn("AI credentials missing, replies will fail until they are set", zap.String("provider", cfg.AI.Provider))
	}

	return Assemble(personas, session.NewFileStore(cfg.Session.Dir, logger), client, logger), nil
}

// Assemble wires already-built parts together.
func Assemble(personas *persona.MemoryStore, store *session.FileStore, client ai.Client, logger *zap.Logger) *App {
	defaults, ok := personas.FindByID(persona.DefaultID)
	if !ok {
		defaults = persona.Default()
	}

	controller := chat.NewController(chat.Options{
		Store:    store,
		Client:   client,
		Defaults: defaults,
		Logger:   logger,
	})
	return &App{Personas: personas, Store: store, Controller: controller}
}

// LoadPersonas returns the built-in presets merged with the optional YAML file.
func LoadPersonas(path string) (*persona.MemoryStore, error) {
	items := persona.Seed()
	if path != "" {
		merged, err := persona.LoadFile(path, items)
		if err != nil {
			return nil, err
		}
		items = merged
	}
	return persona.NewMemoryStore(items), nil
}
