package commands

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/zhouzirui/aichat/internal/app"
	"github.com/zhouzirui/aichat/internal/config"
	"github.com/zhouzirui/aichat/internal/logging"
)

// Dependencies holds the external dependencies for the commands.
// This allows for dependency injection and easier testing.
type Dependencies struct {
	// Build assembles the chat core.
	Build func(ctx context.Context) (*app.App, error)

	In  io.Reader
	Out io.Writer
	Err io.Writer
}

// NewDependencies wires the commands to .env, environment configuration and
// the process streams.
func NewDependencies() *Dependencies {
	return &Dependencies{
		Build: buildFromEnv,
		In:    os.Stdin,
		Out:   os.Stdout,
		Err:   os.Stderr,
	}
}

func buildFromEnv(ctx context.Context) (*app.App, error) {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	// The terminal is the chat surface, so only warnings reach stderr.
	opts := cfg.Log.Options()
	if level, _ := logging.ParseLevel(opts.Level); level < zapcore.WarnLevel && !opts.Development {
		opts.Level = "warn"
	}
	logger, err := logging.New(opts)
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)

	return app.New(ctx, cfg, logger)
}
