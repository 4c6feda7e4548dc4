package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
	"go.uber.org/zap"

	"github.com/zhouzirui/aichat/internal/logging"
	"github.com/zhouzirui/aichat/internal/service/ai"
)

// 支持的模型提供方。
const (
	ProviderDeepSeek = "deepseek"
	ProviderArk      = "ark"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server  ServerConfig
	AI      AIConfig
	Session SessionConfig
	Log     LogConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	log, err := loadLogConfig()
	if err != nil {
		return nil, err
	}

	return &Config{Server: server, AI: ai, Session: loadSessionConfig(), Log: log}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// AIConfig 描述大模型相关配置。
type AIConfig struct {
	Provider       string
	APIKey         string
	AccessKey      string
	SecretKey      string
	Model          string
	BaseURL        string
	Region         string
	Temperature    *float64
	TopP           *float64
	MaxTokens      *int
	ConnectTimeout time.Duration
}

// Enabled 表示是否提供了必需的密钥。
func (c AIConfig) Enabled() bool {
	if c.Provider == ProviderArk {
		return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
	}
	return c.APIKey != ""
}

// NewClient 根据 Provider 创建流式对话客户端。
// DeepSeek 缺少密钥时仍返回客户端，错误在发送消息时报告。
func (c AIConfig) NewClient(ctx context.Context, logger *zap.Logger) (ai.Client, error) {
	switch c.Provider {
	case ProviderArk:
		chatModel, err := c.NewChatModel(ctx)
		if err != nil {
			return nil, err
		}
		client, err := ai.NewArkClient(ctx, chatModel, logger)
		if err != nil {
			return nil, err
		}
		return client, nil
	case ProviderDeepSeek, "":
		return ai.NewSSEClient(ai.SSEConfig{
			BaseURL:        c.BaseURL,
			APIKey:         c.APIKey,
			Model:          c.Model,
			Temperature:    c.Temperature,
			TopP:           c.TopP,
			MaxTokens:      c.MaxTokens,
			ConnectTimeout: c.ConnectTimeout,
		}, logger), nil
	default:
		return nil, fmt.Errorf("unsupported AI_PROVIDER %q", c.Provider)
	}
}

// NewChatModel 使用配置创建一个 Ark 模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("Ark 凭证或模型配置缺失，至少提供 ARK_API_KEY + ARK_MODEL 或 AK/SK 组合")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	var maxTokens *int
	if c.MaxTokens != nil {
		val := *c.MaxTokens
		maxTokens = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	provider := strings.ToLower(getEnvOrDefault("AI_PROVIDER", ProviderDeepSeek))
	if provider != ProviderDeepSeek && provider != ProviderArk {
		return AIConfig{}, fmt.Errorf("invalid AI_PROVIDER value %q", provider)
	}

	temperature, err := parseOptionalFloatEnv("AI_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("AI_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("AI_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	connectTimeout := 10
	if override, err := parseOptionalIntEnv("AI_CONNECT_TIMEOUT"); err != nil {
		return AIConfig{}, err
	} else if override != nil {
		if *override < 1 {
			return AIConfig{}, fmt.Errorf("invalid AI_CONNECT_TIMEOUT value %d: must be positive", *override)
		}
		connectTimeout = *override
	}

	cfg := AIConfig{
		Provider:       provider,
		Temperature:    temperature,
		TopP:           topP,
		MaxTokens:      maxTokens,
		ConnectTimeout: time.Duration(connectTimeout) * time.Second,
	}

	if provider == ProviderArk {
		cfg.APIKey = strings.TrimSpace(os.Getenv("ARK_API_KEY"))
		cfg.AccessKey = strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY"))
		cfg.SecretKey = strings.TrimSpace(os.Getenv("ARK_SECRET_KEY"))
		cfg.Model = strings.TrimSpace(os.Getenv("ARK_MODEL"))
		cfg.BaseURL = getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3")
		cfg.Region = getEnvOrDefault("ARK_REGION", "cn-beijing")
		return cfg, nil
	}

	cfg.APIKey = strings.TrimSpace(os.Getenv("DEEPSEEK_API_KEY"))
	cfg.BaseURL = getEnvOrDefault("DEEPSEEK_BASE_URL", "https://api.deepseek.com")
	cfg.Model = getEnvOrDefault("DEEPSEEK_MODEL", "deepseek-chat")
	return cfg, nil
}

// SessionConfig 描述会话存储位置与人设预设文件。
type SessionConfig struct {
	Dir          string
	PersonasFile string
}

func loadSessionConfig() SessionConfig {
	return SessionConfig{
		Dir:          getEnvOrDefault("SESSION_DIR", "sessions"),
		PersonasFile: strings.TrimSpace(os.Getenv("PERSONAS_FILE")),
	}
}

// LogConfig 描述日志级别与输出格式。
type LogConfig struct {
	Level       string
	Development bool
}

// Options 转换为 logging 包的构建参数。
func (c LogConfig) Options() logging.Options {
	return logging.Options{Level: c.Level, Development: c.Development}
}

func loadLogConfig() (LogConfig, error) {
	dev, err := parseBoolEnv("LOG_DEV", false)
	if err != nil {
		return LogConfig{}, err
	}

	level := getEnvOrDefault("LOG_LEVEL", "info")
	if _, err := logging.ParseLevel(level); err != nil {
		return LogConfig{}, fmt.Errorf("invalid LOG_LEVEL value %q", level)
	}

	return LogConfig{Level: level, Development: dev}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
