package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
	"github.com/sirupsen/logrus"

	"github.com/philosophers/agora/backend/internal/adapter/anthropic"
	"github.com/philosophers/agora/backend/internal/adapter/openai"
	"github.com/philosophers/agora/backend/internal/model/persona"
	"github.com/philosophers/agora/backend/internal/storage"
	"github.com/philosophers/agora/backend/internal/storage/afsstore"
	"github.com/philosophers/agora/backend/internal/storage/memory"
	"github.com/philosophers/agora/backend/internal/storage/sqlite"
)

// 支持的模型提供方。
const (
	ProviderGemini    = "gemini"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderArk       = "ark"
)

// 支持的存储驱动。
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverAFS    = "afs"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server         ServerConfig
	AI             AIConfig
	Storage        StorageConfig
	Log            LogConfig
	DefaultPersona persona.ID
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

	store, err := loadStorageConfig()
	if err != nil {
		return nil, err
	}

	logCfg, err := loadLogConfig()
	if err != nil {
		return nil, err
	}

	defaultPersona, err := persona.ParseID(getEnvOrDefault("DEFAULT_PERSONA", string(persona.Socrates)))
	if err != nil {
		return nil, fmt.Errorf("invalid DEFAULT_PERSONA value: %w", err)
	}

	return &Config{
		Server:         server,
		AI:             ai,
		Storage:        store,
		Log:            logCfg,
		DefaultPersona: defaultPersona,
	}, nil
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
	Provider    string
	APIKey      string
	AccessKey   string
	SecretKey   string
	Model       string
	BaseURL     string
	Region      string
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
}

// Enabled 表示所选提供方的凭证是否齐全。
func (c AIConfig) Enabled() bool {
	if c.Provider == ProviderArk {
		return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
	}
	return c.APIKey != ""
}

// NewChatModel 使用配置创建一个模型实例。凭证缺失时返回 nil, nil，
// 由上层把每次请求标记为缺少凭证。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, nil
	}

	temperature := toFloat32(c.Temperature)
	topP := toFloat32(c.TopP)

	switch c.Provider {
	case ProviderGemini, ProviderOpenAI:
		return openai.NewChatModel(openai.Config{
			Provider:    c.Provider,
			APIKey:      c.APIKey,
			BaseURL:     c.BaseURL,
			Model:       c.Model,
			Temperature: temperature,
			TopP:        topP,
			MaxTokens:   c.MaxTokens,
		})
	case ProviderAnthropic:
		return anthropic.NewChatModel(anthropic.Config{
			APIKey:      c.APIKey,
			BaseURL:     c.BaseURL,
			Model:       c.Model,
			Temperature: temperature,
			TopP:        topP,
			MaxTokens:   c.MaxTokens,
		})
	case ProviderArk:
		return ark.NewChatModel(ctx, &ark.ChatModelConfig{
			BaseURL:     c.BaseURL,
			Region:      c.Region,
			APIKey:      c.APIKey,
			AccessKey:   c.AccessKey,
			SecretKey:   c.SecretKey,
			Model:       c.Model,
			MaxTokens:   c.MaxTokens,
			Temperature: temperature,
			TopP:        topP,
		})
	default:
		return nil, fmt.Errorf("unsupported LLM_PROVIDER %q", c.Provider)
	}
}

func toFloat32(v *float64) *float32 {
	if v == nil {
		return nil
	}
	val := float32(*v)
	return &val
}

func loadAIConfig() (AIConfig, error) {
	provider := strings.ToLower(getEnvOrDefault("LLM_PROVIDER", ProviderGemini))

	temperature, err := parseOptionalFloatEnv("LLM_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("LLM_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("LLM_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	cfg := AIConfig{
		Provider:    provider,
		Model:       strings.TrimSpace(os.Getenv("LLM_MODEL")),
		BaseURL:     strings.TrimSpace(os.Getenv("LLM_BASE_URL")),
		Temperature: temperature,
		TopP:        topP,
		MaxTokens:   maxTokens,
	}

	switch provider {
	case ProviderGemini:
		cfg.APIKey = strings.TrimSpace(os.Getenv("GEMINI_API_KEY"))
		cfg.Model = orDefault(cfg.Model, "gemini-2.5-flash-lite")
		cfg.BaseURL = orDefault(cfg.BaseURL, openai.GeminiBaseURL)
	case ProviderOpenAI:
		cfg.APIKey = strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
		cfg.Model = orDefault(cfg.Model, "gpt-4o-mini")
	case ProviderAnthropic:
		cfg.APIKey = strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY"))
		cfg.Model = orDefault(cfg.Model, anthropic.DefaultModel)
	case ProviderArk:
		cfg.APIKey = strings.TrimSpace(os.Getenv("ARK_API_KEY"))
		cfg.AccessKey = strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY"))
		cfg.SecretKey = strings.TrimSpace(os.Getenv("ARK_SECRET_KEY"))
		cfg.BaseURL = orDefault(cfg.BaseURL, "https://ark.cn-beijing.volces.com/api/v3")
		cfg.Region = getEnvOrDefault("ARK_REGION", "cn-beijing")
	default:
		return AIConfig{}, fmt.Errorf("invalid LLM_PROVIDER value %q", provider)
	}

	return cfg, nil
}

// StorageConfig 描述对话持久化后端。
type StorageConfig struct {
	Driver string
	DSN    string
}

// Open 按驱动打开键值存储。
func (c StorageConfig) Open(ctx context.Context) (storage.KV, error) {
	switch c.Driver {
	case DriverMemory:
		return memory.NewStore(), nil
	case DriverSQLite:
		return sqlite.Open(c.DSN)
	case DriverAFS:
		return afsstore.New(ctx, c.DSN)
	default:
		return nil, fmt.Errorf("unsupported STORAGE_DRIVER %q", c.Driver)
	}
}

func loadStorageConfig() (StorageConfig, error) {
	driver := strings.ToLower(getEnvOrDefault("STORAGE_DRIVER", DriverSQLite))
	dsn := strings.TrimSpace(os.Getenv("STORAGE_DSN"))

	switch driver {
	case DriverMemory:
	case DriverSQLite:
		dsn = orDefault(dsn, "philosophers.db")
	case DriverAFS:
		dsn = orDefault(dsn, "file://./data")
	default:
		return StorageConfig{}, fmt.Errorf("invalid STORAGE_DRIVER value %q", driver)
	}

	return StorageConfig{Driver: driver, DSN: dsn}, nil
}

// LogConfig 描述日志级别与格式。
type LogConfig struct {
	Level  logrus.Level
	Format string
}

// Apply 配置全局 logrus 日志器。
func (c LogConfig) Apply() {
	logrus.SetLevel(c.Level)
	if c.Format == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
		return
	}
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
}

func loadLogConfig() (LogConfig, error) {
	raw := getEnvOrDefault("LOG_LEVEL", "info")
	level, err := logrus.ParseLevel(raw)
	if err != nil {
		return LogConfig{}, fmt.Errorf("invalid LOG_LEVEL value %q: %w", raw, err)
	}

	format := strings.ToLower(getEnvOrDefault("LOG_FORMAT", "text"))
	if format != "text" && format != "json" {
		return LogConfig{}, fmt.Errorf("invalid LOG_FORMAT value %q", format)
	}

	return LogConfig{Level: level, Format: format}, nil
}

func orDefault(value, defaultValue string) string {
	if value != "" {
		return value
	}
	return defaultValue
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
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
