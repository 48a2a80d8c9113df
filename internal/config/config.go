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

	"github.com/zhouzirui/z-chatroom/backend/internal/storage"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server ServerConfig
	AI     AIConfig
	Store  StoreConfig
	Log    LogConfig
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

	store, err := loadStoreConfig()
	if err != nil {
		return nil, err
	}

	return &Config{Server: server, AI: ai, Store: store, Log: loadLogConfig()}, nil
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

const (
	ProviderOpenAI = "openai"
	ProviderArk    = "ark"
)

// AIConfig 描述补全接口相关配置。
type AIConfig struct {
	Provider        string
	APIKey          string
	BaseURL         string
	Model           string
	SystemPrompt    string
	RequestTimeout  time.Duration
	ResourceTimeout time.Duration

	ArkAPIKey    string
	ArkAccessKey string
	ArkSecretKey string
	ArkModel     string
	ArkBaseURL   string
	ArkRegion    string
}

// Enabled 表示是否提供了必需的密钥。
func (c AIConfig) Enabled() bool {
	switch c.Provider {
	case ProviderArk:
		return c.ArkModel != "" && (c.ArkAPIKey != "" || (c.ArkAccessKey != "" && c.ArkSecretKey != ""))
	default:
		return c.APIKey != "" && c.Model != ""
	}
}

// NewChatModel 使用 Ark 配置创建一个模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.BaseChatModel, error) {
	if c.Provider != ProviderArk || !c.Enabled() {
		return nil, fmt.Errorf("Ark 凭证或模型配置缺失，至少提供 ARK_API_KEY + Model 或 AK/SK 组合")
	}

	timeout := c.ResourceTimeout
	cfg := &ark.ChatModelConfig{
		BaseURL:   c.ArkBaseURL,
		Region:    c.ArkRegion,
		APIKey:    c.ArkAPIKey,
		AccessKey: c.ArkAccessKey,
		SecretKey: c.ArkSecretKey,
		Model:     c.ArkModel,
		Timeout:   &timeout,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	provider := strings.ToLower(getEnvOrDefault("CHAT_PROVIDER", ProviderOpenAI))
	if provider != ProviderOpenAI && provider != ProviderArk {
		return AIConfig{}, fmt.Errorf("invalid CHAT_PROVIDER value %q", provider)
	}

	requestTimeout, err := parseDurationEnv("CHAT_REQUEST_TIMEOUT", 30*time.Second)
	if err != nil {
		return AIConfig{}, err
	}

	resourceTimeout, err := parseDurationEnv("CHAT_RESOURCE_TIMEOUT", 60*time.Second)
	if err != nil {
		return AIConfig{}, err
	}
	if resourceTimeout < requestTimeout {
		return AIConfig{}, fmt.Errorf("CHAT_RESOURCE_TIMEOUT (%s) must not be shorter than CHAT_REQUEST_TIMEOUT (%s)", resourceTimeout, requestTimeout)
	}

	return AIConfig{
		Provider:        provider,
		APIKey:          strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		BaseURL:         getEnvOrDefault("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		Model:           getEnvOrDefault("CHAT_MODEL", "gpt-3.5-turbo"),
		SystemPrompt:    getEnvOrDefault("CHAT_SYSTEM_PROMPT", "You are a helpful assistant."),
		RequestTimeout:  requestTimeout,
		ResourceTimeout: resourceTimeout,

		ArkAPIKey:    strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		ArkAccessKey: strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		ArkSecretKey: strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		ArkModel:     strings.TrimSpace(os.Getenv("Model")),
		ArkBaseURL:   getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		ArkRegion:    getEnvOrDefault("ARK_REGION", "cn-beijing"),
	}, nil
}

const (
	DriverFile   = "file"
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
)

// StoreConfig 描述聊天室持久化配置。
type StoreConfig struct {
	Driver   string
	Path     string
	Key      string
	RedisURL string
}

// OpenBackend 根据驱动创建底层 blob 存储。
func (c StoreConfig) OpenBackend(ctx context.Context) (storage.Backend, error) {
	switch c.Driver {
	case DriverFile:
		return storage.NewFileBackend(c.Path)
	case DriverMemory:
		return storage.NewMemoryBackend(), nil
	case DriverSQLite:
		return storage.NewSQLiteBackend(ctx, c.Path)
	case DriverRedis:
		return storage.NewRedisBackend(ctx, c.RedisURL)
	default:
		return nil, fmt.Errorf("unknown store driver %q", c.Driver)
	}
}

func loadStoreConfig() (StoreConfig, error) {
	driver := strings.ToLower(getEnvOrDefault("STORE_DRIVER", DriverFile))
	switch driver {
	case DriverFile, DriverMemory, DriverSQLite, DriverRedis:
	default:
		return StoreConfig{}, fmt.Errorf("invalid STORE_DRIVER value %q", driver)
	}

	path := strings.TrimSpace(os.Getenv("STORE_PATH"))
	if path == "" {
		path = "./data"
		if driver == DriverSQLite {
			path = "./data/chatrooms.db"
		}
	}

	return StoreConfig{
		Driver:   driver,
		Path:     path,
		Key:      getEnvOrDefault("STORE_KEY", "chatRooms"),
		RedisURL: getEnvOrDefault("REDIS_URL", "redis://localhost:6379/0"),
	}, nil
}

// LogConfig 描述日志输出配置。
type LogConfig struct {
	Level  string
	Format string
}

func loadLogConfig() LogConfig {
	return LogConfig{
		Level:  strings.ToLower(getEnvOrDefault("LOG_LEVEL", "info")),
		Format: strings.ToLower(getEnvOrDefault("LOG_FORMAT", "console")),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

// parseDurationEnv 接受 Go duration（"45s"）或整数秒。
func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	if seconds, err := strconv.Atoi(raw); err == nil {
		if seconds <= 0 {
			return 0, fmt.Errorf("invalid %s value %q: must be positive", key, raw)
		}
		return time.Duration(seconds) * time.Second, nil
	}

	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	if val <= 0 {
		return 0, fmt.Errorf("invalid %s value %q: must be positive", key, raw)
	}
	return val, nil
}
