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
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server   ServerConfig
	Upstream UpstreamConfig
	AI       AIConfig
	Settings SettingsConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	upstream, err := loadUpstreamConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	settings, err := loadSettingsConfig()
	if err != nil {
		return nil, err
	}

	if upstream.Transport == TransportArk && !ai.Enabled() {
		return nil, fmt.Errorf("UPSTREAM_TRANSPORT=ark 需要提供 ARK_API_KEY + Model 或 AK/SK 组合")
	}

	return &Config{Server: server, Upstream: upstream, AI: ai, Settings: settings}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr           string
	Env            string
	LogLevel       string
	AllowedOrigins []string
}

// loadServerConfig 解析服务器监听地址与日志设置。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	cfg := ServerConfig{
		Env:      getEnvOrDefault("APP_ENV", "development"),
		LogLevel: getEnvOrDefault("LOG_LEVEL", "info"),
	}
	for _, origin := range strings.Split(os.Getenv("CORS_ORIGINS"), ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			cfg.AllowedOrigins = append(cfg.AllowedOrigins, origin)
		}
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		cfg.Addr = port
		return cfg, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	cfg.Addr = ":" + port
	return cfg, nil
}

// 支持的上游传输方式。
const (
	TransportADK      = "adk"
	TransportWorkflow = "workflow"
	TransportArk      = "ark"
)

// UpstreamConfig 描述对话上游服务。
type UpstreamConfig struct {
	Transport   string
	BaseURL     string
	APIKey      string
	AppName     string
	UserID      string
	StopTimeout time.Duration
}

func loadUpstreamConfig() (UpstreamConfig, error) {
	transport := strings.ToLower(getEnvOrDefault("UPSTREAM_TRANSPORT", TransportADK))
	switch transport {
	case TransportADK, TransportWorkflow, TransportArk:
	default:
		return UpstreamConfig{}, fmt.Errorf("invalid UPSTREAM_TRANSPORT value %q", transport)
	}

	stopTimeout, err := parseDurationEnv("UPSTREAM_STOP_TIMEOUT", 5*time.Second)
	if err != nil {
		return UpstreamConfig{}, err
	}

	return UpstreamConfig{
		Transport:   transport,
		BaseURL:     getEnvOrDefault("UPSTREAM_URL", "http://localhost:8000"),
		APIKey:      strings.TrimSpace(os.Getenv("UPSTREAM_API_KEY")),
		AppName:     getEnvOrDefault("UPSTREAM_APP", "travel_agent"),
		UserID:      getEnvOrDefault("UPSTREAM_USER", "user"),
		StopTimeout: stopTimeout,
	}, nil
}

// AIConfig 描述大模型相关配置，仅在 ark 传输下使用。
type AIConfig struct {
	APIKey       string
	AccessKey    string
	SecretKey    string
	Model        string
	BaseURL      string
	Region       string
	Temperature  *float64
	TopP         *float64
	MaxTokens    *int
	HistoryLimit int
}

// Enabled 表示是否提供了必需的密钥。
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel 使用配置创建一个模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("Ark 凭证或模型配置缺失，至少提供 ARK_API_KEY + Model 或 AK/SK 组合")
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

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("ARK_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	history := 10
	if override, err := parseOptionalIntEnv("ARK_HISTORY_LIMIT"); err != nil {
		return AIConfig{}, err
	} else if override != nil {
		history = max(*override, 0)
	}

	return AIConfig{
		APIKey:       strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:    strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:    strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:        strings.TrimSpace(os.Getenv("Model")),
		BaseURL:      getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:       getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature:  temperature,
		TopP:         topP,
		MaxTokens:    maxTokens,
		HistoryLimit: history,
	}, nil
}

// SettingsConfig 描述浏览器端设置的默认值与存储。
type SettingsConfig struct {
	File             string
	RedisURL         string
	EnableUploadFile bool
	EnableSelectMode bool
	// AllowedHosts 限定浏览器可保存的 API_URL 主机；上游地址的主机总是允许。
	AllowedHosts []string
}

func loadSettingsConfig() (SettingsConfig, error) {
	upload, err := parseBoolEnv("ENABLE_UPLOAD_FILE", true)
	if err != nil {
		return SettingsConfig{}, err
	}

	selectMode, err := parseBoolEnv("ENABLE_SELECT_MODE", true)
	if err != nil {
		return SettingsConfig{}, err
	}

	cfg := SettingsConfig{
		File:             strings.TrimSpace(os.Getenv("SETTINGS_FILE")),
		RedisURL:         strings.TrimSpace(os.Getenv("REDIS_URL")),
		EnableUploadFile: upload,
		EnableSelectMode: selectMode,
	}
	for _, host := range strings.Split(os.Getenv("SETTINGS_ALLOWED_HOSTS"), ",") {
		if host = strings.TrimSpace(host); host != "" {
			cfg.AllowedHosts = append(cfg.AllowedHosts, host)
		}
	}
	return cfg, nil
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

func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
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
