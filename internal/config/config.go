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
	App       AppConfig
	Server    ServerConfig
	AI        AIConfig
	Diagnosis DiagnosisConfig
	Cache     CacheConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	app := loadAppConfig()

	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	diagnosis, err := loadDiagnosisConfig()
	if err != nil {
		return nil, err
	}

	cache, err := loadCacheConfig()
	if err != nil {
		return nil, err
	}

	return &Config{App: app, Server: server, AI: ai, Diagnosis: diagnosis, Cache: cache}, nil
}

// AppConfig 描述运行环境与日志配置。
type AppConfig struct {
	Env      string
	LogLevel string
}

func loadAppConfig() AppConfig {
	return AppConfig{
		Env:      strings.ToLower(getEnvOrDefault("APP_ENV", "development")),
		LogLevel: strings.ToLower(getEnvOrDefault("LOG_LEVEL", "info")),
	}
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr              string
	AllowedOrigins    []string
	RateLimitRequests int
	RateLimitWindow   time.Duration
}

// loadServerConfig 解析服务器监听地址、CORS 与限流设置。
func loadServerConfig() (ServerConfig, error) {
	addr, err := parseListenAddr(strings.TrimSpace(os.Getenv("PORT")))
	if err != nil {
		return ServerConfig{}, err
	}

	requests := 60
	if override, err := parseOptionalIntEnv("RATE_LIMIT_REQUESTS"); err != nil {
		return ServerConfig{}, err
	} else if override != nil {
		requests = *override
	}

	window, err := parseDurationEnv("RATE_LIMIT_WINDOW", time.Minute)
	if err != nil {
		return ServerConfig{}, err
	}

	return ServerConfig{
		Addr:              addr,
		AllowedOrigins:    splitList(getEnvOrDefault("CORS_ALLOWED_ORIGINS", "*")),
		RateLimitRequests: requests,
		RateLimitWindow:   window,
	}, nil
}

func parseListenAddr(port string) (string, error) {
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return port, nil
	}

	if strings.Contains(port, " ") {
		return "", fmt.Errorf("invalid PORT value: %q", port)
	}

	return ":" + port, nil
}

// AIConfig 描述大模型相关配置。
type AIConfig struct {
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

	return AIConfig{
		APIKey:      strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:   strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:   strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:       strings.TrimSpace(os.Getenv("Model")),
		BaseURL:     getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:      getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature: temperature,
		TopP:        topP,
		MaxTokens:   maxTokens,
	}, nil
}

// DiagnosisConfig 控制问诊轮次上限。
type DiagnosisConfig struct {
	InitialQuestions int
	MaxFollowUps     int
}

func loadDiagnosisConfig() (DiagnosisConfig, error) {
	cfg := DiagnosisConfig{InitialQuestions: 5, MaxFollowUps: 15}

	if v, err := parseOptionalIntEnv("DIAGNOSIS_INITIAL_QUESTIONS"); err != nil {
		return DiagnosisConfig{}, err
	} else if v != nil {
		if *v < 1 {
			return DiagnosisConfig{}, fmt.Errorf("DIAGNOSIS_INITIAL_QUESTIONS must be positive, got %d", *v)
		}
		cfg.InitialQuestions = *v
	}

	if v, err := parseOptionalIntEnv("DIAGNOSIS_MAX_FOLLOW_UPS"); err != nil {
		return DiagnosisConfig{}, err
	} else if v != nil {
		cfg.MaxFollowUps = *v
	}

	if cfg.MaxFollowUps < cfg.InitialQuestions {
		return DiagnosisConfig{}, fmt.Errorf("DIAGNOSIS_MAX_FOLLOW_UPS (%d) must not be below DIAGNOSIS_INITIAL_QUESTIONS (%d)", cfg.MaxFollowUps, cfg.InitialQuestions)
	}
	return cfg, nil
}

// CacheConfig 描述病症详情缓存。RedisAddr 为空时使用进程内缓存。
type CacheConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	TTL           time.Duration
}

// UseRedis 表示是否配置了 Redis。
func (c CacheConfig) UseRedis() bool {
	return c.RedisAddr != ""
}

func loadCacheConfig() (CacheConfig, error) {
	db := 0
	if v, err := parseOptionalIntEnv("REDIS_DB"); err != nil {
		return CacheConfig{}, err
	} else if v != nil {
		db = *v
	}

	ttl, err := parseDurationEnv("CONDITION_CACHE_TTL", 6*time.Hour)
	if err != nil {
		return CacheConfig{}, err
	}

	return CacheConfig{
		RedisAddr:     strings.TrimSpace(os.Getenv("REDIS_ADDR")),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       db,
		TTL:           ttl,
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
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
