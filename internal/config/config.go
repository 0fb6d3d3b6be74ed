package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// 支持的扫描引擎。
const (
	EngineNmap  = "nmap"
	EngineNaabu = "naabu"
)

// Config 汇总服务运行时所需的全部配置。
type Config struct {
	Addr            string
	ScanEngine      string
	NmapPath        string
	ScanTimeout     time.Duration
	ScanConcurrency int
	MaxTopPorts     int
	AllowPrivate    bool
	LogLevel        string
	LogFormat       string
}

// ClientConfig 是命令行客户端的配置。
type ClientConfig struct {
	BaseURL        string
	RetryAttempts  int
	RetryBaseDelay time.Duration
	Timeout        time.Duration
	LogLevel       string
}

// Load 从 .env 与环境变量构建服务端配置，并提供合理的默认值。
func Load() (*Config, error) {
	loadDotenv()

	cfg := &Config{
		Addr:            getenv("ISITDOWN_HTTP_ADDR", ":8080"),
		ScanEngine:      strings.ToLower(getenv("ISITDOWN_SCAN_ENGINE", EngineNmap)),
		NmapPath:        getenv("ISITDOWN_NMAP_PATH", ""),
		ScanTimeout:     durationEnv("ISITDOWN_SCAN_TIMEOUT", 30*time.Second),
		ScanConcurrency: intEnv("ISITDOWN_SCAN_CONCURRENCY", 4),
		MaxTopPorts:     intEnv("ISITDOWN_MAX_TOP_PORTS", 1000),
		AllowPrivate:    boolEnv("ISITDOWN_ALLOW_PRIVATE", false),
		LogLevel:        getenv("ISITDOWN_LOG_LEVEL", "info"),
		LogFormat:       getenv("ISITDOWN_LOG_FORMAT", "text"),
	}

	if cfg.ScanEngine != EngineNmap && cfg.ScanEngine != EngineNaabu {
		return nil, fmt.Errorf("unknown scan engine %q", cfg.ScanEngine)
	}
	if cfg.ScanConcurrency <= 0 {
		return nil, fmt.Errorf("scan concurrency must be positive")
	}
	if cfg.ScanTimeout <= 0 {
		return nil, fmt.Errorf("scan timeout must be positive")
	}
	if cfg.MaxTopPorts <= 0 || cfg.MaxTopPorts > 65535 {
		return nil, fmt.Errorf("max top ports must be in 1..65535, got %d", cfg.MaxTopPorts)
	}

	return cfg, nil
}

// LoadClient 构建客户端配置。
func LoadClient() (*ClientConfig, error) {
	loadDotenv()

	cfg := &ClientConfig{
		BaseURL:        strings.TrimRight(getenv("ISITDOWN_URL", "http://localhost:8080"), "/"),
		RetryAttempts:  intEnv("ISITDOWN_RETRY_ATTEMPTS", 3),
		RetryBaseDelay: durationEnv("ISITDOWN_RETRY_BASE_DELAY", time.Second),
		Timeout:        durationEnv("ISITDOWN_CLIENT_TIMEOUT", 60*time.Second),
		LogLevel:       getenv("ISITDOWN_LOG_LEVEL", "warn"),
	}
	if cfg.RetryAttempts <= 0 {
		return nil, fmt.Errorf("retry attempts must be positive")
	}
	if !strings.HasPrefix(cfg.BaseURL, "http://") && !strings.HasPrefix(cfg.BaseURL, "https://") {
		return nil, fmt.Errorf("server url must start with http:// or https://, got %q", cfg.BaseURL)
	}
	return cfg, nil
}

// 本地 .env 优先，缺失时静默忽略。
func loadDotenv() {
	_ = godotenv.Load(".env")
}

func getenv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func durationEnv(key string, fallback time.Duration) time.Duration {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func intEnv(key string, fallback int) int {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return n
}

func boolEnv(key string, fallback bool) bool {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return b
}
