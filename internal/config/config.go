package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the client and the stub
// backend.
type Config struct {
	App      AppConfig
	Backend  BackendConfig
	Realtime RealtimeConfig
	Storage  StorageConfig
	Redis    RedisConfig
	Logger   LoggerConfig
	Stub     StubConfig
}

// AppConfig identifies the client build.
type AppConfig struct {
	Name    string
	Env     string
	Version string
}

// BackendConfig points at the remote REST backend.
type BackendConfig struct {
	BaseURL        string
	TimeoutSeconds int
}

// RealtimeConfig points at the push-notification endpoint.
type RealtimeConfig struct {
	URL                     string
	Origin                  string
	HandshakeTimeoutSeconds int
	MaxReconnectAttempts    int
}

// StorageConfig selects the local persistence driver.
type StorageConfig struct {
	Driver string // "file" or "redis"
	Dir    string
}

// RedisConfig holds Redis connection values for the redis storage driver.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	Namespace string
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// StubConfig configures the development stub backend.
type StubConfig struct {
	Host                   string
	Port                   string
	RealtimePort           string
	JWTSecret              string
	AccessTokenTTLMinutes  int
	RefreshTokenTTLMinutes int
	BcryptCost             int
}

// Load reads configuration from environment variables, applying defaults
// where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:    getEnv("APP_NAME", "buildflow-client"),
			Env:     getEnv("APP_ENV", "development"),
			Version: getEnv("APP_VERSION", "dev"),
		},
		Backend: BackendConfig{
			BaseURL:        getEnv("BACKEND_BASE_URL", "http://127.0.0.1:8080"),
			TimeoutSeconds: getEnvAsInt("BACKEND_TIMEOUT_SECONDS", 15),
		},
		Realtime: RealtimeConfig{
			URL:                     getEnv("REALTIME_URL", "ws://127.0.0.1:8081/ws"),
			Origin:                  getEnv("REALTIME_ORIGIN", "http://127.0.0.1:8081"),
			HandshakeTimeoutSeconds: getEnvAsInt("REALTIME_HANDSHAKE_TIMEOUT_SECONDS", 10),
			MaxReconnectAttempts:    getEnvAsInt("REALTIME_MAX_RECONNECT_ATTEMPTS", 20),
		},
		Storage: StorageConfig{
			Driver: getEnv("STORAGE_DRIVER", "file"),
			Dir:    getEnv("STORAGE_DIR", defaultStorageDir()),
		},
		Redis: RedisConfig{
			Addr:      getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password:  os.Getenv("REDIS_PASSWORD"),
			DB:        redisDB,
			Namespace: getEnv("REDIS_NAMESPACE", "buildflow:client"),
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Stub: StubConfig{
			Host:                   getEnv("STUB_HOST", "0.0.0.0"),
			Port:                   getEnv("STUB_PORT", "8080"),
			RealtimePort:           getEnv("STUB_REALTIME_PORT", "8081"),
			JWTSecret:              getEnv("STUB_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes:  getEnvAsInt("STUB_ACCESS_TOKEN_TTL_MINUTES", 60),
			RefreshTokenTTLMinutes: getEnvAsInt("STUB_REFRESH_TOKEN_TTL_MINUTES", 10080),
			BcryptCost:             getEnvAsInt("STUB_BCRYPT_COST", 10),
		},
	}

	return cfg, nil
}

// Timeout returns the configured backend request timeout.
func (b BackendConfig) Timeout() time.Duration {
	if b.TimeoutSeconds <= 0 {
		return 15 * time.Second
	}
	return time.Duration(b.TimeoutSeconds) * time.Second
}

// HandshakeTimeout returns the websocket handshake deadline.
func (r RealtimeConfig) HandshakeTimeout() time.Duration {
	if r.HandshakeTimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(r.HandshakeTimeoutSeconds) * time.Second
}

// Addr returns the stub REST bind address.
func (s StubConfig) Addr() string {
	return fmt.Sprintf("%s:%s", s.Host, s.Port)
}

// RealtimeAddr returns the stub websocket bind address.
func (s StubConfig) RealtimeAddr() string {
	return fmt.Sprintf("%s:%s", s.Host, s.RealtimePort)
}

func defaultStorageDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".buildflow"
	}
	return home + "/.buildflow"
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}
