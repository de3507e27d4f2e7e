package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Database DatabaseConfig
	HTTP     HTTPConfig
	GRPC     GRPCConfig
	Auth     AuthConfig
	Redis    RedisConfig
	Tracking TrackingConfig
	Notify   NotifyConfig
}

// DatabaseConfig contains database-related settings.
type DatabaseConfig struct {
	Path string // SQLite database file path
}

// HTTPConfig contains HTTP API server settings.
type HTTPConfig struct {
	Address string // HTTP listen address (e.g., ":8080")
}

// GRPCConfig contains gRPC server settings.
type GRPCConfig struct {
	Address string // gRPC server listen address (e.g., ":50051")
}

// AuthConfig contains authentication settings.
type AuthConfig struct {
	JWTSecret string // JWT signing secret
}

// RedisConfig contains the retry-queue backend settings.
// An empty URL selects the in-process queue.
type RedisConfig struct {
	URL string
}

// TrackingConfig tunes the location ingestor.
type TrackingConfig struct {
	ProximityMeters float64       // radius that flips EN_ROUTE <-> NEARBY
	PingRetention   time.Duration // rider pings older than this are purged
}

// NotifyConfig tunes the notification dispatcher.
type NotifyConfig struct {
	MaxAttempts       int           // total send attempts before FAILED
	RetryBase         time.Duration // backoff base (base * 2^retry_count)
	RetryCap          time.Duration // backoff ceiling
	SendTimeout       time.Duration // per-attempt channel sender timeout
	RetryPollInterval time.Duration // retry worker poll cadence
}

// fileConfig mirrors the optional YAML config file schema. Environment
// variables override anything set here.
type fileConfig struct {
	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`
	HTTP struct {
		Address string `yaml:"address"`
	} `yaml:"http"`
	GRPC struct {
		Address string `yaml:"address"`
	} `yaml:"grpc"`
	Redis struct {
		URL string `yaml:"url"`
	} `yaml:"redis"`
	Tracking struct {
		ProximityMeters float64 `yaml:"proximity_meters"`
		PingRetention   string  `yaml:"ping_retention"`
	} `yaml:"tracking"`
	Notify struct {
		MaxAttempts       int    `yaml:"max_attempts"`
		RetryBase         string `yaml:"retry_base"`
		RetryCap          string `yaml:"retry_cap"`
		SendTimeout       string `yaml:"send_timeout"`
		RetryPollInterval string `yaml:"retry_poll_interval"`
	} `yaml:"notify"`
}

// Load loads configuration from an optional YAML file (CONFIG_PATH) and
// environment variables, env taking precedence. JWT_SECRET is required.
func Load() (*Config, error) {
	cfg, err := load()
	if err != nil {
		return nil, err
	}
	if cfg.Auth.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable is not set; required for production")
	}
	return cfg, nil
}

// LoadWithDefaults is like Load but uses a safe default for JWT_SECRET in
// development. WARNING: Only use in development! Use Load() in production.
func LoadWithDefaults() (*Config, error) {
	cfg, err := load()
	if err != nil {
		return nil, err
	}
	if cfg.Auth.JWTSecret == "" {
		cfg.Auth.JWTSecret = "dev-secret-change-me"
	}
	return cfg, nil
}

func load() (*Config, error) {
	cfg := &Config{
		Database: DatabaseConfig{Path: "tracking.db"},
		HTTP:     HTTPConfig{Address: ":8080"},
		GRPC:     GRPCConfig{Address: ":50051"},
		Tracking: TrackingConfig{
			ProximityMeters: 150,
			PingRetention:   7 * 24 * time.Hour,
		},
		Notify: NotifyConfig{
			MaxAttempts:       5,
			RetryBase:         30 * time.Second,
			RetryCap:          1 * time.Hour,
			SendTimeout:       10 * time.Second,
			RetryPollInterval: 5 * time.Second,
		},
	}

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		if err := applyFile(cfg, path); err != nil {
			return nil, err
		}
	}

	cfg.Database.Path = getEnv("DB_PATH", cfg.Database.Path)
	cfg.HTTP.Address = getEnv("HTTP_ADDRESS", cfg.HTTP.Address)
	cfg.GRPC.Address = getEnv("GRPC_ADDRESS", cfg.GRPC.Address)
	cfg.Auth.JWTSecret = getEnv("JWT_SECRET", cfg.Auth.JWTSecret)
	cfg.Redis.URL = getEnv("REDIS_URL", cfg.Redis.URL)

	var err error
	if cfg.Tracking.ProximityMeters, err = getEnvFloat("PROXIMITY_METERS", cfg.Tracking.ProximityMeters); err != nil {
		return nil, err
	}
	if cfg.Tracking.PingRetention, err = getEnvDuration("PING_RETENTION", cfg.Tracking.PingRetention); err != nil {
		return nil, err
	}
	if cfg.Notify.MaxAttempts, err = getEnvInt("NOTIFY_MAX_ATTEMPTS", cfg.Notify.MaxAttempts); err != nil {
		return nil, err
	}
	if cfg.Notify.RetryBase, err = getEnvDuration("NOTIFY_RETRY_BASE", cfg.Notify.RetryBase); err != nil {
		return nil, err
	}
	if cfg.Notify.RetryCap, err = getEnvDuration("NOTIFY_RETRY_CAP", cfg.Notify.RetryCap); err != nil {
		return nil, err
	}
	if cfg.Notify.SendTimeout, err = getEnvDuration("NOTIFY_SEND_TIMEOUT", cfg.Notify.SendTimeout); err != nil {
		return nil, err
	}
	if cfg.Notify.RetryPollInterval, err = getEnvDuration("NOTIFY_RETRY_POLL", cfg.Notify.RetryPollInterval); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyFile(cfg *Config, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	if fc.Database.Path != "" {
		cfg.Database.Path = fc.Database.Path
	}
	if fc.HTTP.Address != "" {
		cfg.HTTP.Address = fc.HTTP.Address
	}
	if fc.GRPC.Address != "" {
		cfg.GRPC.Address = fc.GRPC.Address
	}
	if fc.Redis.URL != "" {
		cfg.Redis.URL = fc.Redis.URL
	}
	if fc.Tracking.ProximityMeters > 0 {
		cfg.Tracking.ProximityMeters = fc.Tracking.ProximityMeters
	}
	if err := applyFileDuration(&cfg.Tracking.PingRetention, fc.Tracking.PingRetention); err != nil {
		return err
	}
	if fc.Notify.MaxAttempts > 0 {
		cfg.Notify.MaxAttempts = fc.Notify.MaxAttempts
	}
	if err := applyFileDuration(&cfg.Notify.RetryBase, fc.Notify.RetryBase); err != nil {
		return err
	}
	if err := applyFileDuration(&cfg.Notify.RetryCap, fc.Notify.RetryCap); err != nil {
		return err
	}
	if err := applyFileDuration(&cfg.Notify.SendTimeout, fc.Notify.SendTimeout); err != nil {
		return err
	}
	if err := applyFileDuration(&cfg.Notify.RetryPollInterval, fc.Notify.RetryPollInterval); err != nil {
		return err
	}
	return nil
}

func applyFileDuration(dst *time.Duration, raw string) error {
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q in config file: %w", raw, err)
	}
	*dst = d
	return nil
}

// getEnv retrieves an environment variable with a default fallback.
func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}

// getEnvInt retrieves an environment variable as an integer with a default fallback.
func getEnvInt(key string, defaultVal int) (int, error) {
	if value, exists := os.LookupEnv(key); exists {
		intVal, err := strconv.Atoi(value)
		if err != nil {
			return 0, fmt.Errorf("invalid integer for %s: %w", key, err)
		}
		return intVal, nil
	}
	return defaultVal, nil
}

// getEnvFloat retrieves an environment variable as a float with a default fallback.
func getEnvFloat(key string, defaultVal float64) (float64, error) {
	if value, exists := os.LookupEnv(key); exists {
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid float for %s: %w", key, err)
		}
		return f, nil
	}
	return defaultVal, nil
}

// getEnvDuration retrieves an environment variable as a duration with a default fallback.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	if value, exists := os.LookupEnv(key); exists {
		d, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("invalid duration for %s: %w", key, err)
		}
		return d, nil
	}
	return defaultVal, nil
}

// String returns a string representation of the config (sensitive values are masked).
func (c *Config) String() string {
	return fmt.Sprintf("Config{DB: %s, HTTP: %s, gRPC: %s, Redis: %t, Auth: *** (masked) ***}",
		c.Database.Path, c.HTTP.Address, c.GRPC.Address, c.Redis.URL != "")
}
