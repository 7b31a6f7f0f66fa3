package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type DatabaseConfig struct {
	Driver     string // postgres or sqlite
	Host       string
	Port       string
	User       string
	Password   string
	Name       string
	SSLMode    string
	SQLitePath string
}

// DSN builds the connection string for the configured driver.
func (c DatabaseConfig) DSN() string {
	if c.Driver == "sqlite" {
		return c.SQLitePath
	}
	return "postgres://" + c.User + ":" + c.Password + "@" + c.Host + ":" + c.Port + "/" + c.Name + "?sslmode=" + c.SSLMode
}

type LoggerConfig struct {
	Level      string
	Format     string // json or console
	Output     string // stdout or file
	FilePath   string
	MaxSize    int
	MaxBackups int
	MaxAge     int
	Compress   bool
	Color      bool
	TimeFormat string
}

type AuthConfig struct {
	JWTSecret []byte
	TokenTTL  time.Duration
}

type MetricsConfig struct {
	Namespace string
	Buckets   []float64
}

type SeedConfig struct {
	SuperuserEmail    string
	SuperuserPassword string
}

type Config struct {
	Port        string
	ReleaseMode bool
	CORSOrigins []string
	Database    DatabaseConfig
	Logger      LoggerConfig
	Auth        AuthConfig
	Metrics     MetricsConfig
	Seed        SeedConfig
}

const devJWTSecret = "default_super_secret_key"

// Load reads configs/.env when present, then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load("configs/.env")

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		ReleaseMode: os.Getenv("GIN_MODE") == "release",
		CORSOrigins: splitList(getEnv("CORS_ORIGINS", "http://localhost:5173,http://127.0.0.1:5173")),
		Database: DatabaseConfig{
			Driver:     strings.ToLower(getEnv("DB_DRIVER", "postgres")),
			Host:       getEnv("DB_HOST", "localhost"),
			Port:       getEnv("DB_PORT", "5432"),
			User:       getEnv("DB_USER", "postgres"),
			Password:   getEnv("DB_PASSWORD", "postgres"),
			Name:       getEnv("DB_NAME", "postgres"),
			SSLMode:    getEnv("DB_SSLMODE", "disable"),
			SQLitePath: getEnv("SQLITE_PATH", "data/restaurant.db"),
		},
		Logger: LoggerConfig{
			Level:      getEnv("LOG_LEVEL", "info"),
			Format:     getEnv("LOG_FORMAT", "json"),
			Output:     getEnv("LOG_OUTPUT", "stdout"),
			FilePath:   getEnv("LOG_FILE", "logs/api.log"),
			MaxSize:    getEnvInt("LOG_MAX_SIZE", 100),
			MaxBackups: getEnvInt("LOG_MAX_BACKUPS", 3),
			MaxAge:     getEnvInt("LOG_MAX_AGE", 7),
			Compress:   getEnv("LOG_COMPRESS", "false") == "true",
			Color:      getEnv("LOG_COLOR", "false") == "true",
		},
		Metrics: MetricsConfig{
			Namespace: getEnv("METRICS_NAMESPACE", "restaurant"),
		},
		Seed: SeedConfig{
			SuperuserEmail:    os.Getenv("SUPERUSER_EMAIL"),
			SuperuserPassword: os.Getenv("SUPERUSER_PASSWORD"),
		},
	}

	ttl, err := time.ParseDuration(getEnv("JWT_TTL", "24h"))
	if err != nil {
		return nil, fmt.Errorf("invalid JWT_TTL: %w", err)
	}
	cfg.Auth.TokenTTL = ttl

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		if cfg.ReleaseMode {
			return nil, errors.New("JWT_SECRET is required in release mode")
		}
		secret = devJWTSecret
	}
	cfg.Auth.JWTSecret = []byte(secret)

	if cfg.Database.Driver != "postgres" && cfg.Database.Driver != "sqlite" {
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.Database.Driver)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
