package config

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	Port        string
	Env         string
	SQLitePath  string
	DatabaseURL string // PostgreSQL; takes precedence over SQLite when set
	RedisURL    string

	// AllowedOrigins gates CORS and websocket upgrades. Empty means any
	// origin (development).
	AllowedOrigins []string

	// AdminTokenHash is the bcrypt hash of the support-team bearer token.
	AdminTokenHash string

	// CleanupSecret gates the cleanup endpoint (X-Api-Key header).
	CleanupSecret string

	// UploadDir is where chat attachments are stored on disk.
	UploadDir string

	// Rate limiting
	RateLimitWhitelist []string // IPs or CIDRs exempt from rate limiting
}

// Load reads configuration from environment variables.
// In development, it loads from .env file if present.
// In production, it panics on missing required variables.
func Load() *Config {
	// Load .env file if it exists (for development)
	_ = godotenv.Load()

	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		Env:            getEnv("ENV", "development"),
		SQLitePath:     os.Getenv("SQLITE_PATH"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		RedisURL:       os.Getenv("REDIS_URL"),
		AdminTokenHash: os.Getenv("ADMIN_TOKEN_HASH"),
		CleanupSecret:  os.Getenv("CLEANUP_SECRET"),
		UploadDir:      getEnv("UPLOAD_DIR", "./data/uploads"),
	}

	cfg.AllowedOrigins = splitList(os.Getenv("ALLOWED_ORIGINS"))
	cfg.RateLimitWhitelist = splitList(os.Getenv("RATE_LIMIT_WHITELIST"))

	// In production, require the secrets and an explicit origin list
	if cfg.Env == "production" {
		if cfg.AdminTokenHash == "" {
			panic("ADMIN_TOKEN_HASH is required in production")
		}
		if cfg.CleanupSecret == "" {
			panic("CLEANUP_SECRET is required in production")
		}
		if len(cfg.AllowedOrigins) == 0 {
			panic("ALLOWED_ORIGINS is required in production")
		}
	}

	return cfg
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func splitList(value string) []string {
	var out []string
	for _, entry := range strings.Split(value, ",") {
		entry = strings.TrimSpace(entry)
		if entry != "" {
			out = append(out, entry)
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
