// Package config loads server configuration from environment variables, with a
// .env file honored in development.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime settings for the ChatRelay server.
type Config struct {
	Port string
	Env  string

	// Gateway settings.
	AllowedOrigins  []string
	MaxMessageSize  int64
	RateLimitBurst  int
	RateLimitRefill time.Duration
	SendBufferSize  int

	// Router policy: close the connection after a rejected join instead of
	// letting the client retry with another name.
	DisconnectOnNameTaken bool

	ShutdownTimeout time.Duration
}

// Load reads configuration from the environment, loading a .env file first if
// one is present. Missing or malformed values fall back to defaults.
func Load() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		Port:                  getEnv("PORT", "8080"),
		Env:                   getEnv("ENV", "development"),
		AllowedOrigins:        parseOrigins(getEnv("ALLOWED_ORIGINS", "http://localhost:8080")),
		MaxMessageSize:        parseInt64(os.Getenv("MAX_MESSAGE_SIZE"), 512),
		RateLimitBurst:        parseInt(os.Getenv("RATE_LIMIT_BURST"), 5),
		RateLimitRefill:       parseSeconds(os.Getenv("RATE_LIMIT_REFILL_SECONDS"), time.Second),
		SendBufferSize:        parseInt(os.Getenv("SEND_BUFFER_SIZE"), 256),
		DisconnectOnNameTaken: getEnv("DISCONNECT_ON_NAME_TAKEN", "false") == "true",
		ShutdownTimeout:       parseSeconds(os.Getenv("SHUTDOWN_TIMEOUT_SECONDS"), 30*time.Second),
	}

	return cfg.sanitize()
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return ":" + c.Port
}

// sanitize replaces out-of-range values with defaults so the rest of the
// program never has to re-check them.
func (c *Config) sanitize() *Config {
	if c.Port == "" {
		c.Port = "8080"
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = 512
	}
	if c.RateLimitBurst <= 0 {
		c.RateLimitBurst = 5
	}
	if c.RateLimitRefill <= 0 {
		c.RateLimitRefill = time.Second
	}
	if c.SendBufferSize <= 0 {
		c.SendBufferSize = 256
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 30 * time.Second
	}
	return c
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseOrigins(origins string) []string {
	var parsed []string
	for _, part := range strings.Split(origins, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			parsed = append(parsed, part)
		}
	}
	return parsed
}

func parseInt(value string, defaultValue int) int {
	if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}

func parseInt64(value string, defaultValue int64) int64 {
	if parsed, err := strconv.ParseInt(value, 10, 64); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}

func parseSeconds(value string, defaultValue time.Duration) time.Duration {
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}
