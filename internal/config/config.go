package config

import (
	"errors"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	Port          string
	JWTSecret     string
	AllowedOrigin string
	LogLevel      string

	// Per-connection inbound message budget.
	MessageRate  float64
	MessageBurst int

	// Public URL pinged periodically so free-tier hosting does not put
	// the process to sleep. Empty disables the pinger.
	KeepAliveURL string
}

// Loads configuration from the environment, with .env as a convenience
// for local development.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:          getEnv("PORT", "8080"),
		JWTSecret:     os.Getenv("JWT_SECRET"),
		AllowedOrigin: getEnv("ALLOWED_ORIGIN", "*"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		MessageRate:   getEnvFloat("WS_MESSAGE_RATE", 50),
		MessageBurst:  getEnvInt("WS_MESSAGE_BURST", 100),
		KeepAliveURL:  os.Getenv("KEEPALIVE_URL"),
	}

	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
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
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			return f
		}
	}
	return fallback
}
