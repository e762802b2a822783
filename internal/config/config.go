package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the configuration for the application.
type Config struct {
	GeminiAPIKey    string
	GroqAPIKey      string
	PrimaryProvider string
	ProviderTimeout time.Duration

	Port         string
	DatabasePath string

	RunTTL          time.Duration
	RunTimeout      time.Duration
	ResolverWorkers int

	// Store catalog
	CatalogURL    string
	CatalogAPIKey string
	CatalogKind   string
	CatalogRPS    float64

	// Telegram Config (optional)
	TelegramBotToken   string
	TelegramWebhookURL string
	TelegramChatID     int64

	// Voice session credentials (optional, degraded mode when both are empty)
	VoiceScopedKey string
	VoiceMasterKey string
}

// NewFromEnv creates a new Config object from environment variables.
// A .env file in the working directory is loaded first when present.
func NewFromEnv() (*Config, error) {
	_ = godotenv.Load()

	geminiAPIKey := os.Getenv("GEMINI_API_KEY")
	if geminiAPIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY environment variable not set")
	}

	groqAPIKey := os.Getenv("GROQ_API_KEY")
	if groqAPIKey == "" {
		return nil, fmt.Errorf("GROQ_API_KEY environment variable not set")
	}

	catalogURL := os.Getenv("CATALOG_API_URL")
	if catalogURL == "" {
		return nil, fmt.Errorf("CATALOG_API_URL environment variable not set")
	}

	cfg := &Config{
		GeminiAPIKey:       geminiAPIKey,
		GroqAPIKey:         groqAPIKey,
		PrimaryProvider:    envOr("PRIMARY_PROVIDER", "gemini"),
		Port:               envOr("PORT", "8080"),
		DatabasePath:       envOr("DATABASE_PATH", "data/meal-planner.db"),
		CatalogURL:         catalogURL,
		CatalogAPIKey:      os.Getenv("CATALOG_API_KEY"),
		CatalogKind:        envOr("CATALOG_KIND", "json"),
		TelegramBotToken:   os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramWebhookURL: os.Getenv("TELEGRAM_WEBHOOK_URL"),
		VoiceScopedKey:     os.Getenv("VOICE_SCOPED_KEY"),
		VoiceMasterKey:     os.Getenv("VOICE_MASTER_KEY"),
	}

	if cfg.PrimaryProvider != "gemini" && cfg.PrimaryProvider != "groq" {
		return nil, fmt.Errorf("PRIMARY_PROVIDER must be gemini or groq, got %q", cfg.PrimaryProvider)
	}
	if cfg.CatalogKind != "json" && cfg.CatalogKind != "html" {
		return nil, fmt.Errorf("CATALOG_KIND must be json or html, got %q", cfg.CatalogKind)
	}

	var err error
	if cfg.ProviderTimeout, err = durationEnv("PROVIDER_TIMEOUT", 60*time.Second); err != nil {
		return nil, err
	}
	if cfg.RunTTL, err = durationEnv("RUN_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.RunTimeout, err = durationEnv("RUN_TIMEOUT", 10*time.Minute); err != nil {
		return nil, err
	}
	if cfg.ResolverWorkers, err = intEnv("RESOLVER_WORKERS", 8); err != nil {
		return nil, err
	}
	if cfg.ResolverWorkers < 1 {
		return nil, fmt.Errorf("RESOLVER_WORKERS must be at least 1")
	}

	cfg.CatalogRPS = 5
	if v := os.Getenv("CATALOG_RPS"); v != "" {
		rps, err := strconv.ParseFloat(v, 64)
		if err != nil || rps <= 0 {
			return nil, fmt.Errorf("invalid CATALOG_RPS value %q", v)
		}
		cfg.CatalogRPS = rps
	}

	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid TELEGRAM_CHAT_ID value %q", v)
		}
		cfg.TelegramChatID = id
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s value %q", key, v)
	}
	return d, nil
}

func intEnv(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q", key, v)
	}
	return n, nil
}
