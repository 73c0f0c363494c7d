package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Database
	DatabaseURL string

	// Web Server
	WebBind       string
	PublicBaseURL string

	// PIX
	PixProvider      string
	PixKey           string
	PixMerchantName  string
	PixMerchantCity  string
	PixWebhookSecret string
	ChargeTTL        time.Duration

	// Efí PSP
	EfiBaseURL      string
	EfiClientID     string
	EfiClientSecret string
	EfiCertFile     string
	EfiKeyFile      string

	// Channel tokens
	JWTSecret string

	// Optional Redis broker for multi-instance deployments
	RedisURL string

	// Optional Discord announcer
	DiscordToken     string
	DiscordChannelID string

	// Failed credential attempts allowed per target and minute
	DeleteRatePerMinute int
}

func Load() (*Config, error) {
	// Load environment variables from .env if present (non-fatal if missing)
	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		WebBind:          getEnvDefault("WEB_BIND", "0.0.0.0:3000"),
		PublicBaseURL:    getEnvDefault("PUBLIC_BASE_URL", "http://localhost:3000"),
		PixProvider:      getEnvDefault("PIX_PROVIDER", "stub"),
		PixKey:           os.Getenv("PIX_KEY"),
		PixMerchantName:  getEnvDefault("PIX_MERCHANT_NAME", "FALTA1"),
		PixMerchantCity:  getEnvDefault("PIX_MERCHANT_CITY", "SAO PAULO"),
		PixWebhookSecret: os.Getenv("PIX_WEBHOOK_SECRET"),
		EfiBaseURL:       getEnvDefault("EFI_BASE_URL", "https://pix-h.api.efipay.com.br"),
		EfiClientID:      os.Getenv("EFI_CLIENT_ID"),
		EfiClientSecret:  os.Getenv("EFI_CLIENT_SECRET"),
		EfiCertFile:      os.Getenv("EFI_CERT_FILE"),
		EfiKeyFile:       os.Getenv("EFI_KEY_FILE"),
		JWTSecret:        getEnvDefault("JWT_SECRET", "dev-only-change-me"),
		RedisURL:         os.Getenv("REDIS_URL"),
		DiscordToken:     os.Getenv("DISCORD_TOKEN"),
		DiscordChannelID: os.Getenv("DISCORD_CHANNEL_ID"),
	}

	var err error
	if cfg.ChargeTTL, err = getEnvDuration("CHARGE_TTL", 30*time.Minute); err != nil {
		return nil, err
	}
	if cfg.DeleteRatePerMinute, err = getEnvInt("DELETE_RATE_PER_MINUTE", 5); err != nil {
		return nil, err
	}
	cfg.PublicBaseURL = extractBaseURL(cfg.PublicBaseURL)

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.PixKey == "" {
		return nil, fmt.Errorf("PIX_KEY is required")
	}
	switch cfg.PixProvider {
	case "stub":
		if cfg.PixWebhookSecret == "" {
			return nil, fmt.Errorf("PIX_WEBHOOK_SECRET is required for the stub provider")
		}
	case "efi":
		if cfg.EfiClientID == "" || cfg.EfiClientSecret == "" {
			return nil, fmt.Errorf("EFI_CLIENT_ID and EFI_CLIENT_SECRET are required for the efi provider")
		}
		if cfg.EfiCertFile == "" || cfg.EfiKeyFile == "" {
			return nil, fmt.Errorf("EFI_CERT_FILE and EFI_KEY_FILE are required for the efi provider")
		}
		if cfg.PixWebhookSecret == "" {
			return nil, fmt.Errorf("PIX_WEBHOOK_SECRET is required for the efi provider")
		}
	default:
		return nil, fmt.Errorf("unknown PIX_PROVIDER %q", cfg.PixProvider)
	}
	if (cfg.DiscordToken == "") != (cfg.DiscordChannelID == "") {
		return nil, fmt.Errorf("DISCORD_TOKEN and DISCORD_CHANNEL_ID must be set together")
	}

	return cfg, nil
}

// ClientConfig configures the participate and admin commands.
type ClientConfig struct {
	APIURL             string
	ChannelURL         string
	ChannelMaxAttempts int
	SettlementTimeout  time.Duration
	TimeoutPolicy      string
}

func LoadClient() (*ClientConfig, error) {
	_ = godotenv.Load()

	cfg := &ClientConfig{
		APIURL:        getEnvDefault("FALTA1_API_URL", "http://localhost:3000"),
		TimeoutPolicy: getEnvDefault("FALTA1_TIMEOUT_POLICY", "warn"),
	}
	cfg.ChannelURL = getEnvDefault("FALTA1_CHANNEL_URL", websocketURL(cfg.APIURL))

	var err error
	if cfg.ChannelMaxAttempts, err = getEnvInt("FALTA1_CHANNEL_MAX_ATTEMPTS", 8); err != nil {
		return nil, err
	}
	if cfg.SettlementTimeout, err = getEnvDuration("FALTA1_SETTLEMENT_TIMEOUT", 15*time.Minute); err != nil {
		return nil, err
	}
	return cfg, nil
}

func getEnvDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer", key)
	}
	return n, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%s must be a positive duration", key)
	}
	return d, nil
}

func extractBaseURL(raw string) string {
	// e.g., "https://falta1.example.com/" -> "https://falta1.example.com"
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "http://localhost:3000"
	}
	return fmt.Sprintf("%s://%s", parsed.Scheme, parsed.Host)
}

// websocketURL derives the push endpoint from the API base URL.
func websocketURL(apiURL string) string {
	u, err := url.Parse(apiURL)
	if err != nil || u.Host == "" {
		return "ws://localhost:3000/ws"
	}
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	return u.String()
}
