package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/falta1")
	t.Setenv("PIX_KEY", "pix@example.com")
	t.Setenv("PIX_WEBHOOK_SECRET", "whsec")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "stub", cfg.PixProvider)
	assert.Equal(t, 30*time.Minute, cfg.ChargeTTL)
	assert.Equal(t, 5, cfg.DeleteRatePerMinute)
	assert.Equal(t, "http://localhost:3000", cfg.PublicBaseURL)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing database", map[string]string{"DATABASE_URL": ""}},
		{"unknown provider", map[string]string{"PIX_PROVIDER": "paypal"}},
		{"efi without credentials", map[string]string{"PIX_PROVIDER": "efi"}},
		{"efi without webhook secret", map[string]string{
			"PIX_PROVIDER":       "efi",
			"EFI_CLIENT_ID":      "id",
			"EFI_CLIENT_SECRET":  "secret",
			"EFI_CERT_FILE":      "cert.pem",
			"EFI_KEY_FILE":       "key.pem",
			"PIX_WEBHOOK_SECRET": "",
		}},
		{"bad ttl", map[string]string{"CHARGE_TTL": "soon"}},
		{"discord half configured", map[string]string{"DISCORD_TOKEN": "abc"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("DATABASE_URL", "postgres://localhost/falta1")
			t.Setenv("PIX_KEY", "pix@example.com")
			t.Setenv("PIX_WEBHOOK_SECRET", "whsec")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoadClient(t *testing.T) {
	t.Setenv("FALTA1_API_URL", "https://falta1.example.com")
	t.Setenv("FALTA1_CHANNEL_URL", "")
	t.Setenv("FALTA1_SETTLEMENT_TIMEOUT", "5m")

	cfg, err := LoadClient()
	require.NoError(t, err)
	assert.Equal(t, "wss://falta1.example.com/ws", cfg.ChannelURL)
	assert.Equal(t, 5*time.Minute, cfg.SettlementTimeout)
	assert.Equal(t, 8, cfg.ChannelMaxAttempts)
	assert.Equal(t, "warn", cfg.TimeoutPolicy)
}

func TestExtractBaseURL(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"https://falta1.example.com/app/", "https://falta1.example.com"},
		{"not a url", "http://localhost:3000"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, extractBaseURL(tt.in))
	}
}
