// Package pix issues PIX charges through a payment service provider and
// turns its webhooks into settlements.
package pix

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/susu3304/falta1/internal/config"
	"github.com/susu3304/falta1/internal/model"
)

type ChargeInput struct {
	TxID        string
	Amount      model.Money
	Description string
	TTL         time.Duration
}

type Charge struct {
	TxID   string
	BRCode string
}

type Settlement struct {
	TxID   string
	Status model.PaymentStatus
	PaidAt time.Time
}

// Webhook is the raw inbound PSP notification. Header keys are lower case.
type Webhook struct {
	Body    []byte
	Headers map[string]string
	Query   url.Values
}

type Provider interface {
	Name() string

	CreateCharge(ctx context.Context, in ChargeInput) (Charge, error)

	// HandleWebhook verifies the notification and returns the settlements it
	// carries.
	HandleWebhook(ctx context.Context, wh Webhook) ([]Settlement, error)
}

// NewTxID returns a fresh 32 character alphanumeric txid.
func NewTxID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func NewProvider(cfg *config.Config) (Provider, error) {
	merchant := Merchant{Key: cfg.PixKey, Name: cfg.PixMerchantName, City: cfg.PixMerchantCity}
	switch cfg.PixProvider {
	case "stub":
		return NewStub(cfg.PixWebhookSecret, merchant), nil
	case "efi":
		return NewEfi(EfiConfig{
			BaseURL:       cfg.EfiBaseURL,
			ClientID:      cfg.EfiClientID,
			ClientSecret:  cfg.EfiClientSecret,
			CertFile:      cfg.EfiCertFile,
			KeyFile:       cfg.EfiKeyFile,
			PixKey:        cfg.PixKey,
			WebhookSecret: cfg.PixWebhookSecret,
		})
	default:
		return nil, fmt.Errorf("unknown pix provider: %s", cfg.PixProvider)
	}
}
