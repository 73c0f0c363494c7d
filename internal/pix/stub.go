package pix

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/susu3304/falta1/internal/model"
)

// Stub issues locally built BR Codes and accepts webhooks signed with
// X-Signature: hex(HMAC-SHA256(secret, body)). It is meant for development
// and tests.
type Stub struct {
	secret   string
	merchant Merchant
	now      func() time.Time
}

func NewStub(secret string, merchant Merchant) *Stub {
	return &Stub{secret: secret, merchant: merchant, now: time.Now}
}

func (p *Stub) Name() string { return "stub" }

func (p *Stub) CreateCharge(ctx context.Context, in ChargeInput) (Charge, error) {
	if in.TxID == "" {
		return Charge{}, fmt.Errorf("txid is required")
	}
	return Charge{
		TxID:   in.TxID,
		BRCode: BRCode(p.merchant, in.Amount, in.TxID, in.Description),
	}, nil
}

// StubWebhook is the body the stub provider accepts.
type StubWebhook struct {
	TxID   string `json:"txid"`
	Status string `json:"status"`
}

func (p *Stub) HandleWebhook(ctx context.Context, wh Webhook) ([]Settlement, error) {
	sig := wh.Headers["x-signature"]
	if sig == "" || !hmac.Equal([]byte(sig), []byte(Sign(p.secret, wh.Body))) {
		return nil, fmt.Errorf("%w: invalid signature", model.ErrUnauthorized)
	}

	var pl StubWebhook
	if err := json.Unmarshal(wh.Body, &pl); err != nil {
		return nil, fmt.Errorf("failed to decode webhook: %w", err)
	}
	if pl.TxID == "" {
		return nil, fmt.Errorf("webhook without txid")
	}

	var status model.PaymentStatus
	switch strings.ToLower(strings.TrimSpace(pl.Status)) {
	case "paid", "settled", "concluida":
		status = model.StatusSettled
	case "expired", "cancelled":
		status = model.StatusExpired
	default:
		return nil, fmt.Errorf("unknown webhook status %q", pl.Status)
	}
	return []Settlement{{TxID: pl.TxID, Status: status, PaidAt: p.now()}}, nil
}

// Sign returns the X-Signature value for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
