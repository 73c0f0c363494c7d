package pix

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/susu3304/falta1/internal/model"
)

func TestStubCreateCharge(t *testing.T) {
	p := NewStub("whsec", Merchant{Key: "pix@example.com", Name: "Falta1", City: "Recife"})

	ch, err := p.CreateCharge(context.Background(), ChargeInput{TxID: "T1", Amount: 1000})
	require.NoError(t, err)
	assert.Equal(t, "T1", ch.TxID)
	assert.Contains(t, ch.BRCode, "540510.00")

	_, err = p.CreateCharge(context.Background(), ChargeInput{})
	assert.Error(t, err)
}

func TestStubHandleWebhook(t *testing.T) {
	p := NewStub("whsec", Merchant{})
	body := []byte(`{"txid":"T1","status":"paid"}`)

	t.Run("valid signature", func(t *testing.T) {
		got, err := p.HandleWebhook(context.Background(), Webhook{
			Body:    body,
			Headers: map[string]string{"x-signature": Sign("whsec", body)},
		})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "T1", got[0].TxID)
		assert.Equal(t, model.StatusSettled, got[0].Status)
	})

	t.Run("bad signature", func(t *testing.T) {
		_, err := p.HandleWebhook(context.Background(), Webhook{
			Body:    body,
			Headers: map[string]string{"x-signature": Sign("other", body)},
		})
		assert.ErrorIs(t, err, model.ErrUnauthorized)
	})

	t.Run("missing signature", func(t *testing.T) {
		_, err := p.HandleWebhook(context.Background(), Webhook{Body: body, Headers: map[string]string{}})
		assert.ErrorIs(t, err, model.ErrUnauthorized)
	})

	t.Run("expired", func(t *testing.T) {
		b := []byte(`{"txid":"T2","status":"expired"}`)
		got, err := p.HandleWebhook(context.Background(), Webhook{
			Body:    b,
			Headers: map[string]string{"x-signature": Sign("whsec", b)},
		})
		require.NoError(t, err)
		assert.Equal(t, model.StatusExpired, got[0].Status)
	})

	for name, b := range map[string][]byte{
		"unknown status": []byte(`{"txid":"T2","status":"refunded"}`),
		"missing status": []byte(`{"txid":"T2"}`),
	} {
		t.Run(name, func(t *testing.T) {
			got, err := p.HandleWebhook(context.Background(), Webhook{
				Body:    b,
				Headers: map[string]string{"x-signature": Sign("whsec", b)},
			})
			assert.Error(t, err)
			assert.Empty(t, got)
		})
	}
}
