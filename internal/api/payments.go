package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/logger"
	"github.com/gorilla/mux"
	"github.com/susu3304/falta1/internal/model"
	"github.com/susu3304/falta1/internal/pix"
)

const maxWebhookBody = 1 << 20

func (a *API) handleRequestPayment(w http.ResponseWriter, r *http.Request) {
	eventID, ok := eventIDVar(w, r)
	if !ok {
		return
	}
	var body struct {
		Nome string `json:"nome"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	name, err := model.NormalizeName(body.Nome)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ev, err := a.store.GetEvent(r.Context(), eventID)
	if err != nil {
		writeStoreError(w, err, "failed to get event")
		return
	}

	// Record the pending row before the charge becomes payable.
	ttl := a.config.ChargeTTL
	now := time.Now()
	req := model.PaymentRequest{
		TxID:        pix.NewTxID(),
		EventID:     eventID,
		DisplayName: name,
		IssuedAt:    now,
		ExpiresAt:   now.Add(ttl),
	}
	if err := a.store.InsertPaymentRequest(r.Context(), req); err != nil {
		writeStoreError(w, err, "failed to record charge")
		return
	}

	charge, err := a.provider.CreateCharge(r.Context(), pix.ChargeInput{
		TxID:        req.TxID,
		Amount:      ev.PerPersonShare(),
		Description: ev.Description,
		TTL:         ttl,
	})
	if err != nil {
		logger.Errorf("api: %s charge %s for event %d failed: %v", a.provider.Name(), req.TxID, eventID, err)
		if _, err := a.store.ExpirePayment(r.Context(), req.TxID); err != nil {
			logger.Warningf("api: failed to expire charge %s: %v", req.TxID, err)
		}
		http.Error(w, "failed to create charge", http.StatusBadGateway)
		return
	}
	req.BRCode = charge.BRCode
	if err := a.store.SetChargeCode(r.Context(), req.TxID, req.BRCode); err != nil {
		logger.Errorf("api: failed to store code for charge %s: %v", req.TxID, err)
	}
	if req.ChannelToken, err = a.channelToken(req.TxID, req.ExpiresAt); err != nil {
		logger.Errorf("api: %v", err)
		http.Error(w, "failed to create channel token", http.StatusInternalServerError)
		return
	}

	logger.Infof("api: charge %s issued for event %d", req.TxID, eventID)
	writeJSON(w, http.StatusOK, req)
}

func (a *API) handlePaymentStatus(w http.ResponseWriter, r *http.Request) {
	txID := mux.Vars(r)["txid"]
	status, err := a.store.PaymentStatus(r.Context(), txID)
	if err != nil {
		writeStoreError(w, err, "failed to get payment status")
		return
	}
	writeJSON(w, http.StatusOK, model.StatusMessage{TxID: txID, Status: status})
}

func (a *API) handlePixWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	headers := map[string]string{}
	for k, v := range r.Header {
		if len(v) > 0 {
			headers[strings.ToLower(k)] = v[0]
		}
	}

	settlements, err := a.provider.HandleWebhook(r.Context(), pix.Webhook{Body: body, Headers: headers, Query: r.URL.Query()})
	if err != nil {
		logger.Warningf("api: rejected %s webhook: %v", a.provider.Name(), err)
		if errors.Is(err, model.ErrUnauthorized) {
			http.Error(w, "invalid signature", http.StatusUnauthorized)
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	processed := 0
	for _, s := range settlements {
		if err := a.applySettlement(r.Context(), s); err != nil {
			// Non-2xx makes the PSP redeliver; applying is idempotent.
			logger.Errorf("api: failed to apply %s for %s: %v", s.Status, s.TxID, err)
			http.Error(w, "failed to apply settlement", http.StatusInternalServerError)
			return
		}
		processed++
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "processed": processed})
}

func (a *API) applySettlement(ctx context.Context, s pix.Settlement) error {
	switch s.Status {
	case model.StatusSettled:
		p, err := a.store.SettlePayment(ctx, s.TxID, s.PaidAt)
		if errors.Is(err, model.ErrNotFound) {
			logger.Warningf("api: settlement for unknown txid %s", s.TxID)
			return nil
		}
		if err != nil {
			return err
		}
		if p == nil {
			// Already settled; redelivery.
			return nil
		}
		logger.Infof("api: %s settled, %q confirmed for event %d", s.TxID, p.DisplayName, p.EventID)
		a.publish(ctx, model.StatusMessage{TxID: s.TxID, Status: model.StatusSettled})
		if a.announcer != nil {
			go a.announcer.AnnounceParticipant(context.Background(), *p)
		}
	case model.StatusExpired:
		expired, err := a.store.ExpirePayment(ctx, s.TxID)
		if err != nil {
			return err
		}
		if expired {
			a.publish(ctx, model.StatusMessage{TxID: s.TxID, Status: model.StatusExpired})
		}
	}
	return nil
}

func (a *API) publish(ctx context.Context, msg model.StatusMessage) {
	if err := a.broker.Publish(ctx, msg); err != nil {
		// Subscribers can still ask for the status.
		logger.Errorf("api: failed to publish %s for %s: %v", msg.Status, msg.TxID, err)
	}
}
