package api

import (
	"context"
	"net/http"
	"time"

	"github.com/google/logger"
	"github.com/gorilla/websocket"
	"github.com/susu3304/falta1/internal/model"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 512
)

type statusRequest struct {
	TxID string `json:"txId"`
}

// handleWebSocket pushes status messages for one txid. The client may send
// {"txId": ...} at any time to get the current status.
func (a *API) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	txID := r.URL.Query().Get("txid")
	if txID == "" {
		http.Error(w, "missing txid", http.StatusBadRequest)
		return
	}
	if err := a.verifyChannelToken(r.URL.Query().Get("token"), txID); err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warningf("api: websocket upgrade for %s failed: %v", txID, err)
		return
	}
	defer conn.Close()

	sub := a.hub.Subscribe(txID)
	defer sub.Close()

	requests := make(chan struct{}, 1)
	done := make(chan struct{})
	go readRequests(conn, txID, requests, done)

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	for {
		select {
		case msg, ok := <-sub.C:
			if !ok {
				return
			}
			if err := writeStatus(conn, msg); err != nil {
				return
			}
		case <-requests:
			status, err := a.store.PaymentStatus(ctx, txID)
			if err != nil {
				logger.Warningf("api: status lookup for %s failed: %v", txID, err)
				continue
			}
			if err := writeStatus(conn, model.StatusMessage{TxID: txID, Status: status}); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// readRequests owns the read side of conn. It closes done when the
// connection goes away.
func readRequests(conn *websocket.Conn, txID string, requests chan<- struct{}, done chan<- struct{}) {
	defer close(done)
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		var req statusRequest
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		if req.TxID != txID {
			logger.Warningf("api: ignoring status request for %q on channel of %s", req.TxID, txID)
			continue
		}
		select {
		case requests <- struct{}{}:
		default:
		}
	}
}

func writeStatus(conn *websocket.Conn, msg model.StatusMessage) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(msg)
}
