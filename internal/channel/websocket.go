package channel

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/susu3304/falta1/internal/model"
)

const (
	writeWait   = 10 * time.Second
	readTimeout = 90 * time.Second
)

// WebSocketTransport dials the authority's /ws endpoint. URL is the
// per-deployment channel endpoint, e.g. "wss://api.example.com/ws".
type WebSocketTransport struct {
	URL    string
	Dialer *websocket.Dialer
	Header http.Header
}

type statusRequest struct {
	TxID string `json:"txId"`
}

func (t *WebSocketTransport) Dial(ctx context.Context, txID, token string) (Conn, error) {
	u, err := url.Parse(t.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid channel url: %w", err)
	}
	q := u.Query()
	q.Set("txid", txID)
	if token != "" {
		q.Set("token", token)
	}
	u.RawQuery = q.Encode()

	dialer := t.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	c, resp, err := dialer.DialContext(ctx, u.String(), t.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: status %d: %w", u.Host, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dial %s: %w", u.Host, err)
	}

	c.SetPingHandler(func(data string) error {
		_ = c.SetReadDeadline(time.Now().Add(readTimeout))
		return c.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
	})
	_ = c.SetReadDeadline(time.Now().Add(readTimeout))
	return &wsConn{c: c}, nil
}

type wsConn struct {
	c         *websocket.Conn
	closeOnce sync.Once
}

func (w *wsConn) RequestStatus(txID string) error {
	_ = w.c.SetWriteDeadline(time.Now().Add(writeWait))
	return w.c.WriteJSON(statusRequest{TxID: txID})
}

func (w *wsConn) Read() (model.StatusMessage, error) {
	var msg model.StatusMessage
	if err := w.c.ReadJSON(&msg); err != nil {
		return model.StatusMessage{}, err
	}
	_ = w.c.SetReadDeadline(time.Now().Add(readTimeout))
	return msg, nil
}

func (w *wsConn) Close() error {
	var err error
	w.closeOnce.Do(func() {
		err = w.c.Close()
	})
	return err
}
