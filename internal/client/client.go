// Package client talks to the falta1 HTTP API on behalf of the
// participation core.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/susu3304/falta1/internal/model"
)

const userAgent = "falta1-cli/1.0 (+https://github.com/susu3304/falta1)"

type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
	}
}

// RequestPayment asks the API to issue a PIX charge for displayName.
func (c *Client) RequestPayment(ctx context.Context, eventID int64, displayName string) (model.PaymentRequest, error) {
	var req model.PaymentRequest
	body := map[string]string{"nome": displayName}
	if err := c.do(ctx, http.MethodPost, "/events/"+strconv.FormatInt(eventID, 10)+"/qrcode", body, &req); err != nil {
		return model.PaymentRequest{}, err
	}
	if req.EventID == 0 {
		req.EventID = eventID
	}
	if req.DisplayName == "" {
		req.DisplayName = displayName
	}
	return req, nil
}

func (c *Client) PaymentStatus(ctx context.Context, txID string) (model.PaymentStatus, error) {
	var msg model.StatusMessage
	if err := c.do(ctx, http.MethodGet, "/payments/"+url.PathEscape(txID), nil, &msg); err != nil {
		return "", err
	}
	return msg.Status, nil
}

// Participants returns the confirmed participants in confirmation order.
func (c *Client) Participants(ctx context.Context, eventID int64) ([]model.Participant, error) {
	var resp struct {
		Participants []model.Participant `json:"participants"`
	}
	if err := c.do(ctx, http.MethodGet, "/event/"+strconv.FormatInt(eventID, 10)+"/participants", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Participants, nil
}

func (c *Client) DeleteParticipant(ctx context.Context, txID, password string) error {
	body := map[string]string{"password": password}
	return c.do(ctx, http.MethodDelete, "/delete-participant/"+url.PathEscape(txID), body, nil)
}

func (c *Client) DeleteEvent(ctx context.Context, eventID int64, password string) error {
	body := map[string]string{"password": password}
	return c.do(ctx, http.MethodDelete, "/delete-event/"+strconv.FormatInt(eventID, 10), body, nil)
}

func (c *Client) Event(ctx context.Context, eventID int64) (*model.Event, error) {
	var ev model.Event
	if err := c.do(ctx, http.MethodGet, "/get-event/"+strconv.FormatInt(eventID, 10), nil, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

func (c *Client) Events(ctx context.Context) ([]model.Event, error) {
	var events []model.Event
	if err := c.do(ctx, http.MethodGet, "/get-events", nil, &events); err != nil {
		return nil, err
	}
	return events, nil
}

func (c *Client) CreateEvent(ctx context.Context, ev model.NewEvent) (*model.Event, error) {
	var created model.Event
	if err := c.do(ctx, http.MethodPost, "/create-event", ev, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func statusError(resp *http.Response) error {
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	text := strings.TrimSpace(string(msg))
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", model.ErrUnauthorized, text)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", model.ErrNotFound, text)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", model.ErrRateLimited, text)
	}
	return fmt.Errorf("api returned status %d: %s", resp.StatusCode, text)
}
