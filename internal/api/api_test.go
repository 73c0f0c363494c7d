package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/susu3304/falta1/internal/auth"
	"github.com/susu3304/falta1/internal/config"
	"github.com/susu3304/falta1/internal/model"
	"github.com/susu3304/falta1/internal/notify"
	"github.com/susu3304/falta1/internal/pix"
)

const webhookSecret = "whsec"

type memStore struct {
	mu           sync.Mutex
	nextID       int64
	events       map[int64]model.Event
	hashes       map[int64]string
	requests     map[string]model.PaymentRequest
	statuses     map[string]model.PaymentStatus
	participants map[string]model.Participant
	insertErr    error
}

func newMemStore() *memStore {
	return &memStore{
		events:       map[int64]model.Event{},
		hashes:       map[int64]string{},
		requests:     map[string]model.PaymentRequest{},
		statuses:     map[string]model.PaymentStatus{},
		participants: map[string]model.Participant{},
	}
}

func (s *memStore) CreateEvent(ctx context.Context, ev model.NewEvent, secretHash string) (*model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	e := model.Event{ID: s.nextID, Description: ev.Description, Value: ev.Value, PeopleCount: ev.PeopleCount, CreatedAt: time.Now()}
	s.events[e.ID] = e
	s.hashes[e.ID] = secretHash
	return &e, nil
}

func (s *memStore) GetEvent(ctx context.Context, eventID int64) (*model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[eventID]
	if !ok {
		return nil, model.ErrNotFound
	}
	return &e, nil
}

func (s *memStore) ListEvents(ctx context.Context) ([]model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Event
	for _, e := range s.events {
		out = append(out, e)
	}
	return out, nil
}

func (s *memStore) EventSecretHash(ctx context.Context, eventID int64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.hashes[eventID]
	if !ok {
		return "", model.ErrNotFound
	}
	return h, nil
}

func (s *memStore) DeleteEvent(ctx context.Context, eventID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[eventID]; !ok {
		return model.ErrNotFound
	}
	delete(s.events, eventID)
	for k, p := range s.participants {
		if p.EventID == eventID {
			delete(s.participants, k)
		}
	}
	return nil
}

func (s *memStore) ListParticipants(ctx context.Context, eventID int64) ([]model.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.Participant{}
	for _, p := range s.participants {
		if p.EventID == eventID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ConfirmedAt.Before(out[j].ConfirmedAt) })
	return out, nil
}

func (s *memStore) ParticipantEvent(ctx context.Context, txID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.participants[txID]
	if !ok {
		return 0, model.ErrNotFound
	}
	return p.EventID, nil
}

func (s *memStore) DeleteParticipant(ctx context.Context, txID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.participants, txID)
	return nil
}

func (s *memStore) InsertPaymentRequest(ctx context.Context, req model.PaymentRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return s.insertErr
	}
	s.requests[req.TxID] = req
	s.statuses[req.TxID] = model.StatusPending
	return nil
}

func (s *memStore) SetChargeCode(ctx context.Context, txID, brCode string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[txID]
	if !ok {
		return model.ErrNotFound
	}
	req.BRCode = brCode
	s.requests[txID] = req
	return nil
}

func (s *memStore) PaymentStatus(ctx context.Context, txID string) (model.PaymentStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.statuses[txID]
	if !ok {
		return "", model.ErrNotFound
	}
	return st, nil
}

func (s *memStore) SettlePayment(ctx context.Context, txID string, settledAt time.Time) (*model.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[txID]
	if !ok {
		return nil, model.ErrNotFound
	}
	if s.statuses[txID] == model.StatusSettled {
		return nil, nil
	}
	s.statuses[txID] = model.StatusSettled
	p := model.Participant{TxID: txID, EventID: req.EventID, DisplayName: req.DisplayName, ConfirmedAt: settledAt}
	s.participants[txID] = p
	return &p, nil
}

func (s *memStore) ExpirePayment(ctx context.Context, txID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.statuses[txID] != model.StatusPending {
		return false, nil
	}
	s.statuses[txID] = model.StatusExpired
	return true, nil
}

// countingProvider wraps a provider, counts charges and can fail them.
type countingProvider struct {
	pix.Provider
	mu      sync.Mutex
	charges int
	err     error
}

func (p *countingProvider) CreateCharge(ctx context.Context, in pix.ChargeInput) (pix.Charge, error) {
	p.mu.Lock()
	p.charges++
	err := p.err
	p.mu.Unlock()
	if err != nil {
		return pix.Charge{}, err
	}
	return p.Provider.CreateCharge(ctx, in)
}

func (p *countingProvider) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.charges
}

type recordingAnnouncer struct {
	mu    sync.Mutex
	names []string
}

func (r *recordingAnnouncer) AnnounceParticipant(ctx context.Context, p model.Participant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names = append(r.names, p.DisplayName)
}

func (r *recordingAnnouncer) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.names)
}

type fixture struct {
	api       *API
	store     *memStore
	hub       *notify.Hub
	announcer *recordingAnnouncer
	provider  *countingProvider
	handler   http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := &config.Config{JWTSecret: "test-secret", ChargeTTL: 30 * time.Minute, WebBind: "127.0.0.1:0"}
	store := newMemStore()
	hub := notify.NewHub()
	announcer := &recordingAnnouncer{}
	provider := &countingProvider{Provider: pix.NewStub(webhookSecret, pix.Merchant{Key: "pix@example.com", Name: "Falta1", City: "Recife"})}
	a := New(cfg, Deps{
		Store:     store,
		Provider:  provider,
		Hub:       hub,
		Broker:    notify.NewMemoryBroker(hub),
		Auth:      auth.NewChecker(2),
		Announcer: announcer,
	})
	return &fixture{api: a, store: store, hub: hub, announcer: announcer, provider: provider, handler: a.Handler()}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	return w
}

func (f *fixture) createEvent(t *testing.T) model.Event {
	t.Helper()
	w := f.do(t, http.MethodPost, "/create-event", map[string]any{
		"description":  "Futebol de quinta",
		"value":        150.0,
		"people_count": 14,
		"password":     "s3cret",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var ev model.Event
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ev))
	return ev
}

func (f *fixture) requestPayment(t *testing.T, eventID int64, name string) model.PaymentRequest {
	t.Helper()
	w := f.do(t, http.MethodPost, "/events/"+itoa(eventID)+"/qrcode", map[string]string{"nome": name})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var req model.PaymentRequest
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &req))
	return req
}

func (f *fixture) settle(t *testing.T, txID string) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(pix.StubWebhook{TxID: txID, Status: "paid"})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/pix", bytes.NewReader(body))
	req.Header.Set("X-Signature", pix.Sign(webhookSecret, body))
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	return w
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}

func TestCreateAndGetEvent(t *testing.T) {
	f := newFixture(t)
	ev := f.createEvent(t)
	assert.Equal(t, model.Money(15000), ev.Value)

	w := f.do(t, http.MethodGet, "/get-event/"+itoa(ev.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got struct {
		Description string  `json:"description"`
		PerPerson   float64 `json:"per_person"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "Futebol de quinta", got.Description)
	assert.InDelta(t, 10.71, got.PerPerson, 0.001)

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/get-event/999", nil).Code)

	w = f.do(t, http.MethodGet, "/get-events", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []model.Event
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list, 1)
}

func TestCreateEventValidation(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name string
		body map[string]any
	}{
		{"no description", map[string]any{"value": 10.0, "people_count": 2, "password": "x"}},
		{"zero people", map[string]any{"description": "x", "value": 10.0, "people_count": 0, "password": "x"}},
		{"no password", map[string]any{"description": "x", "value": 10.0, "people_count": 2}},
		{"negative value", map[string]any{"description": "x", "value": -1.0, "people_count": 2, "password": "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/create-event", tt.body).Code)
		})
	}
}

func TestRequestPayment(t *testing.T) {
	f := newFixture(t)
	ev := f.createEvent(t)

	req := f.requestPayment(t, ev.ID, "  Ana ")
	assert.Len(t, req.TxID, 32)
	assert.Contains(t, req.BRCode, "540510.71")
	assert.NotEmpty(t, req.ChannelToken)
	assert.Equal(t, "Ana", req.DisplayName)
	assert.NoError(t, f.api.verifyChannelToken(req.ChannelToken, req.TxID))
	assert.Error(t, f.api.verifyChannelToken(req.ChannelToken, "other"))

	// Each attempt gets a fresh txid.
	again := f.requestPayment(t, ev.ID, "Ana")
	assert.NotEqual(t, req.TxID, again.TxID)

	w := f.do(t, http.MethodGet, "/payments/"+req.TxID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var st model.StatusMessage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	assert.Equal(t, model.StatusPending, st.Status)

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/events/"+itoa(ev.ID)+"/qrcode", map[string]string{"nome": "   "}).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodPost, "/events/999/qrcode", map[string]string{"nome": "Bo"}).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/payments/nope", nil).Code)
}

func TestRequestPaymentRecordsBeforeCharging(t *testing.T) {
	f := newFixture(t)
	ev := f.createEvent(t)

	f.store.insertErr = errors.New("connection reset")
	w := f.do(t, http.MethodPost, "/events/"+itoa(ev.ID)+"/qrcode", map[string]string{"nome": "Ana"})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Zero(t, f.provider.count(), "no charge may exist without a pending row")

	f.store.insertErr = nil
	req := f.requestPayment(t, ev.ID, "Ana")
	assert.Equal(t, 1, f.provider.count())
	assert.Equal(t, req.BRCode, f.store.requests[req.TxID].BRCode)
}

func TestRequestPaymentProviderFailureExpiresRow(t *testing.T) {
	f := newFixture(t)
	ev := f.createEvent(t)

	f.provider.err = errors.New("psp down")
	w := f.do(t, http.MethodPost, "/events/"+itoa(ev.ID)+"/qrcode", map[string]string{"nome": "Ana"})
	assert.Equal(t, http.StatusBadGateway, w.Code)

	require.Len(t, f.store.statuses, 1)
	for _, st := range f.store.statuses {
		assert.Equal(t, model.StatusExpired, st)
	}
}

func TestWebhookSettlesOnce(t *testing.T) {
	f := newFixture(t)
	ev := f.createEvent(t)
	req := f.requestPayment(t, ev.ID, "Ana")

	sub := f.hub.Subscribe(req.TxID)
	defer sub.Close()

	require.Equal(t, http.StatusOK, f.settle(t, req.TxID).Code)
	require.Equal(t, http.StatusOK, f.settle(t, req.TxID).Code)

	require.Len(t, sub.C, 1)
	assert.True(t, (<-sub.C).IsSettled())
	assert.Eventually(t, func() bool { return f.announcer.count() == 1 }, time.Second, 10*time.Millisecond)

	w := f.do(t, http.MethodGet, "/event/"+itoa(ev.ID)+"/participants", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Participants []model.Participant `json:"participants"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Participants, 1)
	assert.Equal(t, "Ana", resp.Participants[0].DisplayName)
	assert.Equal(t, req.TxID, resp.Participants[0].TxID)

	// Unknown txids are acknowledged so the PSP stops retrying.
	assert.Equal(t, http.StatusOK, f.settle(t, "unknown").Code)
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/pix", bytes.NewReader([]byte(`{"txid":"T1","status":"paid"}`)))
	req.Header.Set("X-Signature", "deadbeef")
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestDeleteEvent(t *testing.T) {
	f := newFixture(t)
	ev := f.createEvent(t)
	path := "/delete-event/" + itoa(ev.ID)

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodDelete, path, map[string]string{}).Code)
	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodDelete, path, map[string]string{"password": "nope"}).Code)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodDelete, path, map[string]string{"password": "s3cret"}).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/get-event/"+itoa(ev.ID), nil).Code)
}

func TestDeleteEventRateLimited(t *testing.T) {
	f := newFixture(t)
	ev := f.createEvent(t)
	path := "/delete-event/" + itoa(ev.ID)

	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodDelete, path, map[string]string{"password": "a"}).Code)
	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodDelete, path, map[string]string{"password": "b"}).Code)
	w := f.do(t, http.MethodDelete, path, map[string]string{"password": "s3cret"})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
}

func TestDeleteParticipant(t *testing.T) {
	f := newFixture(t)
	ev := f.createEvent(t)
	req := f.requestPayment(t, ev.ID, "Bo")
	require.Equal(t, http.StatusOK, f.settle(t, req.TxID).Code)

	path := "/delete-participant/" + req.TxID
	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodDelete, path, map[string]string{"password": "nope"}).Code)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodDelete, path, map[string]string{"password": "s3cret"}).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodDelete, path, map[string]string{"password": "s3cret"}).Code)

	ps, err := f.store.ListParticipants(context.Background(), ev.ID)
	require.NoError(t, err)
	assert.Empty(t, ps)
}
