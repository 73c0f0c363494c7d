// Package api is the HTTP authority for events, participants and PIX
// charges.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/logger"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"github.com/susu3304/falta1/internal/auth"
	"github.com/susu3304/falta1/internal/config"
	"github.com/susu3304/falta1/internal/model"
	"github.com/susu3304/falta1/internal/notify"
	"github.com/susu3304/falta1/internal/pix"
)

type Store interface {
	CreateEvent(ctx context.Context, ev model.NewEvent, secretHash string) (*model.Event, error)
	GetEvent(ctx context.Context, eventID int64) (*model.Event, error)
	ListEvents(ctx context.Context) ([]model.Event, error)
	EventSecretHash(ctx context.Context, eventID int64) (string, error)
	DeleteEvent(ctx context.Context, eventID int64) error

	ListParticipants(ctx context.Context, eventID int64) ([]model.Participant, error)
	ParticipantEvent(ctx context.Context, txID string) (int64, error)
	DeleteParticipant(ctx context.Context, txID string) error

	InsertPaymentRequest(ctx context.Context, req model.PaymentRequest) error
	SetChargeCode(ctx context.Context, txID, brCode string) error
	PaymentStatus(ctx context.Context, txID string) (model.PaymentStatus, error)
	SettlePayment(ctx context.Context, txID string, settledAt time.Time) (*model.Participant, error)
	ExpirePayment(ctx context.Context, txID string) (bool, error)
}

// Announcer is told about every newly confirmed participant.
type Announcer interface {
	AnnounceParticipant(ctx context.Context, p model.Participant)
}

type Deps struct {
	Store     Store
	Provider  pix.Provider
	Hub       *notify.Hub
	Broker    notify.Broker
	Auth      *auth.Checker
	Announcer Announcer
}

type API struct {
	router    *mux.Router
	store     Store
	provider  pix.Provider
	hub       *notify.Hub
	broker    notify.Broker
	auth      *auth.Checker
	announcer Announcer
	config    *config.Config
	jwtSecret []byte
	upgrader  websocket.Upgrader
	server    *http.Server
}

func New(cfg *config.Config, deps Deps) *API {
	api := &API{
		router:    mux.NewRouter(),
		store:     deps.Store,
		provider:  deps.Provider,
		hub:       deps.Hub,
		broker:    deps.Broker,
		auth:      deps.Auth,
		announcer: deps.Announcer,
		config:    cfg,
		jwtSecret: []byte(cfg.JWTSecret),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Browsers connect from the web client's origin; the channel
			// token scopes what they can see.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	api.setupRoutes()
	api.server = &http.Server{
		Addr:              cfg.WebBind,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return api
}

func (a *API) setupRoutes() {
	// Events
	a.router.HandleFunc("/create-event", a.handleCreateEvent).Methods("POST")
	a.router.HandleFunc("/get-events", a.handleListEvents).Methods("GET")
	a.router.HandleFunc("/get-event/{id:[0-9]+}", a.handleGetEvent).Methods("GET")
	a.router.HandleFunc("/delete-event/{id:[0-9]+}", a.handleDeleteEvent).Methods("DELETE")

	// Participants
	a.router.HandleFunc("/event/{id:[0-9]+}/participants", a.handleListParticipants).Methods("GET")
	a.router.HandleFunc("/delete-participant/{txid}", a.handleDeleteParticipant).Methods("DELETE")

	// Payments
	a.router.HandleFunc("/events/{id:[0-9]+}/qrcode", a.handleRequestPayment).Methods("POST")
	a.router.HandleFunc("/payments/{txid}", a.handlePaymentStatus).Methods("GET")
	a.router.HandleFunc("/webhooks/pix", a.handlePixWebhook).Methods("POST")

	// Push channel
	a.router.HandleFunc("/ws", a.handleWebSocket).Methods("GET")

	a.router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}).Methods("GET")
}

// Handler returns the router wrapped with CORS for the web client.
func (a *API) Handler() http.Handler {
	// Allow all origins; no cookies are involved, so credentials stay off.
	corsOptions := cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: false,
	}
	return cors.New(corsOptions).Handler(a.router)
}

func (a *API) Start() error {
	logger.Infof("api: listening on http://%s (pix provider %s)", a.config.WebBind, a.provider.Name())
	if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (a *API) Shutdown(ctx context.Context) error {
	return a.server.Shutdown(ctx)
}
