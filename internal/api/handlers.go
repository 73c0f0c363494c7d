package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/logger"
	"github.com/gorilla/mux"
	"github.com/susu3304/falta1/internal/auth"
	"github.com/susu3304/falta1/internal/model"
)

type eventResponse struct {
	model.Event
	PerPerson        model.Money `json:"per_person"`
	PerPersonDisplay string      `json:"per_person_display"`
}

func newEventResponse(ev model.Event) eventResponse {
	share := ev.PerPersonShare()
	return eventResponse{Event: ev, PerPerson: share, PerPersonDisplay: share.String()}
}

type credentialRequest struct {
	Password string `json:"password"`
}

func (a *API) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	var req model.NewEvent
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := req.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	hash, err := auth.HashSecret(req.Password)
	if err != nil {
		http.Error(w, "failed to create event", http.StatusInternalServerError)
		return
	}
	ev, err := a.store.CreateEvent(r.Context(), req, hash)
	if err != nil {
		logger.Errorf("api: %v", err)
		http.Error(w, "failed to create event", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, newEventResponse(*ev))
}

func (a *API) handleListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := a.store.ListEvents(r.Context())
	if err != nil {
		logger.Errorf("api: failed to list events: %v", err)
		http.Error(w, "failed to list events", http.StatusInternalServerError)
		return
	}
	out := make([]eventResponse, 0, len(events))
	for _, ev := range events {
		out = append(out, newEventResponse(ev))
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	eventID, ok := eventIDVar(w, r)
	if !ok {
		return
	}
	ev, err := a.store.GetEvent(r.Context(), eventID)
	if err != nil {
		writeStoreError(w, err, "failed to get event")
		return
	}
	writeJSON(w, http.StatusOK, newEventResponse(*ev))
}

func (a *API) handleDeleteEvent(w http.ResponseWriter, r *http.Request) {
	eventID, ok := eventIDVar(w, r)
	if !ok {
		return
	}
	if !a.checkEventSecret(w, r, eventID) {
		return
	}
	if err := a.store.DeleteEvent(r.Context(), eventID); err != nil {
		writeStoreError(w, err, "failed to delete event")
		return
	}
	logger.Infof("api: event %d deleted", eventID)
	writeJSON(w, http.StatusOK, map[string]string{"message": "event deleted"})
}

func (a *API) handleListParticipants(w http.ResponseWriter, r *http.Request) {
	eventID, ok := eventIDVar(w, r)
	if !ok {
		return
	}
	participants, err := a.store.ListParticipants(r.Context(), eventID)
	if err != nil {
		writeStoreError(w, err, "failed to list participants")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"participants": participants})
}

func (a *API) handleDeleteParticipant(w http.ResponseWriter, r *http.Request) {
	txID := mux.Vars(r)["txid"]
	eventID, err := a.store.ParticipantEvent(r.Context(), txID)
	if err != nil {
		writeStoreError(w, err, "failed to delete participant")
		return
	}
	if !a.checkEventSecret(w, r, eventID) {
		return
	}
	if err := a.store.DeleteParticipant(r.Context(), txID); err != nil {
		writeStoreError(w, err, "failed to delete participant")
		return
	}
	logger.Infof("api: participant %s removed from event %d", txID, eventID)
	writeJSON(w, http.StatusOK, map[string]string{"message": "participant deleted"})
}

// checkEventSecret verifies the {password} body against the event's
// deletion secret and writes the error response when it fails.
func (a *API) checkEventSecret(w http.ResponseWriter, r *http.Request, eventID int64) bool {
	var req credentialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Password == "" {
		http.Error(w, "password is required", http.StatusBadRequest)
		return false
	}
	hash, err := a.store.EventSecretHash(r.Context(), eventID)
	if err != nil {
		writeStoreError(w, err, "failed to verify password")
		return false
	}

	switch err := a.auth.Verify("event:"+strconv.FormatInt(eventID, 10), hash, req.Password); {
	case err == nil:
		return true
	case errors.Is(err, model.ErrRateLimited):
		w.Header().Set("Retry-After", "60")
		http.Error(w, "too many attempts", http.StatusTooManyRequests)
	default:
		http.Error(w, "wrong password", http.StatusUnauthorized)
	}
	return false
}

func eventIDVar(w http.ResponseWriter, r *http.Request) (int64, bool) {
	eventID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		http.Error(w, "invalid event id", http.StatusBadRequest)
		return 0, false
	}
	return eventID, true
}

func writeStoreError(w http.ResponseWriter, err error, msg string) {
	if errors.Is(err, model.ErrNotFound) {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	logger.Errorf("api: %s: %v", msg, err)
	http.Error(w, msg, http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warningf("api: failed to write response: %v", err)
	}
}
