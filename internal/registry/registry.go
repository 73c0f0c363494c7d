// Package registry keeps the client's view of confirmed participants and
// events. It never infers a participant locally: the list only changes by
// re-reading the authority.
package registry

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/susu3304/falta1/internal/model"
	"golang.org/x/sync/singleflight"
)

type ParticipantAPI interface {
	Participants(ctx context.Context, eventID int64) ([]model.Participant, error)
	DeleteParticipant(ctx context.Context, txID, credential string) error
}

type Registry struct {
	api   ParticipantAPI
	group singleflight.Group

	mu    sync.RWMutex
	lists map[int64][]model.Participant
}

func New(api ParticipantAPI) *Registry {
	return &Registry{
		api:   api,
		lists: make(map[int64][]model.Participant),
	}
}

// Refresh re-reads the participants of eventID. Concurrent refreshes of the
// same event share one request.
func (r *Registry) Refresh(ctx context.Context, eventID int64) ([]model.Participant, error) {
	v, err, _ := r.group.Do(strconv.FormatInt(eventID, 10), func() (any, error) {
		ps, err := r.api.Participants(ctx, eventID)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.lists[eventID] = ps
		r.mu.Unlock()
		return ps, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to refresh participants: %w", err)
	}
	return clone(v.([]model.Participant)), nil
}

// Participants returns the list from the last successful refresh.
func (r *Registry) Participants(eventID int64) []model.Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return clone(r.lists[eventID])
}

// Remove deletes a participant after the authority verified credential. The
// cached list is left alone; callers refresh afterwards.
func (r *Registry) Remove(ctx context.Context, txID, credential string) error {
	if credential == "" {
		return &model.ValidationError{Field: "password", Reason: "must not be empty"}
	}
	if err := r.api.DeleteParticipant(ctx, txID, credential); err != nil {
		return fmt.Errorf("failed to remove participant %s: %w", txID, err)
	}
	return nil
}

func clone(ps []model.Participant) []model.Participant {
	if ps == nil {
		return nil
	}
	return append([]model.Participant(nil), ps...)
}
