package registry

import (
	"context"
	"fmt"

	"github.com/susu3304/falta1/internal/model"
)

type EventAPI interface {
	Event(ctx context.Context, eventID int64) (*model.Event, error)
	Events(ctx context.Context) ([]model.Event, error)
	CreateEvent(ctx context.Context, ev model.NewEvent) (*model.Event, error)
	DeleteEvent(ctx context.Context, eventID int64, credential string) error
}

// EventStore is the client view of event records.
type EventStore struct {
	api EventAPI
}

func NewEventStore(api EventAPI) *EventStore {
	return &EventStore{api: api}
}

func (s *EventStore) Get(ctx context.Context, eventID int64) (*model.Event, error) {
	return s.api.Event(ctx, eventID)
}

func (s *EventStore) List(ctx context.Context) ([]model.Event, error) {
	return s.api.Events(ctx)
}

func (s *EventStore) Create(ctx context.Context, ev model.NewEvent) (*model.Event, error) {
	if err := ev.Validate(); err != nil {
		return nil, err
	}
	return s.api.CreateEvent(ctx, ev)
}

// Delete removes the event and, through the authority, all its participants.
func (s *EventStore) Delete(ctx context.Context, eventID int64, credential string) error {
	if credential == "" {
		return &model.ValidationError{Field: "password", Reason: "must not be empty"}
	}
	if err := s.api.DeleteEvent(ctx, eventID, credential); err != nil {
		return fmt.Errorf("failed to delete event %d: %w", eventID, err)
	}
	return nil
}
