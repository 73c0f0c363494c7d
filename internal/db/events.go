package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/susu3304/falta1/internal/model"
)

const eventColumns = `id, description, modality, value_cents, people_count, address, date, image, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (model.Event, error) {
	var ev model.Event
	var cents int64
	err := row.Scan(&ev.ID, &ev.Description, &ev.Modality, &cents, &ev.PeopleCount, &ev.Address, &ev.Date, &ev.Image, &ev.CreatedAt)
	ev.Value = model.Money(cents)
	return ev, err
}

// CreateEvent stores a new event. secretHash is the bcrypt hash of the
// deletion secret; the plaintext never reaches the database.
func (db *DB) CreateEvent(ctx context.Context, ev model.NewEvent, secretHash string) (*model.Event, error) {
	row := db.pool.QueryRow(ctx,
		`INSERT INTO events (description, modality, value_cents, people_count, address, date, image, deletion_secret_hash)
         VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
         RETURNING `+eventColumns,
		ev.Description, ev.Modality, int64(ev.Value), ev.PeopleCount, ev.Address, ev.Date, ev.Image, secretHash,
	)
	created, err := scanEvent(row)
	if err != nil {
		return nil, fmt.Errorf("failed to create event: %w", err)
	}
	return &created, nil
}

// GetEvent returns model.ErrNotFound when the event does not exist.
func (db *DB) GetEvent(ctx context.Context, eventID int64) (*model.Event, error) {
	ev, err := scanEvent(db.pool.QueryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1`, eventID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, err
	}
	return &ev, nil
}

func (db *DB) ListEvents(ctx context.Context) ([]model.Event, error) {
	rows, err := db.pool.Query(ctx, `SELECT `+eventColumns+` FROM events ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Event{}
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// EventSecretHash returns the stored deletion secret hash of an event.
func (db *DB) EventSecretHash(ctx context.Context, eventID int64) (string, error) {
	var hash string
	err := db.pool.QueryRow(ctx, `SELECT deletion_secret_hash FROM events WHERE id = $1`, eventID).Scan(&hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", model.ErrNotFound
	}
	return hash, err
}

// DeleteEvent removes an event. Payment requests and participants go with it
// through ON DELETE CASCADE.
func (db *DB) DeleteEvent(ctx context.Context, eventID int64) error {
	ct, err := db.pool.Exec(ctx, `DELETE FROM events WHERE id = $1`, eventID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}
