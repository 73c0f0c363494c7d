package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/susu3304/falta1/internal/model"
)

// ListParticipants returns confirmed participants in confirmation order.
func (db *DB) ListParticipants(ctx context.Context, eventID int64) ([]model.Participant, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT txid, event_id, display_name, confirmed_at
         FROM participants WHERE event_id = $1
         ORDER BY confirmed_at, txid`,
		eventID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Participant{}
	for rows.Next() {
		var p model.Participant
		if err := rows.Scan(&p.TxID, &p.EventID, &p.DisplayName, &p.ConfirmedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ParticipantEvent returns the event a participant belongs to.
func (db *DB) ParticipantEvent(ctx context.Context, txID string) (int64, error) {
	var eventID int64
	err := db.pool.QueryRow(ctx, `SELECT event_id FROM participants WHERE txid = $1`, txID).Scan(&eventID)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, model.ErrNotFound
	}
	return eventID, err
}

func (db *DB) DeleteParticipant(ctx context.Context, txID string) error {
	ct, err := db.pool.Exec(ctx, `DELETE FROM participants WHERE txid = $1`, txID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}
