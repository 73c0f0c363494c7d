package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/susu3304/falta1/internal/model"
)

// InsertPaymentRequest records a charge as pending. The BR Code may be
// empty and filled in later with SetChargeCode.
func (db *DB) InsertPaymentRequest(ctx context.Context, req model.PaymentRequest) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO payment_requests (txid, event_id, display_name, br_code, status, issued_at, expires_at)
         VALUES ($1, $2, $3, $4, 'pending', $5, $6)`,
		req.TxID, req.EventID, req.DisplayName, req.BRCode, req.IssuedAt, req.ExpiresAt,
	)
	if isForeignKeyViolation(err) {
		return model.ErrNotFound
	}
	return err
}

// SetChargeCode stores the payment instruction returned by the provider.
func (db *DB) SetChargeCode(ctx context.Context, txID, brCode string) error {
	ct, err := db.pool.Exec(ctx, `UPDATE payment_requests SET br_code = $2 WHERE txid = $1`, txID, brCode)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (db *DB) PaymentStatus(ctx context.Context, txID string) (model.PaymentStatus, error) {
	var status string
	err := db.pool.QueryRow(ctx, `SELECT status FROM payment_requests WHERE txid = $1`, txID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", model.ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return model.PaymentStatus(status), nil
}

// SettlePayment moves a pending charge to settled and inserts its
// participant in one transaction. It returns nil without error when the
// charge was already settled, so re-delivered webhooks are no-ops.
func (db *DB) SettlePayment(ctx context.Context, txID string, settledAt time.Time) (*model.Participant, error) {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var p model.Participant
	err = tx.QueryRow(ctx,
		`UPDATE payment_requests SET status = 'settled', settled_at = $2
         WHERE txid = $1 AND status <> 'settled'
         RETURNING event_id, display_name`,
		txID, settledAt,
	).Scan(&p.EventID, &p.DisplayName)
	if errors.Is(err, pgx.ErrNoRows) {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM payment_requests WHERE txid = $1)`, txID).Scan(&exists); err != nil {
			return nil, err
		}
		if !exists {
			return nil, model.ErrNotFound
		}
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to settle payment %s: %w", txID, err)
	}

	ct, err := tx.Exec(ctx,
		`INSERT INTO participants (txid, event_id, display_name, confirmed_at)
         VALUES ($1, $2, $3, $4)
         ON CONFLICT (txid) DO NOTHING`,
		txID, p.EventID, p.DisplayName, settledAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert participant %s: %w", txID, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	if ct.RowsAffected() == 0 {
		return nil, nil
	}
	p.TxID = txID
	p.ConfirmedAt = settledAt
	return &p, nil
}

// ExpireStalePayments marks pending charges past their expiry as expired
// and returns their txids.
func (db *DB) ExpireStalePayments(ctx context.Context, now time.Time) ([]string, error) {
	rows, err := db.pool.Query(ctx,
		`UPDATE payment_requests SET status = 'expired'
         WHERE status = 'pending' AND expires_at <= $1
         RETURNING txid`,
		now,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var txID string
		if err := rows.Scan(&txID); err != nil {
			return nil, err
		}
		out = append(out, txID)
	}
	return out, rows.Err()
}

// ExpirePayment marks a single pending charge as expired. It reports
// whether the charge was still pending.
func (db *DB) ExpirePayment(ctx context.Context, txID string) (bool, error) {
	ct, err := db.pool.Exec(ctx, `UPDATE payment_requests SET status = 'expired' WHERE txid = $1 AND status = 'pending'`, txID)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() > 0, nil
}
