package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"soothe/internal/models"
)

// RecordDispatch inserts the dispatch ledger row for one (booking, index)
// pair. The unique constraint makes dispatch idempotent: a second attempt for
// the same pair reports ErrDuplicateDispatch so the candidate is not
// re-notified.
func (db *DB) RecordDispatch(ctx context.Context, d *models.Dispatch) error {
	query := `INSERT OR IGNORE INTO dispatches (booking_id, candidate_index, therapist_id, token, sent_at)
              VALUES (?, ?, ?, ?, ?)`
	result, err := db.ExecContext(ctx, query, d.BookingID, d.CandidateIndex, d.TherapistID, d.Token, d.SentAt)
	if err != nil {
		return fmt.Errorf("failed to record dispatch: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrDuplicateDispatch
	}
	return nil
}

// GetDispatchByToken resolves a response capability token back to the booking
// and candidate it was issued for.
func (db *DB) GetDispatchByToken(ctx context.Context, token string) (*models.Dispatch, error) {
	query := `SELECT booking_id, candidate_index, therapist_id, token, sent_at
              FROM dispatches WHERE token = ?`
	d := &models.Dispatch{}
	err := db.QueryRowContext(ctx, query, token).Scan(
		&d.BookingID, &d.CandidateIndex, &d.TherapistID, &d.Token, &d.SentAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDispatchNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get dispatch by token: %w", err)
	}
	return d, nil
}

// GetDispatches returns the ledger for one booking, oldest first.
func (db *DB) GetDispatches(ctx context.Context, bookingID string) ([]*models.Dispatch, error) {
	query := `SELECT booking_id, candidate_index, therapist_id, token, sent_at
              FROM dispatches WHERE booking_id = ? ORDER BY candidate_index ASC`
	rows, err := db.QueryContext(ctx, query, bookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to get dispatches: %w", err)
	}
	defer rows.Close()

	var dispatches []*models.Dispatch
	for rows.Next() {
		d := &models.Dispatch{}
		if err := rows.Scan(&d.BookingID, &d.CandidateIndex, &d.TherapistID, &d.Token, &d.SentAt); err != nil {
			return nil, fmt.Errorf("failed to scan dispatch: %w", err)
		}
		dispatches = append(dispatches, d)
	}
	return dispatches, rows.Err()
}
