package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"soothe/internal/models"
)

func (db *DB) CreateBooking(ctx context.Context, booking *models.Booking) error {
	order, err := json.Marshal(booking.CandidateOrder)
	if err != nil {
		return fmt.Errorf("failed to encode candidate order: %w", err)
	}

	query := `INSERT INTO bookings (
				id, customer_name, customer_email, customer_phone, address, lat, lon,
				service_type, duration_min, scheduled_at, parking, price,
				candidate_order, current_index, status, deadline,
				created_at, updated_at, version
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	now := time.Now()
	_, err = db.ExecContext(ctx, query,
		booking.ID,
		booking.Customer.Name,
		booking.Customer.Email,
		booking.Customer.Phone,
		booking.Customer.Address,
		booking.Customer.Location.Lat,
		booking.Customer.Location.Lon,
		booking.Service.ServiceType,
		booking.Service.DurationMin,
		booking.Service.ScheduledAt,
		booking.Service.Parking,
		booking.Service.Price,
		string(order),
		booking.CurrentIndex,
		booking.Status,
		booking.Deadline,
		now,
		now,
		1,
	)
	if err != nil {
		return fmt.Errorf("failed to create booking: %w", err)
	}

	booking.CreatedAt = now
	booking.UpdatedAt = now
	booking.Version = 1

	return nil
}

func (db *DB) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	query := `SELECT id, customer_name, customer_email, customer_phone, address, lat, lon,
	                 service_type, duration_min, scheduled_at, parking, price,
	                 candidate_order, current_index, status, winning_therapist, deadline,
	                 created_at, updated_at, version
              FROM bookings WHERE id = ?`
	return db.scanBooking(db.QueryRowContext(ctx, query, id))
}

// AcceptBooking is the single authoritative check-and-set for the at-most-one-
// winner rule: the update only lands while the booking is still pending on
// exactly the responding candidate's position.
func (db *DB) AcceptBooking(ctx context.Context, id, therapistID string, candidateIndex int) error {
	query := `UPDATE bookings
              SET status = ?, winning_therapist = ?, version = version + 1, updated_at = ?
              WHERE id = ? AND status = ? AND current_index = ?`
	result, err := db.ExecContext(ctx, query,
		models.StatusConfirmed, therapistID, time.Now(), id, models.StatusPending, candidateIndex)
	if err != nil {
		return fmt.Errorf("failed to accept booking: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return db.classifyMiss(ctx, id, candidateIndex)
	}
	return nil
}

// AdvanceBooking moves the cursor past candidateIndex after a decline or an
// elapsed deadline, arming the next candidate's deadline in the same update.
func (db *DB) AdvanceBooking(ctx context.Context, id string, candidateIndex int, deadline time.Time) error {
	query := `UPDATE bookings
              SET current_index = current_index + 1, deadline = ?, version = version + 1, updated_at = ?
              WHERE id = ? AND status = ? AND current_index = ?`
	result, err := db.ExecContext(ctx, query, deadline, time.Now(), id, models.StatusPending, candidateIndex)
	if err != nil {
		return fmt.Errorf("failed to advance booking: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return db.classifyMiss(ctx, id, candidateIndex)
	}
	return nil
}

// FinalizeBooking closes out a pending booking whose candidate order is
// exhausted (declined/expired). Guarded by the same cursor check as accepts.
func (db *DB) FinalizeBooking(ctx context.Context, id string, candidateIndex int, status string) error {
	query := `UPDATE bookings
              SET status = ?, version = version + 1, updated_at = ?
              WHERE id = ? AND status = ? AND current_index = ?`
	result, err := db.ExecContext(ctx, query, status, time.Now(), id, models.StatusPending, candidateIndex)
	if err != nil {
		return fmt.Errorf("failed to finalize booking: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return db.classifyMiss(ctx, id, candidateIndex)
	}
	return nil
}

// CancelBooking is the customer-initiated terminal transition; unlike the
// responder paths it does not care which candidate is current.
func (db *DB) CancelBooking(ctx context.Context, id string) error {
	query := `UPDATE bookings
              SET status = ?, version = version + 1, updated_at = ?
              WHERE id = ? AND status = ?`
	result, err := db.ExecContext(ctx, query, models.StatusCancelled, time.Now(), id, models.StatusPending)
	if err != nil {
		return fmt.Errorf("failed to cancel booking: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		if _, err := db.GetBooking(ctx, id); err != nil {
			return err
		}
		return ErrAlreadyResolved
	}
	return nil
}

func (db *DB) GetBookingsByDateRange(ctx context.Context, start, end time.Time) ([]*models.Booking, error) {
	query := `SELECT id, customer_name, customer_email, customer_phone, address, lat, lon,
	                 service_type, duration_min, scheduled_at, parking, price,
	                 candidate_order, current_index, status, winning_therapist, deadline,
	                 created_at, updated_at, version
              FROM bookings
              WHERE date(scheduled_at) >= ? AND date(scheduled_at) <= ?
              ORDER BY scheduled_at ASC`
	rows, err := db.QueryContext(ctx, query, start.Format("2006-01-02"), end.Format("2006-01-02"))
	if err != nil {
		return nil, fmt.Errorf("failed to get bookings by date range: %w", err)
	}
	defer rows.Close()

	var bookings []*models.Booking
	for rows.Next() {
		b, err := db.scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

// GetPendingBookings returns bookings still waiting on a candidate, used to
// re-arm deadlines after a restart.
func (db *DB) GetPendingBookings(ctx context.Context) ([]*models.Booking, error) {
	query := `SELECT id, customer_name, customer_email, customer_phone, address, lat, lon,
	                 service_type, duration_min, scheduled_at, parking, price,
	                 candidate_order, current_index, status, winning_therapist, deadline,
	                 created_at, updated_at, version
              FROM bookings WHERE status = ? ORDER BY created_at ASC`
	rows, err := db.QueryContext(ctx, query, models.StatusPending)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending bookings: %w", err)
	}
	defer rows.Close()

	var bookings []*models.Booking
	for rows.Next() {
		b, err := db.scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

// classifyMiss explains why a guarded update touched no rows.
func (db *DB) classifyMiss(ctx context.Context, id string, candidateIndex int) error {
	booking, err := db.GetBooking(ctx, id)
	if err != nil {
		return err
	}
	if booking.Terminal() {
		return ErrAlreadyResolved
	}
	if booking.CurrentIndex != candidateIndex {
		return ErrStaleResponder
	}
	return ErrAlreadyResolved
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (db *DB) scanBooking(row rowScanner) (*models.Booking, error) {
	b := &models.Booking{}
	var (
		orderJSON string
		winning   sql.NullString
		deadline  sql.NullTime
	)
	err := row.Scan(
		&b.ID, &b.Customer.Name, &b.Customer.Email, &b.Customer.Phone,
		&b.Customer.Address, &b.Customer.Location.Lat, &b.Customer.Location.Lon,
		&b.Service.ServiceType, &b.Service.DurationMin, &b.Service.ScheduledAt,
		&b.Service.Parking, &b.Service.Price,
		&orderJSON, &b.CurrentIndex, &b.Status, &winning, &deadline,
		&b.CreatedAt, &b.UpdatedAt, &b.Version,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBookingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan booking: %w", err)
	}

	if err := json.Unmarshal([]byte(orderJSON), &b.CandidateOrder); err != nil {
		return nil, fmt.Errorf("failed to decode candidate order: %w", err)
	}
	if winning.Valid {
		b.WinningTherapist = winning.String
	}
	if deadline.Valid {
		b.Deadline = deadline.Time
	}
	return b, nil
}
