package database

import (
	"context"
	"fmt"

	"github.com/marchkov/shuttle-backend/internal/models"
)

const (
	defaultRecordLimit = 50
	maxRecordLimit     = 500
)

// rideRecordsSchema creates the ride journal table
const rideRecordsSchema = `
	CREATE TABLE IF NOT EXISTS ride_records (
		id             UUID PRIMARY KEY,
		status         TEXT NOT NULL,
		directions     TEXT[] NOT NULL DEFAULT '{}',
		code_type      TEXT,
		route_name     TEXT,
		scheduled_at   TEXT,
		booking_id     INTEGER,
		booking_sub_id INTEGER,
		message        TEXT NOT NULL DEFAULT '',
		trigger        TEXT NOT NULL,
		client_ip      TEXT,
		device_type    TEXT,
		user_agent     TEXT,
		created_at     TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_ride_records_created_at ON ride_records (created_at DESC);
`

// RideRecordRepository handles ride journal database operations
type RideRecordRepository struct {
	db DB
}

// NewRideRecordRepository creates a new ride record repository
func NewRideRecordRepository(db DB) *RideRecordRepository {
	return &RideRecordRepository{db: db}
}

// EnsureSchema creates the ride_records table if it does not exist
func (r *RideRecordRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, rideRecordsSchema); err != nil {
		return fmt.Errorf("failed to create ride_records table: %w", err)
	}
	return nil
}

// Record inserts one journal row
func (r *RideRecordRepository) Record(ctx context.Context, record *models.RideRecord) error {
	query := `
		INSERT INTO ride_records (
			id, status, directions, code_type, route_name, scheduled_at,
			booking_id, booking_sub_id, message, trigger,
			client_ip, device_type, user_agent, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err := r.db.ExecContext(ctx, query,
		record.ID,
		record.Status,
		record.Directions,
		record.CodeType,
		record.RouteName,
		record.ScheduledAt,
		record.BookingID,
		record.BookingSubID,
		record.Message,
		record.Trigger,
		record.ClientIP,
		record.DeviceType,
		record.UserAgent,
		record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert ride record: %w", err)
	}
	return nil
}

// List returns the most recent journal rows, newest first
func (r *RideRecordRepository) List(ctx context.Context, limit int) ([]models.RideRecord, error) {
	if limit <= 0 {
		limit = defaultRecordLimit
	}
	if limit > maxRecordLimit {
		limit = maxRecordLimit
	}

	query := `
		SELECT id, status, directions, code_type, route_name, scheduled_at,
		       booking_id, booking_sub_id, message, trigger,
		       client_ip, device_type, user_agent, created_at
		FROM ride_records
		ORDER BY created_at DESC
		LIMIT $1
	`

	records := []models.RideRecord{}
	if err := r.db.SelectContext(ctx, &records, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list ride records: %w", err)
	}
	return records, nil
}
