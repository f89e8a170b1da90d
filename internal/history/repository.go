package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/nerrad567/nhc-bridge/internal/infrastructure/database"
)

const (
	defaultQueryLimit = 50
	maxQueryLimit     = 500
)

// Entry is one recorded property value of a device.
type Entry struct {
	ID           int64     `json:"id"`
	ControllerID string    `json:"controller_id"`
	UUID         string    `json:"uuid"`
	DeviceName   string    `json:"device_name,omitempty"`
	Property     string    `json:"property"`
	Value        string    `json:"value"`
	RecordedAt   time.Time `json:"recorded_at"`
}

func (e Entry) validate() error {
	if e.ControllerID == "" || e.UUID == "" || e.Property == "" {
		return fmt.Errorf("%w: controller, uuid and property are required", ErrInvalidEntry)
	}
	return nil
}

// Query selects history entries. ControllerID and UUID are required;
// Property narrows to one key when set.
type Query struct {
	ControllerID string
	UUID         string
	Property     string
	Since        time.Time
	Limit        int
}

// Repository stores and retrieves property history.
//
// Implementations must be thread-safe and use UTC timestamps.
type Repository interface {
	// Insert stores entries atomically.
	Insert(ctx context.Context, entries []Entry) error

	// Find returns matching entries, newest first.
	Find(ctx context.Context, q Query) ([]Entry, error)

	// Prune deletes entries recorded before cutoff and returns how many.
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
}

// SQLiteRepository implements Repository on the property_history table.
type SQLiteRepository struct {
	db *database.DB
}

// NewSQLiteRepository creates a repository on a migrated database.
func NewSQLiteRepository(db *database.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Insert stores entries in a single transaction. Entries with a zero
// RecordedAt are stamped with the current time.
func (r *SQLiteRepository) Insert(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	for _, e := range entries {
		if err := e.validate(); err != nil {
			return err
		}
	}

	now := time.Now().UTC()
	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO property_history
			 (controller_id, device_uuid, device_name, property, value, recorded_at)
			 VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("preparing history insert: %w", err)
		}
		defer stmt.Close()

		for _, e := range entries {
			at := e.RecordedAt
			if at.IsZero() {
				at = now
			}
			if _, err := stmt.ExecContext(ctx,
				e.ControllerID, e.UUID, e.DeviceName, e.Property, e.Value, at.UTC().UnixMilli(),
			); err != nil {
				return fmt.Errorf("inserting history entry: %w", err)
			}
		}
		return nil
	})
}

// Find returns history entries for one device ordered newest first.
// Limit defaults to 50 and is capped at 500.
func (r *SQLiteRepository) Find(ctx context.Context, q Query) ([]Entry, error) {
	if q.ControllerID == "" || q.UUID == "" {
		return nil, fmt.Errorf("%w: controller and uuid are required", ErrInvalidEntry)
	}
	limit := clampLimit(q.Limit)

	query := `SELECT id, controller_id, device_uuid, device_name, property, value, recorded_at
		FROM property_history
		WHERE controller_id = ? AND device_uuid = ?`
	args := []any{q.ControllerID, q.UUID}
	if q.Property != "" {
		query += " AND property = ?"
		args = append(args, q.Property)
	}
	if !q.Since.IsZero() {
		query += " AND recorded_at >= ?"
		args = append(args, q.Since.UTC().UnixMilli())
	}
	query += " ORDER BY recorded_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying property history: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		var e Entry
		var recordedAt int64
		if err := rows.Scan(&e.ID, &e.ControllerID, &e.UUID, &e.DeviceName, &e.Property, &e.Value, &recordedAt); err != nil {
			return nil, fmt.Errorf("scanning property history: %w", err)
		}
		e.RecordedAt = time.UnixMilli(recordedAt).UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating property history: %w", err)
	}
	return entries, nil
}

// Prune deletes entries recorded before cutoff.
func (r *SQLiteRepository) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM property_history WHERE recorded_at < ?",
		cutoff.UTC().UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("deleting property history: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultQueryLimit
	}
	if limit > maxQueryLimit {
		return maxQueryLimit
	}
	return limit
}
