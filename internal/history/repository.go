// Package history keeps an append-only log of dialog lifecycle transitions
// for the service screen, and mirrors them to InfluxDB when telemetry is on.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Action is a dialog lifecycle transition.
type Action string

// Recorded actions.
const (
	ActionOpened   Action = "opened"
	ActionReplaced Action = "replaced"
	ActionClosed   Action = "closed"
)

// Record is one row of dialog_history.
type Record struct {
	ID           string    `json:"id"`
	DialogID     string    `json:"dialog_id"`
	Kind         string    `json:"kind,omitempty"`
	InstrumentID string    `json:"instrument_id,omitempty"`
	Action       Action    `json:"action"`
	Pending      int       `json:"pending"`
	CreatedAt    time.Time `json:"created_at"`
}

// Filter controls which records List returns.
type Filter struct {
	InstrumentID string // optional
	DialogID     string // optional
	Limit        int    // default 50, max 500
}

// timeLayout is fixed-width so created_at sorts lexically in SQLite.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Page size limits for List.
const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// Repository defines the interface for dialog history persistence.
type Repository interface {
	Append(ctx context.Context, rec *Record) error
	List(ctx context.Context, filter Filter) ([]Record, error)
}

// SQLiteRepository implements Repository on the dialog_history table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Append inserts a record. The ID and CreatedAt are generated if empty.
func (r *SQLiteRepository) Append(ctx context.Context, rec *Record) error {
	if rec.ID == "" {
		rec.ID = "dlg-" + uuid.NewString()[:8]
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO dialog_history (id, dialog_id, kind, instrument_id, action, pending, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.DialogID, rec.Kind, rec.InstrumentID,
		string(rec.Action), rec.Pending,
		rec.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting dialog history: %w", err)
	}
	return nil
}

// List returns matching records, most recent first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) ([]Record, error) {
	filter.Limit = clampLimit(filter.Limit)

	var conditions []string
	var args []any
	if filter.InstrumentID != "" {
		conditions = append(conditions, "instrument_id = ?")
		args = append(args, filter.InstrumentID)
	}
	if filter.DialogID != "" {
		conditions = append(conditions, "dialog_id = ?")
		args = append(args, filter.DialogID)
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	query := fmt.Sprintf( //nolint:gosec // WHERE built from parameterised conditions, not user input
		`SELECT id, dialog_id, kind, instrument_id, action, pending, created_at
		 FROM dialog_history %s ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		where,
	)
	args = append(args, filter.Limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying dialog history: %w", err)
	}
	defer rows.Close()

	records := make([]Record, 0, filter.Limit)
	for rows.Next() {
		var rec Record
		var action, createdAt string
		if err := rows.Scan(&rec.ID, &rec.DialogID, &rec.Kind, &rec.InstrumentID,
			&action, &rec.Pending, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning dialog history: %w", err)
		}
		rec.Action = Action(action)

		t, err := time.Parse(timeLayout, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing dialog history timestamp %q: %w", createdAt, err)
		}
		rec.CreatedAt = t

		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating dialog history: %w", err)
	}
	return records, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}
