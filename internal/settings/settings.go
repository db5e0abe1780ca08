// Package settings provides the feature toggles that gate dialog producers.
//
// Toggles live in SQLite and are read once when an orchestration scope
// starts; producers consult the resulting Snapshot synchronously when
// deciding whether to open a dialog. A change made through the API takes
// effect on the next scope.
package settings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Toggle keys known to the dialog producers.
const (
	ToggleWaitingDialogs     = "waiting_dialogs"
	ToggleMaintenanceDialogs = "maintenance_dialogs"
	ToggleQCDialogs          = "qc_dialogs"
	ToggleSampleReminder     = "sample_reminder"
)

// ErrToggleNotFound is returned for a key with no row in feature_toggles.
var ErrToggleNotFound = errors.New("settings: toggle not found")

// Toggle is one feature toggle.
type Toggle struct {
	Key         string    `json:"key"`
	Enabled     bool      `json:"enabled"`
	Description string    `json:"description"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Repository defines the interface for toggle persistence.
type Repository interface {
	List(ctx context.Context) ([]Toggle, error)
	Set(ctx context.Context, key string, enabled bool) (Toggle, error)
}

// SQLiteRepository implements Repository on the feature_toggles table.
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

// List returns every toggle ordered by key.
func (r *SQLiteRepository) List(ctx context.Context) ([]Toggle, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT key, enabled, description, updated_at FROM feature_toggles ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("querying feature toggles: %w", err)
	}
	defer rows.Close()

	var toggles []Toggle
	for rows.Next() {
		t, err := scanToggle(rows)
		if err != nil {
			return nil, err
		}
		toggles = append(toggles, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating feature toggles: %w", err)
	}
	return toggles, nil
}

// Set enables or disables an existing toggle and returns the stored row.
func (r *SQLiteRepository) Set(ctx context.Context, key string, enabled bool) (Toggle, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE feature_toggles SET enabled = ?, updated_at = ? WHERE key = ?`,
		boolToInt(enabled), r.now().UTC().Format(time.RFC3339), key)
	if err != nil {
		return Toggle{}, fmt.Errorf("updating toggle %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Toggle{}, fmt.Errorf("updating toggle %s: %w", key, err)
	}
	if n == 0 {
		return Toggle{}, fmt.Errorf("%w: %s", ErrToggleNotFound, key)
	}

	row := r.db.QueryRowContext(ctx,
		`SELECT key, enabled, description, updated_at FROM feature_toggles WHERE key = ?`, key)
	return scanToggle(row)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanToggle(s scanner) (Toggle, error) {
	var (
		t         Toggle
		enabled   int
		updatedAt string
	)
	if err := s.Scan(&t.Key, &enabled, &t.Description, &updatedAt); err != nil {
		return Toggle{}, fmt.Errorf("scanning toggle: %w", err)
	}
	t.Enabled = enabled == 1
	t.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // format is controlled
	return t, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Snapshot is an immutable view of the toggles taken when a scope starts.
// The zero value has every toggle disabled.
type Snapshot struct {
	values map[string]bool
}

// NewSnapshot builds a snapshot from explicit values.
func NewSnapshot(values map[string]bool) Snapshot {
	cp := make(map[string]bool, len(values))
	for k, v := range values {
		cp[k] = v
	}
	return Snapshot{values: cp}
}

// Load reads every toggle from repo into a Snapshot.
func Load(ctx context.Context, repo Repository) (Snapshot, error) {
	toggles, err := repo.List(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("loading feature toggles: %w", err)
	}
	values := make(map[string]bool, len(toggles))
	for _, t := range toggles {
		values[t.Key] = t.Enabled
	}
	return Snapshot{values: values}, nil
}

// Enabled reports whether key is switched on. Unknown keys are off.
func (s Snapshot) Enabled(key string) bool {
	return s.values[key]
}

// All returns a copy of every toggle value.
func (s Snapshot) All() map[string]bool {
	cp := make(map[string]bool, len(s.values))
	for k, v := range s.values {
		cp[k] = v
	}
	return cp
}
