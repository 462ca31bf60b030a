package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/syncctl/internal/shared"
)

// ClientStateRepository stores string values under fixed keys in the client_state table.
type ClientStateRepository struct {
	db *sql.DB
}

// NewClientStateRepository creates a new [ClientStateRepository] with the given database connection
func NewClientStateRepository(db *sql.DB) *ClientStateRepository {
	return &ClientStateRepository{db: db}
}

// Get returns the value stored under key, or [shared.ErrClientStateUnset] when there is none.
func (r *ClientStateRepository) Get(key string) (string, error) {
	var value string
	err := r.db.QueryRow("SELECT value FROM client_state WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("%w: %s", shared.ErrClientStateUnset, key)
	}
	if err != nil {
		return "", fmt.Errorf("failed to query client state: %w", err)
	}
	return value, nil
}

// Set inserts or replaces the value under key.
func (r *ClientStateRepository) Set(key, value string) error {
	query := `
		INSERT INTO client_state (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`

	if _, err := r.db.Exec(query, key, value, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to store client state: %w", err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (r *ClientStateRepository) Delete(key string) error {
	if _, err := r.db.Exec("DELETE FROM client_state WHERE key = ?", key); err != nil {
		return fmt.Errorf("failed to delete client state: %w", err)
	}
	return nil
}

// UpdatedAt returns when key was last written.
func (r *ClientStateRepository) UpdatedAt(key string) (time.Time, error) {
	var at time.Time
	err := r.db.QueryRow("SELECT updated_at FROM client_state WHERE key = ?", key).Scan(&at)
	if err == sql.ErrNoRows {
		return time.Time{}, fmt.Errorf("%w: %s", shared.ErrClientStateUnset, key)
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to query client state: %w", err)
	}
	return at, nil
}
