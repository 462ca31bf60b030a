package repositories

import (
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/desertthunder/syncctl/internal/shared"
)

// setupTestDB creates an in-memory SQLite database with migrations applied
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	shared.ConfigureDatabase(db, 1, 1)

	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	return db
}

func TestClientStateRepository(t *testing.T) {
	t.Run("Get Unset", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewClientStateRepository(db)
		_, err := repo.Get("sync_phase")
		if !errors.Is(err, shared.ErrClientStateUnset) {
			t.Errorf("expected ErrClientStateUnset, got %v", err)
		}
	})

	t.Run("Set And Get", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewClientStateRepository(db)
		if err := repo.Set("sync_phase", "transfer-out"); err != nil {
			t.Fatalf("failed to set: %v", err)
		}

		got, err := repo.Get("sync_phase")
		if err != nil {
			t.Fatalf("failed to get: %v", err)
		}
		if got != "transfer-out" {
			t.Errorf("expected transfer-out, got %q", got)
		}
	})

	t.Run("Set Overwrites", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewClientStateRepository(db)
		repo.Set("sync_phase", "planning")
		if err := repo.Set("sync_phase", "transfer-in"); err != nil {
			t.Fatalf("failed to overwrite: %v", err)
		}

		got, _ := repo.Get("sync_phase")
		if got != "transfer-in" {
			t.Errorf("expected transfer-in, got %q", got)
		}

		var n int
		db.QueryRow("SELECT COUNT(*) FROM client_state").Scan(&n)
		if n != 1 {
			t.Errorf("expected one row, got %d", n)
		}
	})

	t.Run("UpdatedAt", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewClientStateRepository(db)
		before := time.Now().UTC().Add(-time.Minute)
		repo.Set("sync_phase", "planning")

		at, err := repo.UpdatedAt("sync_phase")
		if err != nil {
			t.Fatalf("failed to read updated_at: %v", err)
		}
		if at.Before(before) {
			t.Errorf("expected a recent timestamp, got %v", at)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewClientStateRepository(db)
		repo.Set("sync_phase", "planning")
		if err := repo.Delete("sync_phase"); err != nil {
			t.Fatalf("failed to delete: %v", err)
		}
		if _, err := repo.Get("sync_phase"); !errors.Is(err, shared.ErrClientStateUnset) {
			t.Errorf("expected key to be gone, got %v", err)
		}
		if err := repo.Delete("missing"); err != nil {
			t.Errorf("expected deleting a missing key to succeed, got %v", err)
		}
	})

	t.Run("Closed Database", func(t *testing.T) {
		db := setupTestDB(t)
		db.Close()

		repo := NewClientStateRepository(db)
		if err := repo.Set("sync_phase", "planning"); err == nil {
			t.Error("expected error on closed database")
		}
		if _, err := repo.Get("sync_phase"); err == nil || errors.Is(err, shared.ErrClientStateUnset) {
			t.Errorf("expected query error, got %v", err)
		}
	})
}
