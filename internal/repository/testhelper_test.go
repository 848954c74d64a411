package repository

import (
	"database/sql"
	"testing"
	"time"

	"github.com/JAlbertCode/prompt-marketplace-sub001/internal/database/migrations"
	"github.com/JAlbertCode/prompt-marketplace-sub001/internal/models"
	"github.com/oklog/ulid/v2"
	_ "github.com/tursodatabase/go-libsql"
)

// setupTestDB creates an in-memory SQLite database for testing.
// It runs migrations and returns a database connection that will be cleaned up
// when the test completes.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("libsql", ":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("failed to enable foreign keys: %v", err)
	}

	if err := migrations.Run(db, nil); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() {
		_ = db.Close()
	})

	return db
}

// setupTestRepos creates all repositories using a test database.
func setupTestRepos(t *testing.T) *Repositories {
	t.Helper()
	db := setupTestDB(t)
	return NewRepositories(db)
}

// insertTestUser is a helper to insert a user row directly.
func insertTestUser(t *testing.T, db *sql.DB, id, referralCode string) {
	t.Helper()
	query := `
		INSERT INTO users (id, referral_code, referred_by, created_at)
		VALUES (?, ?, NULL, datetime('now'))
	`
	if _, err := db.Exec(query, id, referralCode); err != nil {
		t.Fatalf("failed to insert test user: %v", err)
	}
}

// insertTestBucket is a helper to insert a credit bucket directly.
// expiresAt may be nil for non-expiring buckets.
func insertTestBucket(t *testing.T, db *sql.DB, id, userID string, remaining int64, expiresAt *time.Time, createdAt time.Time) {
	t.Helper()
	var expires *string
	if expiresAt != nil {
		s := expiresAt.UTC().Format(time.RFC3339)
		expires = &s
	}
	query := `
		INSERT INTO credit_buckets (id, user_id, amount, remaining, source, expires_at, created_at)
		VALUES (?, ?, ?, ?, 'purchased', ?, ?)
	`
	if _, err := db.Exec(query, id, userID, remaining, remaining, expires, createdAt.UTC().Format(time.RFC3339)); err != nil {
		t.Fatalf("failed to insert test bucket: %v", err)
	}
}

// newTestTransaction builds a debit or credit transaction row ready for the
// ledger; callers adjust fields as needed.
func newTestTransaction(userID string, amount int64, txType models.TransactionType) *models.CreditTransaction {
	return &models.CreditTransaction{
		ID:        ulid.Make().String(),
		UserID:    userID,
		Amount:    amount,
		Type:      txType,
		Source:    "web",
		CreatedAt: time.Now().UTC(),
	}
}

func strptr(s string) *string { return &s }

func timeptr(t time.Time) *time.Time { return &t }
