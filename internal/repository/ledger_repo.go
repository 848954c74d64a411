package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/JAlbertCode/prompt-marketplace-sub001/internal/models"
)

// SQLiteLedgerRepository implements LedgerRepository for SQLite.
type SQLiteLedgerRepository struct {
	db *sql.DB
}

// NewSQLiteLedgerRepository creates a new SQLite ledger repository.
func NewSQLiteLedgerRepository(db *sql.DB) *SQLiteLedgerRepository {
	return &SQLiteLedgerRepository{db: db}
}

// burnOrder selects the eligible buckets in draw order: buckets with an
// expiry before buckets without one, earliest expiry first, ties broken by
// created_at then id (ids are ULIDs, so id order is stable and time-based).
const burnOrder = `SELECT id, remaining FROM credit_buckets
	WHERE user_id = ? AND remaining > 0 AND (expires_at IS NULL OR expires_at > ?)
	ORDER BY (expires_at IS NULL) ASC, expires_at ASC, created_at ASC, id ASC`

func (r *SQLiteLedgerRepository) Burn(ctx context.Context, userID string, amount int64, tx *models.CreditTransaction) error {
	if amount <= 0 {
		return fmt.Errorf("burn amount must be positive, got %d", amount)
	}

	dbtx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin burn transaction: %w", err)
	}
	defer func() { _ = dbtx.Rollback() }()

	now := tx.CreatedAt
	if now.IsZero() {
		now = time.Now().UTC()
	}

	rows, err := dbtx.QueryContext(ctx, burnOrder, userID, now.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to select buckets: %w", err)
	}

	type draw struct {
		bucketID string
		credits  int64
	}
	var draws []draw
	remaining := amount
	for rows.Next() {
		var id string
		var left int64
		if err := rows.Scan(&id, &left); err != nil {
			_ = rows.Close()
			return fmt.Errorf("failed to scan bucket: %w", err)
		}
		if remaining <= 0 {
			break
		}
		take := left
		if take > remaining {
			take = remaining
		}
		draws = append(draws, draw{bucketID: id, credits: take})
		remaining -= take
	}
	if err := rows.Close(); err != nil {
		return err
	}
	if err := rows.Err(); err != nil {
		return err
	}

	// The whole operation aborts when the eligible buckets cannot cover
	// the amount; partial draws never commit.
	if remaining > 0 {
		return ErrInsufficientCredits
	}

	for _, d := range draws {
		res, err := dbtx.ExecContext(ctx,
			`UPDATE credit_buckets SET remaining = remaining - ? WHERE id = ? AND remaining >= ?`,
			d.credits, d.bucketID, d.credits)
		if err != nil {
			return fmt.Errorf("failed to debit bucket %s: %w", d.bucketID, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		// A concurrent burn shrank this bucket between our read and
		// write; fail closed rather than over-draw.
		if affected != 1 {
			return ErrInsufficientCredits
		}
	}

	if err := insertTransaction(ctx, dbtx, tx); err != nil {
		return fmt.Errorf("failed to record burn transaction: %w", err)
	}

	return dbtx.Commit()
}

func (r *SQLiteLedgerRepository) Grant(ctx context.Context, bucket *models.CreditBucket, tx *models.CreditTransaction) error {
	dbtx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin grant transaction: %w", err)
	}
	defer func() { _ = dbtx.Rollback() }()

	// Insert the transaction first: its UNIQUE provenance constraint is
	// what makes duplicate grant deliveries safe.
	if err := insertTransaction(ctx, dbtx, tx); err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateProvenance
		}
		return fmt.Errorf("failed to record grant transaction: %w", err)
	}

	var expiresAt *string
	if bucket.ExpiresAt != nil {
		s := bucket.ExpiresAt.Format(time.RFC3339)
		expiresAt = &s
	}
	if _, err := dbtx.ExecContext(ctx,
		`INSERT INTO credit_buckets (id, user_id, amount, remaining, source, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		bucket.ID, bucket.UserID, bucket.Amount, bucket.Remaining, bucket.Source,
		expiresAt, bucket.CreatedAt.Format(time.RFC3339)); err != nil {
		return fmt.Errorf("failed to create bucket: %w", err)
	}

	return dbtx.Commit()
}

// insertTransaction appends one immutable transaction row inside dbtx.
func insertTransaction(ctx context.Context, dbtx *sql.Tx, tx *models.CreditTransaction) error {
	_, err := dbtx.ExecContext(ctx,
		`INSERT INTO credit_transactions (id, user_id, amount, type, model_id, item_type, item_id, creator_id, source, provenance, description, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID, tx.UserID, tx.Amount, tx.Type,
		tx.ModelID, tx.ItemType, tx.ItemID, tx.CreatorID,
		tx.Source, tx.Provenance, tx.Description,
		tx.CreatedAt.Format(time.RFC3339))
	return err
}

// isDuplicateKeyError checks if an error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "duplicate key") ||
		strings.Contains(errStr, "already exists")
}
