package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/JAlbertCode/prompt-marketplace-sub001/internal/models"
)

// SQLiteTransactionRepository implements TransactionRepository for SQLite.
type SQLiteTransactionRepository struct {
	db *sql.DB
}

// NewSQLiteTransactionRepository creates a new SQLite transaction repository.
func NewSQLiteTransactionRepository(db *sql.DB) *SQLiteTransactionRepository {
	return &SQLiteTransactionRepository{db: db}
}

const transactionColumns = `id, user_id, amount, type, model_id, item_type, item_id, creator_id, source, provenance, description, created_at`

func (r *SQLiteTransactionRepository) GetByUserID(ctx context.Context, userID string, limit, offset int) ([]*models.CreditTransaction, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+transactionColumns+` FROM credit_transactions
		WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get transactions: %w", err)
	}
	defer rows.Close()

	var txs []*models.CreditTransaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

func (r *SQLiteTransactionRepository) GetByProvenance(ctx context.Context, provenance string) (*models.CreditTransaction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+transactionColumns+` FROM credit_transactions WHERE provenance = ?`,
		provenance)
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	return scanTransaction(rows)
}

// SumDebits returns the total credits burned by a user since the given time,
// as a positive number.
func (r *SQLiteTransactionRepository) SumDebits(ctx context.Context, userID string, since time.Time) (int64, error) {
	var total int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(-amount), 0) FROM credit_transactions
		WHERE user_id = ? AND amount < 0 AND created_at >= ?`,
		userID, since.Format(time.RFC3339)).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum debits: %w", err)
	}
	return total, nil
}

// SumDebitsBySource is SumDebits restricted to burns tagged with the given
// source, e.g. automated runs.
func (r *SQLiteTransactionRepository) SumDebitsBySource(ctx context.Context, userID, source string, since time.Time) (int64, error) {
	var total int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(-amount), 0) FROM credit_transactions
		WHERE user_id = ? AND amount < 0 AND source = ? AND created_at >= ?`,
		userID, source, since.Format(time.RFC3339)).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum debits by source: %w", err)
	}
	return total, nil
}

// HasTypeSince reports whether the user has any transaction of the given type
// created at or after since.
func (r *SQLiteTransactionRepository) HasTypeSince(ctx context.Context, userID string, txType models.TransactionType, since time.Time) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM credit_transactions
		WHERE user_id = ? AND type = ? AND created_at >= ?`,
		userID, string(txType), since.Format(time.RFC3339)).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check transactions: %w", err)
	}
	return count > 0, nil
}

func scanTransaction(rows *sql.Rows) (*models.CreditTransaction, error) {
	var tx models.CreditTransaction
	var modelID, itemType, itemID, creatorID, provenance sql.NullString
	var createdAt string

	if err := rows.Scan(&tx.ID, &tx.UserID, &tx.Amount, &tx.Type,
		&modelID, &itemType, &itemID, &creatorID,
		&tx.Source, &provenance, &tx.Description, &createdAt); err != nil {
		return nil, fmt.Errorf("failed to scan transaction: %w", err)
	}

	if modelID.Valid {
		tx.ModelID = &modelID.String
	}
	if itemType.Valid {
		tx.ItemType = &itemType.String
	}
	if itemID.Valid {
		tx.ItemID = &itemID.String
	}
	if creatorID.Valid {
		tx.CreatorID = &creatorID.String
	}
	if provenance.Valid {
		tx.Provenance = &provenance.String
	}
	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	tx.CreatedAt = t
	return &tx, nil
}
