package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/JAlbertCode/prompt-marketplace-sub001/internal/models"
)

// SQLiteBucketRepository implements BucketRepository for SQLite.
type SQLiteBucketRepository struct {
	db *sql.DB
}

// NewSQLiteBucketRepository creates a new SQLite bucket repository.
func NewSQLiteBucketRepository(db *sql.DB) *SQLiteBucketRepository {
	return &SQLiteBucketRepository{db: db}
}

func (r *SQLiteBucketRepository) GetByUserID(ctx context.Context, userID string) ([]*models.CreditBucket, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, amount, remaining, source, expires_at, created_at
		FROM credit_buckets WHERE user_id = ?
		ORDER BY (expires_at IS NULL) ASC, expires_at ASC, created_at ASC, id ASC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get buckets: %w", err)
	}
	defer rows.Close()

	var buckets []*models.CreditBucket
	for rows.Next() {
		bucket, err := scanBucket(rows)
		if err != nil {
			return nil, err
		}
		buckets = append(buckets, bucket)
	}
	return buckets, rows.Err()
}

// GetBalance sums remaining credits across buckets that have not expired as
// of now. Expired buckets are excluded here rather than zeroed eagerly.
func (r *SQLiteBucketRepository) GetBalance(ctx context.Context, userID string, now time.Time) (int64, error) {
	var balance int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(remaining), 0) FROM credit_buckets
		WHERE user_id = ? AND remaining > 0 AND (expires_at IS NULL OR expires_at > ?)`,
		userID, now.Format(time.RFC3339)).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("failed to get balance: %w", err)
	}
	return balance, nil
}

// CompactExpired zeroes the remaining credits of buckets whose expiry has
// passed, and returns the number of buckets compacted.
func (r *SQLiteBucketRepository) CompactExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE credit_buckets SET remaining = 0
		WHERE remaining > 0 AND expires_at IS NOT NULL AND expires_at <= ?`,
		now.Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("failed to compact buckets: %w", err)
	}
	return res.RowsAffected()
}

func scanBucket(rows *sql.Rows) (*models.CreditBucket, error) {
	var bucket models.CreditBucket
	var expiresAt sql.NullString
	var createdAt string

	if err := rows.Scan(&bucket.ID, &bucket.UserID, &bucket.Amount, &bucket.Remaining,
		&bucket.Source, &expiresAt, &createdAt); err != nil {
		return nil, fmt.Errorf("failed to scan bucket: %w", err)
	}

	if expiresAt.Valid {
		t, err := time.Parse(time.RFC3339, expiresAt.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse expires_at: %w", err)
		}
		bucket.ExpiresAt = &t
	}
	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	bucket.CreatedAt = t
	return &bucket, nil
}
