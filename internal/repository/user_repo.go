package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/JAlbertCode/prompt-marketplace-sub001/internal/models"
)

// SQLiteUserRepository implements UserRepository for SQLite.
type SQLiteUserRepository struct {
	db *sql.DB
}

// NewSQLiteUserRepository creates a new SQLite user repository.
func NewSQLiteUserRepository(db *sql.DB) *SQLiteUserRepository {
	return &SQLiteUserRepository{db: db}
}

func (r *SQLiteUserRepository) Create(ctx context.Context, user *models.User) error {
	var referredBy *string
	if user.ReferredBy != nil {
		referredBy = user.ReferredBy
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, referral_code, referred_by, created_at) VALUES (?, ?, ?, ?)`,
		user.ID, user.ReferralCode, referredBy, user.CreatedAt.Format(time.RFC3339))
	if err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("user %s already exists: %w", user.ID, err)
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (r *SQLiteUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	return r.getOne(ctx, `SELECT id, referral_code, referred_by, created_at FROM users WHERE id = ?`, id)
}

func (r *SQLiteUserRepository) GetByReferralCode(ctx context.Context, code string) (*models.User, error) {
	return r.getOne(ctx, `SELECT id, referral_code, referred_by, created_at FROM users WHERE referral_code = ?`, code)
}

func (r *SQLiteUserRepository) ListIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id FROM users ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SetReferredBy records the referrer for a user, but only once; it returns
// false when the user already has a referrer.
func (r *SQLiteUserRepository) SetReferredBy(ctx context.Context, userID, referrerID string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET referred_by = ? WHERE id = ? AND referred_by IS NULL`,
		referrerID, userID)
	if err != nil {
		return false, fmt.Errorf("failed to set referrer: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

func (r *SQLiteUserRepository) getOne(ctx context.Context, query string, arg any) (*models.User, error) {
	var user models.User
	var referredBy sql.NullString
	var createdAt string

	err := r.db.QueryRowContext(ctx, query, arg).Scan(&user.ID, &user.ReferralCode, &referredBy, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if referredBy.Valid {
		user.ReferredBy = &referredBy.String
	}
	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	user.CreatedAt = t
	return &user, nil
}
