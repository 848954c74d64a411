package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/JAlbertCode/prompt-marketplace-sub001/internal/models"
)

// SQLiteReferralRepository implements ReferralRepository for SQLite.
type SQLiteReferralRepository struct {
	db *sql.DB
}

// NewSQLiteReferralRepository creates a new SQLite referral repository.
func NewSQLiteReferralRepository(db *sql.DB) *SQLiteReferralRepository {
	return &SQLiteReferralRepository{db: db}
}

const referralColumns = `id, referrer_id, referred_id, status, credits_awarded, completed_at, created_at`

func (r *SQLiteReferralRepository) Create(ctx context.Context, referral *models.Referral) error {
	var completedAt *string
	if referral.CompletedAt != nil {
		s := referral.CompletedAt.Format(time.RFC3339)
		completedAt = &s
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO referrals (id, referrer_id, referred_id, status, credits_awarded, completed_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		referral.ID, referral.ReferrerID, referral.ReferredID, string(referral.Status),
		referral.CreditsAwarded, completedAt, referral.CreatedAt.Format(time.RFC3339))
	if err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("referral for user %s already exists: %w", referral.ReferredID, err)
		}
		return fmt.Errorf("failed to create referral: %w", err)
	}
	return nil
}

func (r *SQLiteReferralRepository) GetByReferredID(ctx context.Context, referredID string) (*models.Referral, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+referralColumns+` FROM referrals WHERE referred_id = ?`, referredID)
	if err != nil {
		return nil, fmt.Errorf("failed to get referral: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	return scanReferral(rows)
}

func (r *SQLiteReferralRepository) GetByReferrerID(ctx context.Context, referrerID string) ([]*models.Referral, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+referralColumns+` FROM referrals WHERE referrer_id = ? ORDER BY created_at DESC`,
		referrerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get referrals: %w", err)
	}
	defer rows.Close()
	return scanReferrals(rows)
}

func (r *SQLiteReferralRepository) GetPending(ctx context.Context) ([]*models.Referral, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+referralColumns+` FROM referrals WHERE status = ? ORDER BY created_at ASC`,
		string(models.ReferralPending))
	if err != nil {
		return nil, fmt.Errorf("failed to get pending referrals: %w", err)
	}
	defer rows.Close()
	return scanReferrals(rows)
}

// MarkComplete transitions a referral from pending to complete exactly once;
// it returns false if the referral was already completed.
func (r *SQLiteReferralRepository) MarkComplete(ctx context.Context, id string, creditsAwarded int64, completedAt time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE referrals SET status = ?, credits_awarded = ?, completed_at = ?
		WHERE id = ? AND status = ?`,
		string(models.ReferralComplete), creditsAwarded,
		completedAt.Format(time.RFC3339), id, string(models.ReferralPending))
	if err != nil {
		return false, fmt.Errorf("failed to complete referral: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

func scanReferrals(rows *sql.Rows) ([]*models.Referral, error) {
	var referrals []*models.Referral
	for rows.Next() {
		referral, err := scanReferral(rows)
		if err != nil {
			return nil, err
		}
		referrals = append(referrals, referral)
	}
	return referrals, rows.Err()
}

func scanReferral(rows *sql.Rows) (*models.Referral, error) {
	var referral models.Referral
	var status string
	var completedAt sql.NullString
	var createdAt string

	if err := rows.Scan(&referral.ID, &referral.ReferrerID, &referral.ReferredID,
		&status, &referral.CreditsAwarded, &completedAt, &createdAt); err != nil {
		return nil, fmt.Errorf("failed to scan referral: %w", err)
	}

	referral.Status = models.ReferralStatus(status)
	if completedAt.Valid {
		t, err := time.Parse(time.RFC3339, completedAt.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse completed_at: %w", err)
		}
		referral.CompletedAt = &t
	}
	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	referral.CreatedAt = t
	return &referral, nil
}
