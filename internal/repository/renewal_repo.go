package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/JAlbertCode/prompt-marketplace-sub001/internal/models"
)

// SQLiteRenewalRepository implements RenewalRepository for SQLite.
type SQLiteRenewalRepository struct {
	db *sql.DB
}

// NewSQLiteRenewalRepository creates a new SQLite renewal repository.
func NewSQLiteRenewalRepository(db *sql.DB) *SQLiteRenewalRepository {
	return &SQLiteRenewalRepository{db: db}
}

const settingColumns = `user_id, enabled, threshold_credits, target_bundle_id, stripe_customer_id, attempt_count, last_attempt_at, updated_at`

func (r *SQLiteRenewalRepository) GetSetting(ctx context.Context, userID string) (*models.AutoRenewalSetting, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+settingColumns+` FROM auto_renewal_settings WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get renewal setting: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	return scanSetting(rows)
}

func (r *SQLiteRenewalRepository) UpsertSetting(ctx context.Context, setting *models.AutoRenewalSetting) error {
	var lastAttempt *string
	if setting.LastAttemptAt != nil {
		s := setting.LastAttemptAt.Format(time.RFC3339)
		lastAttempt = &s
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO auto_renewal_settings (user_id, enabled, threshold_credits, target_bundle_id, stripe_customer_id, attempt_count, last_attempt_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			enabled = excluded.enabled,
			threshold_credits = excluded.threshold_credits,
			target_bundle_id = excluded.target_bundle_id,
			stripe_customer_id = excluded.stripe_customer_id,
			attempt_count = excluded.attempt_count,
			last_attempt_at = excluded.last_attempt_at,
			updated_at = excluded.updated_at`,
		setting.UserID, boolToInt(setting.Enabled), setting.ThresholdCredits,
		setting.TargetBundleID, setting.StripeCustomerID,
		setting.AttemptCount, lastAttempt, setting.UpdatedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to upsert renewal setting: %w", err)
	}
	return nil
}

func (r *SQLiteRenewalRepository) ListEnabled(ctx context.Context) ([]*models.AutoRenewalSetting, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+settingColumns+` FROM auto_renewal_settings WHERE enabled = 1 ORDER BY user_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list renewal settings: %w", err)
	}
	defer rows.Close()

	var settings []*models.AutoRenewalSetting
	for rows.Next() {
		setting, err := scanSetting(rows)
		if err != nil {
			return nil, err
		}
		settings = append(settings, setting)
	}
	return settings, rows.Err()
}

// RecordAttempt persists the attempt row and bumps the user's attempt
// counter and last-attempt timestamp together, so the attempt budget is
// spent before any external payment call is made.
func (r *SQLiteRenewalRepository) RecordAttempt(ctx context.Context, attempt *models.RenewalAttempt) error {
	dbtx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin attempt transaction: %w", err)
	}
	defer func() { _ = dbtx.Rollback() }()

	if _, err := dbtx.ExecContext(ctx,
		`INSERT INTO renewal_attempts (id, user_id, bundle_id, credits, status, error_message, payment_ref, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		attempt.ID, attempt.UserID, attempt.BundleID, attempt.Credits,
		string(attempt.Status), attempt.ErrorMessage, attempt.PaymentRef,
		attempt.CreatedAt.Format(time.RFC3339), attempt.UpdatedAt.Format(time.RFC3339)); err != nil {
		return fmt.Errorf("failed to record renewal attempt: %w", err)
	}

	if _, err := dbtx.ExecContext(ctx,
		`UPDATE auto_renewal_settings SET attempt_count = attempt_count + 1, last_attempt_at = ?, updated_at = ? WHERE user_id = ?`,
		attempt.CreatedAt.Format(time.RFC3339), attempt.CreatedAt.Format(time.RFC3339), attempt.UserID); err != nil {
		return fmt.Errorf("failed to bump attempt counter: %w", err)
	}

	return dbtx.Commit()
}

func (r *SQLiteRenewalRepository) UpdateAttemptStatus(ctx context.Context, id string, status models.RenewalStatus, errorMessage, paymentRef *string, updatedAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE renewal_attempts SET status = ?, error_message = ?, payment_ref = ?, updated_at = ? WHERE id = ?`,
		string(status), errorMessage, paymentRef, updatedAt.Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("failed to update renewal attempt: %w", err)
	}
	return nil
}

func (r *SQLiteRenewalRepository) GetAttemptByPaymentRef(ctx context.Context, paymentRef string) (*models.RenewalAttempt, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, bundle_id, credits, status, error_message, payment_ref, created_at, updated_at
		FROM renewal_attempts WHERE payment_ref = ?`, paymentRef)
	if err != nil {
		return nil, fmt.Errorf("failed to get renewal attempt: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	return scanAttempt(rows)
}

// ResetAttempts clears the attempt budget for a user once the renewal window
// has elapsed.
func (r *SQLiteRenewalRepository) ResetAttempts(ctx context.Context, userID string, updatedAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE auto_renewal_settings SET attempt_count = 0, last_attempt_at = NULL, updated_at = ? WHERE user_id = ?`,
		updatedAt.Format(time.RFC3339), userID)
	if err != nil {
		return fmt.Errorf("failed to reset renewal attempts: %w", err)
	}
	return nil
}

func scanSetting(rows *sql.Rows) (*models.AutoRenewalSetting, error) {
	var setting models.AutoRenewalSetting
	var enabled int
	var lastAttempt sql.NullString
	var updatedAt string

	if err := rows.Scan(&setting.UserID, &enabled, &setting.ThresholdCredits,
		&setting.TargetBundleID, &setting.StripeCustomerID,
		&setting.AttemptCount, &lastAttempt, &updatedAt); err != nil {
		return nil, fmt.Errorf("failed to scan renewal setting: %w", err)
	}

	setting.Enabled = enabled != 0
	if lastAttempt.Valid {
		t, err := time.Parse(time.RFC3339, lastAttempt.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse last_attempt_at: %w", err)
		}
		setting.LastAttemptAt = &t
	}
	t, err := time.Parse(time.RFC3339, updatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse updated_at: %w", err)
	}
	setting.UpdatedAt = t
	return &setting, nil
}

func scanAttempt(rows *sql.Rows) (*models.RenewalAttempt, error) {
	var attempt models.RenewalAttempt
	var status string
	var errMsg, paymentRef sql.NullString
	var createdAt, updatedAt string

	if err := rows.Scan(&attempt.ID, &attempt.UserID, &attempt.BundleID, &attempt.Credits,
		&status, &errMsg, &paymentRef, &createdAt, &updatedAt); err != nil {
		return nil, fmt.Errorf("failed to scan renewal attempt: %w", err)
	}

	attempt.Status = models.RenewalStatus(status)
	if errMsg.Valid {
		attempt.ErrorMessage = &errMsg.String
	}
	if paymentRef.Valid {
		attempt.PaymentRef = &paymentRef.String
	}
	var err error
	attempt.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	attempt.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse updated_at: %w", err)
	}
	return &attempt, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
