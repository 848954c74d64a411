// Package repository defines repository interfaces for data access.
// User identity and sessions are owned by the external auth provider; the
// user ids stored here reference its ids.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/JAlbertCode/prompt-marketplace-sub001/internal/models"
)

var (
	// ErrInsufficientCredits is returned by Burn when the user's
	// non-expired buckets cannot cover the requested amount. Nothing is
	// mutated in that case.
	ErrInsufficientCredits = errors.New("insufficient credits")

	// ErrDuplicateProvenance is returned by Grant when a transaction with
	// the same provenance key already exists (duplicate delivery of the
	// triggering external event).
	ErrDuplicateProvenance = errors.New("duplicate provenance - grant already recorded")
)

// UserRepository defines methods for the minimal user rows the engine owns.
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByReferralCode(ctx context.Context, code string) (*models.User, error)
	ListIDs(ctx context.Context) ([]string, error)
	// SetReferredBy records referral attribution. Returns false if the
	// user already has a referrer (attribution happens at most once).
	SetReferredBy(ctx context.Context, userID, referrerID string) (bool, error)
}

// BucketRepository defines read and maintenance access to credit buckets.
// Mutation of remaining happens only through LedgerRepository.Burn.
type BucketRepository interface {
	GetByUserID(ctx context.Context, userID string) ([]*models.CreditBucket, error)
	// GetBalance sums remaining over non-expired buckets (lazy expiry:
	// buckets past expires_at count as zero without being rewritten).
	GetBalance(ctx context.Context, userID string, now time.Time) (int64, error)
	// CompactExpired zeroes remaining on expired buckets. Purely an
	// optimization; balance math is correct without it.
	CompactExpired(ctx context.Context, now time.Time) (int64, error)
}

// TransactionRepository defines read access to the append-only audit trail.
// Rows are written only through LedgerRepository and never mutated.
type TransactionRepository interface {
	GetByUserID(ctx context.Context, userID string, limit, offset int) ([]*models.CreditTransaction, error)
	GetByProvenance(ctx context.Context, provenance string) (*models.CreditTransaction, error)
	// SumDebits returns the magnitude of the user's negative transactions
	// dated on/after since (pass a zero time for lifetime spend).
	SumDebits(ctx context.Context, userID string, since time.Time) (int64, error)
	// SumDebitsBySource returns spend magnitude restricted to a source
	// tag and a time window (automation burn).
	SumDebitsBySource(ctx context.Context, userID, source string, since time.Time) (int64, error)
	// HasTypeSince reports whether any transaction of the given type
	// exists for the user dated on/after since.
	HasTypeSince(ctx context.Context, userID string, txType models.TransactionType, since time.Time) (bool, error)
}

// LedgerRepository performs the atomic balance-mutating operations. Both
// methods are single database transactions: they either fully apply or
// leave no trace.
type LedgerRepository interface {
	// Burn debits amount across the user's buckets in soonest-expiring-
	// first order (no-expiry buckets last, ties broken by created_at then
	// id) and appends tx. Fails with ErrInsufficientCredits, mutating
	// nothing, when non-expired remaining < amount at commit time.
	Burn(ctx context.Context, userID string, amount int64, tx *models.CreditTransaction) error
	// Grant creates bucket and its positive transaction together.
	// A provenance collision fails with ErrDuplicateProvenance and
	// creates neither row.
	Grant(ctx context.Context, bucket *models.CreditBucket, tx *models.CreditTransaction) error
}

// ReferralRepository defines methods for referral data access.
type ReferralRepository interface {
	Create(ctx context.Context, referral *models.Referral) error
	GetByReferredID(ctx context.Context, referredID string) (*models.Referral, error)
	GetByReferrerID(ctx context.Context, referrerID string) ([]*models.Referral, error)
	GetPending(ctx context.Context) ([]*models.Referral, error)
	// MarkComplete transitions pending -> complete. Returns false if the
	// referral was not pending (already completed by a concurrent pass).
	MarkComplete(ctx context.Context, id string, creditsAwarded int64, completedAt time.Time) (bool, error)
}

// RenewalRepository defines methods for auto-renewal state.
type RenewalRepository interface {
	GetSetting(ctx context.Context, userID string) (*models.AutoRenewalSetting, error)
	UpsertSetting(ctx context.Context, setting *models.AutoRenewalSetting) error
	ListEnabled(ctx context.Context) ([]*models.AutoRenewalSetting, error)
	// RecordAttempt persists the attempt row and bumps the user's attempt
	// counter/timestamp in one transaction, before any external call.
	RecordAttempt(ctx context.Context, attempt *models.RenewalAttempt) error
	UpdateAttemptStatus(ctx context.Context, id string, status models.RenewalStatus, errorMessage, paymentRef *string, updatedAt time.Time) error
	GetAttemptByPaymentRef(ctx context.Context, paymentRef string) (*models.RenewalAttempt, error)
	ResetAttempts(ctx context.Context, userID string, updatedAt time.Time) error
}

// Repositories holds all repository instances.
type Repositories struct {
	User        UserRepository
	Bucket      BucketRepository
	Transaction TransactionRepository
	Ledger      LedgerRepository
	Referral    ReferralRepository
	Renewal     RenewalRepository
}

// NewRepositories creates all repository instances.
func NewRepositories(db *sql.DB) *Repositories {
	return &Repositories{
		User:        NewSQLiteUserRepository(db),
		Bucket:      NewSQLiteBucketRepository(db),
		Transaction: NewSQLiteTransactionRepository(db),
		Ledger:      NewSQLiteLedgerRepository(db),
		Referral:    NewSQLiteReferralRepository(db),
		Renewal:     NewSQLiteRenewalRepository(db),
	}
}
