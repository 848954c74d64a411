package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/JAlbertCode/prompt-marketplace-sub001/internal/config"
	"github.com/JAlbertCode/prompt-marketplace-sub001/internal/models"
	"github.com/JAlbertCode/prompt-marketplace-sub001/internal/repository"
)

var (
	// ErrInsufficientCredits indicates the user's non-expired buckets
	// cannot cover a burn. Expected business outcome, not logged as an
	// error.
	ErrInsufficientCredits = repository.ErrInsufficientCredits

	// ErrUnknownBundle indicates a bundle id with no catalog entry.
	ErrUnknownBundle = errors.New("unknown credit bundle")
)

// LedgerService owns all balance reads and mutations. Burns against the
// same user are serialized through a per-user lock on top of the storage
// transaction; burns for different users do not contend.
type LedgerService struct {
	repos         *repository.Repositories
	billingConfig *config.BillingConfig
	logger        *slog.Logger

	mu        sync.Mutex
	userLocks map[string]*sync.Mutex
}

// NewLedgerService creates a new ledger service.
func NewLedgerService(repos *repository.Repositories, billingConfig *config.BillingConfig, logger *slog.Logger) *LedgerService {
	return &LedgerService{
		repos:         repos,
		billingConfig: billingConfig,
		logger:        logger,
		userLocks:     make(map[string]*sync.Mutex),
	}
}

// userLock returns the mutex guarding one user's buckets.
func (s *LedgerService) userLock(userID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.userLocks[userID]
	if !ok {
		lock = &sync.Mutex{}
		s.userLocks[userID] = lock
	}
	return lock
}

// GetBalance returns the sum of remaining credits over the user's
// non-expired buckets.
func (s *LedgerService) GetBalance(ctx context.Context, userID string) (int64, error) {
	balance, err := s.repos.Bucket.GetBalance(ctx, userID, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to get balance: %w", err)
	}
	return balance, nil
}

// HasSufficientBalance reports whether the user's balance covers amount.
// Advisory only: Burn re-checks inside its own transaction, and callers
// must treat a Burn failure as authoritative even after a positive check.
func (s *LedgerService) HasSufficientBalance(ctx context.Context, userID string, amount int64) (bool, error) {
	balance, err := s.GetBalance(ctx, userID)
	if err != nil {
		return false, err
	}
	return balance >= amount, nil
}

// Burn debits amount across the user's buckets, soonest-expiring first,
// and records one debit transaction carrying the run metadata. The whole
// operation fails with ErrInsufficientCredits and mutates nothing when
// the balance cannot cover it.
func (s *LedgerService) Burn(ctx context.Context, userID string, amount int64, meta models.BurnMetadata) (*models.CreditTransaction, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("burn amount must be positive, got %d", amount)
	}

	txType := models.TxTypePromptRun
	if meta.ItemType == models.ItemTypeFlow {
		txType = models.TxTypeFlowRun
	}

	tx := &models.CreditTransaction{
		ID:          ulid.Make().String(),
		UserID:      userID,
		Amount:      -amount,
		Type:        txType,
		CreatorID:   meta.CreatorID,
		Source:      meta.Source,
		Description: fmt.Sprintf("Usage burn - %d credits", amount),
		CreatedAt:   time.Now().UTC(),
	}
	if meta.ModelID != "" {
		tx.ModelID = &meta.ModelID
	}
	if meta.ItemType != "" {
		tx.ItemType = &meta.ItemType
	}
	if meta.ItemID != "" {
		tx.ItemID = &meta.ItemID
	}

	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	if err := s.repos.Ledger.Burn(ctx, userID, amount, tx); err != nil {
		if errors.Is(err, repository.ErrInsufficientCredits) {
			return nil, ErrInsufficientCredits
		}
		return nil, fmt.Errorf("failed to burn credits: %w", err)
	}

	s.logger.Info("credits burned",
		"user_id", userID,
		"amount", amount,
		"type", txType,
		"source", meta.Source,
	)
	return tx, nil
}

// AddCredits creates a new bucket plus its positive transaction. The
// provenance string deduplicates repeat deliveries of the same external
// event: a duplicate is treated as success and returns an empty bucket id
// without creating anything.
func (s *LedgerService) AddCredits(ctx context.Context, userID string, amount int64, source models.BucketSource, txType models.TransactionType, provenance, description string) (string, error) {
	if amount <= 0 {
		return "", fmt.Errorf("grant amount must be positive, got %d", amount)
	}

	now := time.Now().UTC()
	var expiresAt *time.Time
	if days := s.billingConfig.ExpiryDays(source); days > 0 {
		expiry := now.AddDate(0, 0, days)
		expiresAt = &expiry
	}

	bucket := &models.CreditBucket{
		ID:        ulid.Make().String(),
		UserID:    userID,
		Amount:    amount,
		Remaining: amount,
		Source:    source,
		ExpiresAt: expiresAt,
		CreatedAt: now,
	}
	tx := &models.CreditTransaction{
		ID:          ulid.Make().String(),
		UserID:      userID,
		Amount:      amount,
		Type:        txType,
		Source:      "system",
		Provenance:  &provenance,
		Description: description,
		CreatedAt:   now,
	}

	if err := s.repos.Ledger.Grant(ctx, bucket, tx); err != nil {
		if errors.Is(err, repository.ErrDuplicateProvenance) {
			// Repeat delivery of the same event; nothing new created.
			s.logger.Info("duplicate grant ignored", "user_id", userID, "provenance", provenance)
			return "", nil
		}
		return "", fmt.Errorf("failed to grant credits: %w", err)
	}

	s.logger.Info("credits granted",
		"user_id", userID,
		"amount", amount,
		"source", source,
		"type", txType,
		"provenance", provenance,
	)
	return bucket.ID, nil
}

// PayCreatorFee routes the creator's share of a run to the creator as
// non-expiring credits. Keyed on the burn transaction id so a retried
// request cannot pay twice. Earned income lands in a purchased-source
// bucket so it never expires out from under the creator.
func (s *LedgerService) PayCreatorFee(ctx context.Context, creatorID string, feeCredits int64, burnTxID string) error {
	if feeCredits <= 0 {
		return nil
	}
	_, err := s.AddCredits(ctx, creatorID, feeCredits, models.SourcePurchased,
		models.TxTypeCreatorPayment, "creator_fee:"+burnTxID,
		fmt.Sprintf("Creator fee - %d credits", feeCredits))
	return err
}

// PurchaseBundle credits a user for a completed bundle purchase.
// provenance should be the payment reference (e.g. "stripe_payment:<pi>").
func (s *LedgerService) PurchaseBundle(ctx context.Context, userID, bundleID, provenance string) (string, error) {
	bundle := s.billingConfig.Bundle(bundleID)
	if bundle == nil {
		return "", fmt.Errorf("%w: %s", ErrUnknownBundle, bundleID)
	}
	return s.AddCredits(ctx, userID, bundle.Credits, models.SourcePurchased,
		models.TxTypePurchase, provenance,
		fmt.Sprintf("%s bundle purchase - %d credits", bundleID, bundle.Credits))
}

// Bundles returns the purchasable bundle catalog sorted by price.
func (s *LedgerService) Bundles() []config.CreditBundle {
	bundles := make([]config.CreditBundle, 0, len(s.billingConfig.Bundles))
	for _, b := range s.billingConfig.Bundles {
		bundles = append(bundles, b)
	}
	sort.Slice(bundles, func(i, j int) bool { return bundles[i].PriceUSDCents < bundles[j].PriceUSDCents })
	return bundles
}

// GetTransactionHistory retrieves a user's transaction history, newest
// first.
func (s *LedgerService) GetTransactionHistory(ctx context.Context, userID string, limit, offset int) ([]*models.CreditTransaction, error) {
	return s.repos.Transaction.GetByUserID(ctx, userID, limit, offset)
}

// GetBuckets returns the user's buckets in draw order.
func (s *LedgerService) GetBuckets(ctx context.Context, userID string) ([]*models.CreditBucket, error) {
	return s.repos.Bucket.GetByUserID(ctx, userID)
}

// CompactExpiredBuckets zeroes expired buckets. Balance math is correct
// without it; this keeps the burn bucket scans short.
func (s *LedgerService) CompactExpiredBuckets(ctx context.Context) (int64, error) {
	count, err := s.repos.Bucket.CompactExpired(ctx, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to compact buckets: %w", err)
	}
	if count > 0 {
		s.logger.Info("compacted expired buckets", "count", count)
	}
	return count, nil
}
