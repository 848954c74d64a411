package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/JAlbertCode/prompt-marketplace-sub001/internal/config"
	"github.com/JAlbertCode/prompt-marketplace-sub001/internal/models"
	"github.com/JAlbertCode/prompt-marketplace-sub001/internal/repository"
)

// RenewalService watches balances against per-user thresholds and
// triggers bundle repurchases through the payment collaborator.
type RenewalService struct {
	repos         *repository.Repositories
	billingConfig *config.BillingConfig
	payments      PaymentClient
	notifier      Notifier
	logger        *slog.Logger
}

// NewRenewalService creates a new renewal service. A payment client is
// attached separately; without one, threshold checks are no-ops.
func NewRenewalService(repos *repository.Repositories, billingConfig *config.BillingConfig, notifier Notifier, logger *slog.Logger) *RenewalService {
	return &RenewalService{
		repos:         repos,
		billingConfig: billingConfig,
		notifier:      notifier,
		logger:        logger,
	}
}

// SetPaymentClient wires the external payment collaborator.
func (s *RenewalService) SetPaymentClient(client PaymentClient) {
	s.payments = client
}

// GetSetting returns a user's auto-renewal preferences, nil if unset.
func (s *RenewalService) GetSetting(ctx context.Context, userID string) (*models.AutoRenewalSetting, error) {
	return s.repos.Renewal.GetSetting(ctx, userID)
}

// UpdateSetting stores a user's auto-renewal preferences. The payment
// identity and attempt budget carry over from the existing row, so a
// preference change never detaches the Stripe customer or refreshes a
// spent budget.
func (s *RenewalService) UpdateSetting(ctx context.Context, setting *models.AutoRenewalSetting) error {
	if setting.Enabled {
		if s.billingConfig.Bundle(setting.TargetBundleID) == nil {
			return fmt.Errorf("%w: %s", ErrUnknownBundle, setting.TargetBundleID)
		}
		if setting.ThresholdCredits <= 0 {
			return fmt.Errorf("threshold must be positive, got %d", setting.ThresholdCredits)
		}
	}

	existing, err := s.repos.Renewal.GetSetting(ctx, setting.UserID)
	if err != nil {
		return fmt.Errorf("failed to get renewal setting: %w", err)
	}
	if existing != nil {
		if setting.StripeCustomerID == "" {
			setting.StripeCustomerID = existing.StripeCustomerID
		}
		setting.AttemptCount = existing.AttemptCount
		setting.LastAttemptAt = existing.LastAttemptAt
	}

	setting.UpdatedAt = time.Now().UTC()
	return s.repos.Renewal.UpsertSetting(ctx, setting)
}

// CheckThreshold evaluates one user's renewal state and triggers a bundle
// repurchase when the balance has dropped below the threshold. Returns
// true when a renewal was triggered. Hitting the rolling attempt budget
// is a silent no-op; a failed external charge is recorded, notified, and
// left for the next scheduled check.
func (s *RenewalService) CheckThreshold(ctx context.Context, userID string) (bool, error) {
	setting, err := s.repos.Renewal.GetSetting(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("failed to get renewal setting: %w", err)
	}
	if setting == nil || !setting.Enabled || setting.TargetBundleID == "" || s.payments == nil {
		return false, nil
	}

	now := time.Now().UTC()

	// The attempt budget resets once the renewal window has elapsed
	// since the last attempt.
	if setting.LastAttemptAt != nil && now.Sub(*setting.LastAttemptAt) >= s.billingConfig.RenewalWindow {
		if err := s.repos.Renewal.ResetAttempts(ctx, userID, now); err != nil {
			return false, fmt.Errorf("failed to reset attempt budget: %w", err)
		}
		setting.AttemptCount = 0
	}
	if setting.AttemptCount >= s.billingConfig.RenewalMaxAttempts {
		return false, nil
	}

	balance, err := s.repos.Bucket.GetBalance(ctx, userID, now)
	if err != nil {
		return false, fmt.Errorf("failed to get balance: %w", err)
	}
	if balance >= setting.ThresholdCredits {
		return false, nil
	}

	bundle := s.billingConfig.Bundle(setting.TargetBundleID)
	if bundle == nil {
		s.logger.Error("renewal target bundle missing from catalog",
			"user_id", userID, "bundle_id", setting.TargetBundleID)
		return false, nil
	}

	// The pending attempt row is committed, and the attempt budget
	// spent, before the external call: a crash mid-charge must not buy
	// an extra attempt.
	attempt := &models.RenewalAttempt{
		ID:        ulid.Make().String(),
		UserID:    userID,
		BundleID:  bundle.ID,
		Credits:   bundle.Credits,
		Status:    models.RenewalPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repos.Renewal.RecordAttempt(ctx, attempt); err != nil {
		return false, fmt.Errorf("failed to record renewal attempt: %w", err)
	}

	s.logger.Info("auto-renewal triggered",
		"user_id", userID,
		"bundle_id", bundle.ID,
		"balance", balance,
		"threshold", setting.ThresholdCredits,
		"attempt", setting.AttemptCount+1,
	)

	paymentRef, err := s.payments.Charge(ctx, PaymentRequest{
		UserID:           userID,
		StripeCustomerID: setting.StripeCustomerID,
		BundleID:         bundle.ID,
		AmountUSDCents:   bundle.PriceUSDCents,
		AttemptID:        attempt.ID,
	})
	if err != nil {
		reason := err.Error()
		if uerr := s.repos.Renewal.UpdateAttemptStatus(ctx, attempt.ID,
			models.RenewalFailed, &reason, nil, time.Now().UTC()); uerr != nil {
			s.logger.Error("failed to mark attempt failed", "attempt_id", attempt.ID, "error", uerr)
		}
		s.notifier.RenewalFailed(ctx, userID, bundle.ID, reason)
		// Not retried inline; the next scheduled check is the next
		// opportunity, bounded by the attempt budget.
		return false, nil
	}

	if err := s.repos.Renewal.UpdateAttemptStatus(ctx, attempt.ID,
		models.RenewalPending, nil, &paymentRef, time.Now().UTC()); err != nil {
		s.logger.Error("failed to record payment ref", "attempt_id", attempt.ID, "error", err)
	}
	s.notifier.RenewalTriggered(ctx, userID, bundle.ID, bundle.Credits)
	return true, nil
}

// CompleteRenewal finishes the attempt matching an external payment
// confirmation: credits are granted idempotently and the attempt marked
// succeeded. Unknown references are ignored (ordinary purchases flow
// through the same payment pipeline).
func (s *RenewalService) CompleteRenewal(ctx context.Context, ledger *LedgerService, paymentRef string) error {
	attempt, err := s.repos.Renewal.GetAttemptByPaymentRef(ctx, paymentRef)
	if err != nil {
		return fmt.Errorf("failed to look up renewal attempt: %w", err)
	}
	if attempt == nil {
		return nil
	}

	if _, err := ledger.PurchaseBundle(ctx, attempt.UserID, attempt.BundleID, "stripe_payment:"+paymentRef); err != nil {
		return fmt.Errorf("failed to credit renewal purchase: %w", err)
	}
	if err := s.repos.Renewal.UpdateAttemptStatus(ctx, attempt.ID,
		models.RenewalSucceeded, nil, &paymentRef, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to mark attempt succeeded: %w", err)
	}

	s.logger.Info("auto-renewal completed",
		"user_id", attempt.UserID,
		"bundle_id", attempt.BundleID,
		"payment_ref", paymentRef,
	)
	return nil
}

// FailRenewal marks the attempt matching a failed external payment.
func (s *RenewalService) FailRenewal(ctx context.Context, paymentRef, reason string) error {
	attempt, err := s.repos.Renewal.GetAttemptByPaymentRef(ctx, paymentRef)
	if err != nil {
		return fmt.Errorf("failed to look up renewal attempt: %w", err)
	}
	if attempt == nil {
		return nil
	}

	if err := s.repos.Renewal.UpdateAttemptStatus(ctx, attempt.ID,
		models.RenewalFailed, &reason, &paymentRef, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to mark attempt failed: %w", err)
	}
	s.notifier.RenewalFailed(ctx, attempt.UserID, attempt.BundleID, reason)
	return nil
}

// Sweep runs CheckThreshold over every user with auto-renewal enabled.
// Returns how many renewals were triggered.
func (s *RenewalService) Sweep(ctx context.Context) (int, error) {
	settings, err := s.repos.Renewal.ListEnabled(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list renewal settings: %w", err)
	}

	triggered := 0
	for _, setting := range settings {
		ok, err := s.CheckThreshold(ctx, setting.UserID)
		if err != nil {
			s.logger.Error("renewal check failed", "user_id", setting.UserID, "error", err)
			continue
		}
		if ok {
			triggered++
		}
	}
	return triggered, nil
}
