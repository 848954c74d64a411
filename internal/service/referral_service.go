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

// SignupResult reports what a new-user signup was granted.
type SignupResult struct {
	CreditsAwarded int64   `json:"credits_awarded"`
	ReferrerID     *string `json:"referrer_id,omitempty"`
}

// ReferralService handles signup attribution and referral qualification.
type ReferralService struct {
	repos         *repository.Repositories
	ledger        *LedgerService
	billingConfig *config.BillingConfig
	logger        *slog.Logger
}

// NewReferralService creates a new referral service.
func NewReferralService(repos *repository.Repositories, ledger *LedgerService, billingConfig *config.BillingConfig, logger *slog.Logger) *ReferralService {
	return &ReferralService{
		repos:         repos,
		ledger:        ledger,
		billingConfig: billingConfig,
		logger:        logger,
	}
}

// ProcessNewUserSignup registers a user, grants the welcome bonus, and,
// when a valid referral code is supplied, attaches the referrer, grants
// the invitee bonus, and opens a pending referral. An unknown code, a
// self-referral, or an already-attributed user falls back to the welcome
// bonus alone.
func (s *ReferralService) ProcessNewUserSignup(ctx context.Context, userID, referralCode string) (*SignupResult, error) {
	now := time.Now().UTC()

	existing, err := s.repos.User.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if existing == nil {
		user := &models.User{
			ID:           userID,
			ReferralCode: newReferralCode(),
			CreatedAt:    now,
		}
		if err := s.repos.User.Create(ctx, user); err != nil {
			return nil, fmt.Errorf("failed to create user: %w", err)
		}
		existing = user
	}

	result := &SignupResult{}

	// Welcome bonus is provenance-keyed on the user id, so a replayed
	// signup event grants nothing twice.
	welcome := s.billingConfig.WelcomeBonusCredits
	if welcome > 0 {
		if _, err := s.ledger.AddCredits(ctx, userID, welcome,
			models.SourceBonus, models.TxTypeReferralBonus,
			"welcome:"+userID, "Welcome bonus"); err != nil {
			return nil, fmt.Errorf("failed to grant welcome bonus: %w", err)
		}
		result.CreditsAwarded += welcome
	}

	referrer := s.resolveReferrer(ctx, userID, existing, referralCode)
	if referrer == nil {
		return result, nil
	}

	attached, err := s.repos.User.SetReferredBy(ctx, userID, referrer.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to attach referrer: %w", err)
	}
	if !attached {
		// Raced with another delivery that already attributed the user.
		return result, nil
	}

	referral := &models.Referral{
		ID:         ulid.Make().String(),
		ReferrerID: referrer.ID,
		ReferredID: userID,
		Status:     models.ReferralPending,
		CreatedAt:  now,
	}
	if err := s.repos.Referral.Create(ctx, referral); err != nil {
		return nil, fmt.Errorf("failed to create referral: %w", err)
	}

	invitee := s.billingConfig.ReferralInviteeBonus
	if invitee > 0 {
		if _, err := s.ledger.AddCredits(ctx, userID, invitee,
			models.SourceReferral, models.TxTypeReferralBonus,
			"referral_invitee:"+userID, "Referral signup bonus"); err != nil {
			return nil, fmt.Errorf("failed to grant invitee bonus: %w", err)
		}
		result.CreditsAwarded += invitee
	}
	result.ReferrerID = &referrer.ID

	s.logger.Info("referral recorded",
		"referred_id", userID,
		"referrer_id", referrer.ID,
		"referral_id", referral.ID,
	)
	return result, nil
}

// resolveReferrer validates the supplied code against the signup rules.
// Any rule failure returns nil: the signup proceeds with the welcome
// bonus only.
func (s *ReferralService) resolveReferrer(ctx context.Context, userID string, user *models.User, referralCode string) *models.User {
	if referralCode == "" || user.ReferredBy != nil {
		return nil
	}
	referrer, err := s.repos.User.GetByReferralCode(ctx, referralCode)
	if err != nil {
		s.logger.Error("referral code lookup failed", "code", referralCode, "error", err)
		return nil
	}
	if referrer == nil {
		s.logger.Info("unknown referral code ignored", "code", referralCode, "user_id", userID)
		return nil
	}
	if referrer.ID == userID {
		s.logger.Info("self-referral ignored", "user_id", userID)
		return nil
	}
	return referrer
}

// ProcessQualifyingReferrals scans pending referrals and completes those
// whose referred user has spent at least the configured minimum, granting
// the referrer bonus exactly once per referral. Returns how many referrals
// qualified in this pass.
func (s *ReferralService) ProcessQualifyingReferrals(ctx context.Context) (int, error) {
	pending, err := s.repos.Referral.GetPending(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get pending referrals: %w", err)
	}

	qualified := 0
	for _, referral := range pending {
		spend, err := s.repos.Transaction.SumDebits(ctx, referral.ReferredID, time.Time{})
		if err != nil {
			s.logger.Error("referral spend check failed", "referral_id", referral.ID, "error", err)
			continue
		}
		if spend < s.billingConfig.ReferralMinSpend {
			continue
		}

		// Grant before marking complete: the provenance key makes a
		// retried grant a no-op, while a completed row without a grant
		// would never be scanned again.
		bonus := s.billingConfig.ReferralReferrerBonus
		if _, err := s.ledger.AddCredits(ctx, referral.ReferrerID, bonus,
			models.SourceReferral, models.TxTypeReferralBonus,
			"referral_reward:"+referral.ID,
			fmt.Sprintf("Referral reward - %s qualified", referral.ReferredID)); err != nil {
			s.logger.Error("referrer bonus grant failed", "referral_id", referral.ID, "error", err)
			continue
		}

		completed, err := s.repos.Referral.MarkComplete(ctx, referral.ID, bonus, time.Now().UTC())
		if err != nil {
			s.logger.Error("referral completion failed", "referral_id", referral.ID, "error", err)
			continue
		}
		if !completed {
			// Another pass got there first.
			continue
		}

		s.logger.Info("referral qualified",
			"referral_id", referral.ID,
			"referrer_id", referral.ReferrerID,
			"referred_id", referral.ReferredID,
			"referred_spend", spend,
		)
		qualified++
	}
	return qualified, nil
}

// GetReferrals returns the referrals a user has made.
func (s *ReferralService) GetReferrals(ctx context.Context, referrerID string) ([]*models.Referral, error) {
	return s.repos.Referral.GetByReferrerID(ctx, referrerID)
}

// newReferralCode derives a short shareable code from a fresh ULID.
func newReferralCode() string {
	id := ulid.Make().String()
	return "PM-" + id[len(id)-8:]
}
