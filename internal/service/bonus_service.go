package service

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/JAlbertCode/prompt-marketplace-sub001/internal/config"
	"github.com/JAlbertCode/prompt-marketplace-sub001/internal/models"
	"github.com/JAlbertCode/prompt-marketplace-sub001/internal/repository"
)

// DefaultTierWindowDays is the lookback window for automation burn.
const DefaultTierWindowDays = 30

// TierStatus describes a user's position in the automation bonus ladder.
type TierStatus struct {
	MonthlyBurn       int64                       `json:"monthly_burn"`
	CurrentTier       *models.AutomationBonusTier `json:"current_tier,omitempty"`
	NextTier          *models.AutomationBonusTier `json:"next_tier,omitempty"`
	Progress          float64                     `json:"progress"`
	DailyRate         float64                     `json:"daily_rate"`
	CreditsToNextTier int64                       `json:"credits_to_next_tier"`
	// DaysToNextTier is 0 when the daily rate is zero or the user is
	// already at the top tier.
	DaysToNextTier int `json:"days_to_next_tier"`
}

// BonusService classifies automation usage into bonus tiers and grants
// the monthly tier bonus.
type BonusService struct {
	repos         *repository.Repositories
	ledger        *LedgerService
	billingConfig *config.BillingConfig
	logger        *slog.Logger
}

// NewBonusService creates a new bonus service.
func NewBonusService(repos *repository.Repositories, ledger *LedgerService, billingConfig *config.BillingConfig, logger *slog.Logger) *BonusService {
	return &BonusService{
		repos:         repos,
		ledger:        ledger,
		billingConfig: billingConfig,
		logger:        logger,
	}
}

// CalculateAutomationTier sums the user's automation-tagged burn over the
// window and locates the matching tier. Burn below the lowest tier leaves
// CurrentTier nil with the lowest tier as NextTier.
func (s *BonusService) CalculateAutomationTier(ctx context.Context, userID string, windowDays int) (*TierStatus, error) {
	if windowDays <= 0 {
		windowDays = DefaultTierWindowDays
	}

	since := time.Now().UTC().AddDate(0, 0, -windowDays)
	burn, err := s.repos.Transaction.SumDebitsBySource(ctx, userID, s.billingConfig.AutomationSource, since)
	if err != nil {
		return nil, fmt.Errorf("failed to sum automation burn: %w", err)
	}

	status := &TierStatus{
		MonthlyBurn: burn,
		DailyRate:   float64(burn) / float64(windowDays),
	}

	tiers := s.billingConfig.AutomationTiers
	for i := range tiers {
		if tiers[i].Contains(burn) {
			status.CurrentTier = &tiers[i]
			if i+1 < len(tiers) {
				status.NextTier = &tiers[i+1]
			}
			break
		}
	}
	if status.CurrentTier == nil && len(tiers) > 0 {
		status.NextTier = &tiers[0]
	}

	// Progress runs linearly from the current tier's floor (or zero) to
	// the next tier's floor, clamped to [0,100]. At or above the top
	// tier's floor it is exactly 100.
	if status.NextTier == nil {
		status.Progress = 100
	} else {
		floor := int64(0)
		if status.CurrentTier != nil {
			floor = status.CurrentTier.MinBurn
		}
		span := status.NextTier.MinBurn - floor
		if span > 0 {
			status.Progress = float64(burn-floor) / float64(span) * 100
		}
		if status.Progress < 0 {
			status.Progress = 0
		}
		if status.Progress > 100 {
			status.Progress = 100
		}

		status.CreditsToNextTier = status.NextTier.MinBurn - burn
		if status.CreditsToNextTier < 0 {
			status.CreditsToNextTier = 0
		}
		if status.DailyRate > 0 && status.CreditsToNextTier > 0 {
			status.DaysToNextTier = int(math.Ceil(float64(status.CreditsToNextTier) / status.DailyRate))
		}
	}

	return status, nil
}

// GrantBonusIfDue grants the user's current tier bonus, at most once per
// calendar month. Returns the credits granted (0 when nothing was due).
func (s *BonusService) GrantBonusIfDue(ctx context.Context, userID string) (int64, error) {
	status, err := s.CalculateAutomationTier(ctx, userID, DefaultTierWindowDays)
	if err != nil {
		return 0, err
	}
	if status.CurrentTier == nil || status.CurrentTier.Bonus <= 0 {
		return 0, nil
	}

	now := time.Now().UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	granted, err := s.repos.Transaction.HasTypeSince(ctx, userID, models.TxTypeAutomationBonus, monthStart)
	if err != nil {
		return 0, fmt.Errorf("failed to check bonus history: %w", err)
	}
	if granted {
		return 0, nil
	}

	// The provenance key makes the month guard hold even if two sweep
	// passes race past the HasTypeSince check.
	provenance := fmt.Sprintf("automation_bonus:%s:%s", userID, now.Format("2006-01"))
	_, err = s.ledger.AddCredits(ctx, userID, status.CurrentTier.Bonus,
		models.SourceBonus, models.TxTypeAutomationBonus, provenance,
		fmt.Sprintf("%s tier automation bonus", status.CurrentTier.Name))
	if err != nil {
		return 0, fmt.Errorf("failed to grant automation bonus: %w", err)
	}

	s.logger.Info("automation bonus granted",
		"user_id", userID,
		"tier", status.CurrentTier.Name,
		"bonus", status.CurrentTier.Bonus,
		"monthly_burn", status.MonthlyBurn,
	)
	return status.CurrentTier.Bonus, nil
}

// GrantMonthlyBonuses runs the bonus pass over every user. Failures are
// logged and skipped; the next scheduled pass retries them.
func (s *BonusService) GrantMonthlyBonuses(ctx context.Context) (int, error) {
	userIDs, err := s.repos.User.ListIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list users: %w", err)
	}

	granted := 0
	for _, userID := range userIDs {
		bonus, err := s.GrantBonusIfDue(ctx, userID)
		if err != nil {
			s.logger.Error("bonus grant failed", "user_id", userID, "error", err)
			continue
		}
		if bonus > 0 {
			granted++
		}
	}
	return granted, nil
}
