// Package service contains the business logic layer.
// Note: User identity, OAuth, and sessions are handled by the external auth
// provider. The UserID in services references its user IDs (e.g., "user_xxx").
package service

import (
	"log/slog"

	"github.com/JAlbertCode/prompt-marketplace-sub001/internal/config"
	"github.com/JAlbertCode/prompt-marketplace-sub001/internal/pricing"
	"github.com/JAlbertCode/prompt-marketplace-sub001/internal/repository"
)

// Services holds all service instances.
type Services struct {
	Ledger   *LedgerService
	Bonus    *BonusService
	Referral *ReferralService
	Renewal  *RenewalService
	Pricing  *pricing.Calculator
}

// NewServices creates all service instances.
func NewServices(cfg *config.Config, repos *repository.Repositories, logger *slog.Logger) (*Services, error) {
	billingCfg := config.DefaultBillingConfig()

	registry := pricing.NewRegistry()
	calculator := pricing.NewCalculator(registry)

	ledgerSvc := NewLedgerService(repos, &billingCfg, logger)
	bonusSvc := NewBonusService(repos, ledgerSvc, &billingCfg, logger)
	referralSvc := NewReferralService(repos, ledgerSvc, &billingCfg, logger)

	// Renewal needs a payment client; Stripe is attached in main when a
	// secret key is configured, tests inject fakes.
	renewalSvc := NewRenewalService(repos, &billingCfg, NewLogNotifier(logger), logger)

	return &Services{
		Ledger:   ledgerSvc,
		Bonus:    bonusSvc,
		Referral: referralSvc,
		Renewal:  renewalSvc,
		Pricing:  calculator,
	}, nil
}
