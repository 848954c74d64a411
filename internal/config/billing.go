package config

import (
	"time"

	"github.com/JAlbertCode/prompt-marketplace-sub001/internal/models"
)

// BillingConfig holds credit-program configuration: bonus amounts, expiry
// policy, referral qualification, bundles, and the automation tier table.
// Credits are the atomic unit (1,000,000 credits = $1).
type BillingConfig struct {
	// WelcomeBonusCredits is granted to every new signup.
	WelcomeBonusCredits int64

	// ReferralInviteeBonus is granted to a referred user at signup, on top
	// of the welcome bonus.
	ReferralInviteeBonus int64

	// ReferralReferrerBonus is granted to the referrer once the referred
	// user's spend reaches ReferralMinSpend.
	ReferralReferrerBonus int64
	ReferralMinSpend      int64

	// BonusExpiryDays / ReferralExpiryDays bound the lifetime of granted
	// buckets. Purchased buckets never expire.
	BonusExpiryDays    int
	ReferralExpiryDays int

	// AutomationSource is the transaction source tag that counts toward
	// automation bonus tiers (burns made through the automation API).
	AutomationSource string

	// RenewalMaxAttempts caps auto-renewal triggers per RenewalWindow.
	RenewalMaxAttempts int
	RenewalWindow      time.Duration

	// Bundles is the purchasable credit bundle catalog, keyed by bundle id.
	Bundles map[string]CreditBundle

	// AutomationTiers partitions [0, inf) by 30-day automation burn.
	// Must be sorted by MinBurn ascending, contiguous and non-overlapping.
	AutomationTiers []models.AutomationBonusTier
}

// CreditBundle is one purchasable credit package.
type CreditBundle struct {
	ID            string
	Name          string
	Credits       int64
	PriceUSDCents int64
	StripePriceID string
}

// DefaultBillingConfig returns the default billing configuration.
func DefaultBillingConfig() BillingConfig {
	return BillingConfig{
		WelcomeBonusCredits:   2_500_000,  // $2.50 to try the platform
		ReferralInviteeBonus:  5_000_000,  // $5 for signing up via a referral
		ReferralReferrerBonus: 10_000_000, // $10 once the invitee qualifies
		ReferralMinSpend:      10_000_000, // invitee must spend $10 to qualify

		BonusExpiryDays:    90,
		ReferralExpiryDays: 180,

		AutomationSource: "n8n_api",

		RenewalMaxAttempts: 3,
		RenewalWindow:      24 * time.Hour,

		Bundles: map[string]CreditBundle{
			"starter": {ID: "starter", Name: "Starter", Credits: 10_000_000, PriceUSDCents: 1000, StripePriceID: "price_starter"},
			"creator": {ID: "creator", Name: "Creator", Credits: 25_000_000, PriceUSDCents: 2500, StripePriceID: "price_creator"},
			"pro":     {ID: "pro", Name: "Pro", Credits: 100_000_000, PriceUSDCents: 10000, StripePriceID: "price_pro"},
			"scale":   {ID: "scale", Name: "Scale", Credits: 500_000_000, PriceUSDCents: 50000, StripePriceID: "price_scale"},
		},

		AutomationTiers: []models.AutomationBonusTier{
			{
				ID:          "tier-builder",
				Name:        "Builder",
				MinBurn:     10_000_000,
				MaxBurn:     49_999_999,
				Bonus:       1_000_000,
				Description: "$10+ of automation usage per month",
			},
			{
				ID:          "tier-operator",
				Name:        "Operator",
				MinBurn:     50_000_000,
				MaxBurn:     199_999_999,
				Bonus:       7_500_000,
				Description: "$50+ of automation usage per month",
			},
			{
				ID:          "tier-scale",
				Name:        "Scale",
				MinBurn:     200_000_000,
				MaxBurn:     models.NoBurnCap,
				Bonus:       40_000_000,
				Description: "$200+ of automation usage per month",
			},
		},
	}
}

// Bundle returns the bundle for an id, nil when the id is not in the
// catalog.
func (c *BillingConfig) Bundle(id string) *CreditBundle {
	if b, ok := c.Bundles[id]; ok {
		return &b
	}
	return nil
}

// ExpiryDays returns the default bucket lifetime in days for a source.
// Zero means no expiry.
func (c *BillingConfig) ExpiryDays(source models.BucketSource) int {
	switch source {
	case models.SourceBonus:
		return c.BonusExpiryDays
	case models.SourceReferral:
		return c.ReferralExpiryDays
	default:
		return 0
	}
}
