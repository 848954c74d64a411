// Package models defines the domain models for the credit engine.
package models

import "time"

// ========================================
// Credit Buckets
// ========================================

// BucketSource identifies how a credit bucket was funded.
type BucketSource string

const (
	SourcePurchased BucketSource = "purchased" // Paid purchase via Stripe
	SourceBonus     BucketSource = "bonus"     // Platform-granted bonus (welcome, automation tier)
	SourceReferral  BucketSource = "referral"  // Referral program grant
)

// CreditBucket is a discrete, independently-expiring grant of credits.
// Remaining only ever decreases after creation; top-ups create new buckets.
// A bucket whose ExpiresAt is in the past counts as zero for balance
// purposes regardless of the stored Remaining (lazy expiry).
type CreditBucket struct {
	ID        string       `json:"id"`
	UserID    string       `json:"user_id"`
	Amount    int64        `json:"amount"`    // Credits granted at creation
	Remaining int64        `json:"remaining"` // Credits left, 0 <= remaining <= amount
	Source    BucketSource `json:"source"`
	ExpiresAt *time.Time   `json:"expires_at,omitempty"` // NULL = never expires
	CreatedAt time.Time    `json:"created_at"`
}

// Expired reports whether the bucket has expired relative to now.
func (b *CreditBucket) Expired(now time.Time) bool {
	return b.ExpiresAt != nil && !b.ExpiresAt.After(now)
}

// ========================================
// Credit Transactions
// ========================================

// TransactionType defines the kind of balance-affecting event.
type TransactionType string

const (
	TxTypePurchase        TransactionType = "PURCHASE"
	TxTypePromptRun       TransactionType = "PROMPT_RUN"
	TxTypeFlowRun         TransactionType = "FLOW_RUN"
	TxTypeCreatorPayment  TransactionType = "CREATOR_PAYMENT"
	TxTypeAutomationBonus TransactionType = "AUTOMATION_BONUS"
	TxTypeReferralBonus   TransactionType = "REFERRAL_BONUS"
)

// CreditTransaction is an immutable audit record of one economic event.
// Amount is signed: negative = debit, positive = credit.
type CreditTransaction struct {
	ID     string          `json:"id"`
	UserID string          `json:"user_id"`
	Amount int64           `json:"amount"`
	Type   TransactionType `json:"type"`

	// Usage context (debits)
	ModelID   *string `json:"model_id,omitempty"`
	ItemType  *string `json:"item_type,omitempty"` // "prompt" or "flow"
	ItemID    *string `json:"item_id,omitempty"`
	CreatorID *string `json:"creator_id,omitempty"`

	// Source is a free-text caller tag, e.g. "web", "n8n_api".
	Source string `json:"source"`

	// Provenance is a unique idempotency key set on credit grants
	// (e.g. "stripe_payment:pi_123"). UNIQUE at the storage layer so a
	// duplicate delivery of the triggering event cannot double-credit.
	Provenance *string `json:"provenance,omitempty"`

	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// ItemType values accepted in burn metadata.
const (
	ItemTypePrompt = "prompt"
	ItemTypeFlow   = "flow"
)

// BurnMetadata tags a burn with the usage event that caused it.
type BurnMetadata struct {
	ModelID           string
	ItemType          string // ItemTypePrompt or ItemTypeFlow
	ItemID            string
	CreatorID         *string
	CreatorFeePercent *int
	Source            string // caller provenance tag, e.g. "n8n_api"
}

// ========================================
// Users (referral attribution only)
// ========================================

// User is the minimal per-user row the engine owns. Identity and sessions
// live with the external auth provider; this row exists to resolve referral
// codes and record one-time referral attribution.
type User struct {
	ID           string     `json:"id"`
	ReferralCode string     `json:"referral_code"`
	ReferredBy   *string    `json:"referred_by,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// ========================================
// Referrals
// ========================================

// ReferralStatus tracks the lifecycle of a referral.
type ReferralStatus string

const (
	ReferralPending  ReferralStatus = "pending"
	ReferralComplete ReferralStatus = "complete"
)

// Referral records one referrer -> referred relationship. Created once per
// referred user; transitions pending -> complete exactly once, when the
// referred user's spend crosses the qualification minimum.
type Referral struct {
	ID             string         `json:"id"`
	ReferrerID     string         `json:"referrer_id"`
	ReferredID     string         `json:"referred_id"`
	Status         ReferralStatus `json:"status"`
	CreditsAwarded int64          `json:"credits_awarded"`
	CompletedAt    *time.Time     `json:"completed_at,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// ========================================
// Automation Bonus Tiers
// ========================================

// AutomationBonusTier is one volume bracket of the monthly automation bonus
// program. Tiers partition [0, inf) into contiguous non-overlapping ranges
// ordered by MinBurn; the top tier uses MaxBurn = NoBurnCap.
type AutomationBonusTier struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	MinBurn     int64  `json:"min_burn"`
	MaxBurn     int64  `json:"max_burn"`
	Bonus       int64  `json:"bonus"`
	Description string `json:"description"`
}

// NoBurnCap marks an unbounded upper tier edge.
const NoBurnCap int64 = 1<<63 - 1

// Contains reports whether burn falls inside the tier's range.
func (t *AutomationBonusTier) Contains(burn int64) bool {
	return burn >= t.MinBurn && burn <= t.MaxBurn
}

// ========================================
// Auto-Renewal
// ========================================

// AutoRenewalSetting holds a user's replenishment preferences and the
// rolling attempt budget state.
type AutoRenewalSetting struct {
	UserID           string     `json:"user_id"`
	Enabled          bool       `json:"enabled"`
	ThresholdCredits int64      `json:"threshold_credits"`
	TargetBundleID   string     `json:"target_bundle_id"`
	StripeCustomerID string     `json:"stripe_customer_id,omitempty"`
	AttemptCount     int        `json:"attempt_count"`
	LastAttemptAt    *time.Time `json:"last_attempt_at,omitempty"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// RenewalStatus tracks one replenishment trigger.
type RenewalStatus string

const (
	RenewalPending   RenewalStatus = "pending"
	RenewalSucceeded RenewalStatus = "succeeded"
	RenewalFailed    RenewalStatus = "failed"
)

// RenewalAttempt logs one auto-renewal trigger against the payment
// collaborator. Logged with pending status before the external call
// resolves; flipped to succeeded/failed afterwards.
type RenewalAttempt struct {
	ID           string        `json:"id"`
	UserID       string        `json:"user_id"`
	BundleID     string        `json:"bundle_id"`
	Credits      int64         `json:"credits"`
	Status       RenewalStatus `json:"status"`
	ErrorMessage *string       `json:"error_message,omitempty"`
	PaymentRef   *string       `json:"payment_ref,omitempty"` // Stripe PaymentIntent id
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}
