package handlers

import (
	"context"
	"log/slog"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/JAlbertCode/prompt-marketplace-sub001/internal/models"
	"github.com/JAlbertCode/prompt-marketplace-sub001/internal/pricing"
	"github.com/JAlbertCode/prompt-marketplace-sub001/internal/service"
)

// CreditsHandler handles balance, burn, and history endpoints.
type CreditsHandler struct {
	ledger  *service.LedgerService
	pricing *pricing.Calculator
	logger  *slog.Logger
}

// NewCreditsHandler creates a new credits handler.
func NewCreditsHandler(ledger *service.LedgerService, calc *pricing.Calculator, logger *slog.Logger) *CreditsHandler {
	return &CreditsHandler{ledger: ledger, pricing: calc, logger: logger}
}

// GetBalanceOutput represents the balance response.
type GetBalanceOutput struct {
	Body struct {
		Balance int64 `json:"balance" doc:"Spendable credits across non-expired buckets"`
	}
}

// GetBalance returns the user's spendable credit balance.
func (h *CreditsHandler) GetBalance(ctx context.Context, input *struct{}) (*GetBalanceOutput, error) {
	userID := getUserID(ctx)
	if userID == "" {
		return nil, huma.Error401Unauthorized("unauthorized")
	}

	balance, err := h.ledger.GetBalance(ctx, userID)
	if err != nil {
		return nil, serviceError(err, h.logger, "get balance")
	}

	out := &GetBalanceOutput{}
	out.Body.Balance = balance
	return out, nil
}

// RunInput represents a prompt or flow invocation to charge for.
type RunInput struct {
	Body struct {
		ModelID          string `json:"model_id" minLength:"1" doc:"Model the prompt runs against"`
		ItemType         string `json:"item_type" enum:"prompt,flow" doc:"What is being run"`
		ItemID           string `json:"item_id" minLength:"1" doc:"Marketplace item id"`
		PromptChars      int    `json:"prompt_chars" minimum:"0" doc:"Prompt content length in characters"`
		Provider         string `json:"provider,omitempty" doc:"Model provider, for length classification"`
		CreatorID        string `json:"creator_id,omitempty" doc:"Item creator, paid a fee share when set"`
		CreatorFeePct    int    `json:"creator_fee_percent,omitempty" minimum:"0" maximum:"100" doc:"Creator fee percentage"`
		Source           string `json:"source,omitempty" doc:"Caller tag, e.g. web or n8n_api"`
	}
}

// RunOutput represents the charge result.
type RunOutput struct {
	Body struct {
		TransactionID string `json:"transaction_id"`
		Cost          int64  `json:"cost" doc:"Total credits charged, creator fee included"`
		Balance       int64  `json:"balance" doc:"Balance after the charge"`
	}
}

// Run charges a prompt or flow invocation: cost is computed from the
// model registry, burned atomically across the user's buckets, and the
// creator's fee share is credited to the creator.
func (h *CreditsHandler) Run(ctx context.Context, input *RunInput) (*RunOutput, error) {
	userID := getUserID(ctx)
	if userID == "" {
		return nil, huma.Error401Unauthorized("unauthorized")
	}

	length := pricing.ClassifyLength(input.Body.PromptChars, input.Body.Provider)
	cost, err := h.pricing.ComputeCost(input.Body.ModelID, length, input.Body.CreatorFeePct)
	if err != nil {
		return nil, serviceError(err, h.logger, "compute cost")
	}

	source := input.Body.Source
	if source == "" {
		source = "web"
	}
	meta := models.BurnMetadata{
		ModelID:  input.Body.ModelID,
		ItemType: input.Body.ItemType,
		ItemID:   input.Body.ItemID,
		Source:   source,
	}
	if input.Body.CreatorID != "" {
		meta.CreatorID = &input.Body.CreatorID
		meta.CreatorFeePercent = &input.Body.CreatorFeePct
	}

	tx, err := h.ledger.Burn(ctx, userID, cost, meta)
	if err != nil {
		return nil, serviceError(err, h.logger, "charge run")
	}

	if input.Body.CreatorID != "" && input.Body.CreatorID != userID {
		base, _ := h.pricing.ComputeCost(input.Body.ModelID, length, 0)
		fee := pricing.CreatorFee(base, input.Body.CreatorFeePct)
		if err := h.ledger.PayCreatorFee(ctx, input.Body.CreatorID, fee, tx.ID); err != nil {
			// The user's charge stands; the fee grant is retryable by
			// provenance, so log and keep the response successful.
			h.logger.Error("creator fee grant failed",
				"burn_tx", tx.ID, "creator_id", input.Body.CreatorID, "error", err)
		}
	}

	balance, err := h.ledger.GetBalance(ctx, userID)
	if err != nil {
		return nil, serviceError(err, h.logger, "get balance")
	}

	out := &RunOutput{}
	out.Body.TransactionID = tx.ID
	out.Body.Cost = cost
	out.Body.Balance = balance
	return out, nil
}

// ListTransactionsInput represents history pagination.
type ListTransactionsInput struct {
	Limit  int `query:"limit" default:"50" minimum:"1" maximum:"200" doc:"Page size"`
	Offset int `query:"offset" default:"0" minimum:"0" doc:"Page offset"`
}

// ListTransactionsOutput represents the history response.
type ListTransactionsOutput struct {
	Body struct {
		Transactions []*models.CreditTransaction `json:"transactions"`
	}
}

// ListTransactions returns the user's transaction history, newest first.
func (h *CreditsHandler) ListTransactions(ctx context.Context, input *ListTransactionsInput) (*ListTransactionsOutput, error) {
	userID := getUserID(ctx)
	if userID == "" {
		return nil, huma.Error401Unauthorized("unauthorized")
	}

	txs, err := h.ledger.GetTransactionHistory(ctx, userID, input.Limit, input.Offset)
	if err != nil {
		return nil, serviceError(err, h.logger, "list transactions")
	}

	out := &ListTransactionsOutput{}
	out.Body.Transactions = txs
	return out, nil
}

// BucketView is a bucket as shown to its owner.
type BucketView struct {
	ID        string     `json:"id"`
	Amount    int64      `json:"amount"`
	Remaining int64      `json:"remaining"`
	Source    string     `json:"source"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	Expired   bool       `json:"expired"`
}

// ListBucketsOutput represents the buckets response.
type ListBucketsOutput struct {
	Body struct {
		Buckets []BucketView `json:"buckets" doc:"Buckets in draw order, soonest-expiring first"`
	}
}

// ListBuckets returns the user's credit buckets in draw order.
func (h *CreditsHandler) ListBuckets(ctx context.Context, input *struct{}) (*ListBucketsOutput, error) {
	userID := getUserID(ctx)
	if userID == "" {
		return nil, huma.Error401Unauthorized("unauthorized")
	}

	buckets, err := h.ledger.GetBuckets(ctx, userID)
	if err != nil {
		return nil, serviceError(err, h.logger, "list buckets")
	}

	now := time.Now().UTC()
	out := &ListBucketsOutput{}
	out.Body.Buckets = make([]BucketView, 0, len(buckets))
	for _, b := range buckets {
		out.Body.Buckets = append(out.Body.Buckets, BucketView{
			ID:        b.ID,
			Amount:    b.Amount,
			Remaining: b.Remaining,
			Source:    string(b.Source),
			ExpiresAt: b.ExpiresAt,
			CreatedAt: b.CreatedAt,
			Expired:   b.Expired(now),
		})
	}
	return out, nil
}

// BundleView is a catalog entry as shown to buyers.
type BundleView struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Credits       int64  `json:"credits"`
	PriceUSDCents int64  `json:"price_usd_cents"`
}

// ListBundlesOutput represents the bundle catalog response.
type ListBundlesOutput struct {
	Body struct {
		Bundles []BundleView `json:"bundles"`
	}
}

// ListBundles returns the purchasable bundle catalog.
func (h *CreditsHandler) ListBundles(ctx context.Context, input *struct{}) (*ListBundlesOutput, error) {
	out := &ListBundlesOutput{}
	for _, b := range h.ledger.Bundles() {
		out.Body.Bundles = append(out.Body.Bundles, BundleView{
			ID:            b.ID,
			Name:          b.Name,
			Credits:       b.Credits,
			PriceUSDCents: b.PriceUSDCents,
		})
	}
	return out, nil
}
