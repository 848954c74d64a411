// Package handlers contains HTTP handlers for the API.
package handlers

import (
	"context"
	"errors"
	"log/slog"

	"github.com/danielgtaylor/huma/v2"

	"github.com/JAlbertCode/prompt-marketplace-sub001/internal/http/mw"
	"github.com/JAlbertCode/prompt-marketplace-sub001/internal/pricing"
	"github.com/JAlbertCode/prompt-marketplace-sub001/internal/service"
	"github.com/JAlbertCode/prompt-marketplace-sub001/internal/version"
)

// Handlers bundles the API handler set.
type Handlers struct {
	Credits  *CreditsHandler
	Bonus    *BonusHandler
	Referral *ReferralHandler
	Renewal  *RenewalHandler
}

// NewHandlers creates the handler set over the service layer.
func NewHandlers(services *service.Services, logger *slog.Logger) *Handlers {
	return &Handlers{
		Credits:  NewCreditsHandler(services.Ledger, services.Pricing, logger),
		Bonus:    NewBonusHandler(services.Bonus),
		Referral: NewReferralHandler(services.Referral),
		Renewal:  NewRenewalHandler(services.Renewal),
	}
}

// HealthCheckOutput represents health check response.
type HealthCheckOutput struct {
	Body struct {
		Status  string `json:"status"`
		Version string `json:"version"`
	}
}

// HealthCheck returns the health status of the API.
func HealthCheck(ctx context.Context, input *struct{}) (*HealthCheckOutput, error) {
	out := &HealthCheckOutput{}
	out.Body.Status = "healthy"
	out.Body.Version = version.Version
	return out, nil
}

// getUserID extracts the authenticated user ID from context.
func getUserID(ctx context.Context) string {
	claims := mw.GetUserClaims(ctx)
	if claims == nil {
		return ""
	}
	return claims.UserID
}

// serviceError maps service-layer failures onto HTTP statuses. Anything
// unrecognized becomes a 500 with a generic message.
func serviceError(err error, logger *slog.Logger, action string) error {
	switch {
	case errors.Is(err, service.ErrInsufficientCredits):
		return huma.NewError(402, "insufficient credits")
	case errors.Is(err, service.ErrUnknownBundle):
		return huma.Error404NotFound("unknown bundle")
	case errors.Is(err, pricing.ErrModelNotFound):
		return huma.Error404NotFound("unknown model")
	default:
		logger.Error("request failed", "action", action, "error", err)
		return huma.Error500InternalServerError("failed to " + action)
	}
}
