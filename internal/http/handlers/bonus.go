package handlers

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/JAlbertCode/prompt-marketplace-sub001/internal/service"
)

// BonusHandler handles automation tier endpoints.
type BonusHandler struct {
	bonusSvc *service.BonusService
}

// NewBonusHandler creates a new bonus handler.
func NewBonusHandler(bonusSvc *service.BonusService) *BonusHandler {
	return &BonusHandler{bonusSvc: bonusSvc}
}

// GetTierStatusOutput represents the automation tier response.
type GetTierStatusOutput struct {
	Body service.TierStatus
}

// GetTierStatus returns the user's automation tier standing: current and
// next tier, progress, and a burn-rate projection toward the next tier.
func (h *BonusHandler) GetTierStatus(ctx context.Context, input *struct{}) (*GetTierStatusOutput, error) {
	userID := getUserID(ctx)
	if userID == "" {
		return nil, huma.Error401Unauthorized("unauthorized")
	}

	status, err := h.bonusSvc.CalculateAutomationTier(ctx, userID, service.DefaultTierWindowDays)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to get tier status")
	}

	return &GetTierStatusOutput{Body: *status}, nil
}
