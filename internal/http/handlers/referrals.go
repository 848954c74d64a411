package handlers

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/JAlbertCode/prompt-marketplace-sub001/internal/models"
	"github.com/JAlbertCode/prompt-marketplace-sub001/internal/service"
)

// ReferralHandler handles referral endpoints.
type ReferralHandler struct {
	referralSvc *service.ReferralService
}

// NewReferralHandler creates a new referral handler.
func NewReferralHandler(referralSvc *service.ReferralService) *ReferralHandler {
	return &ReferralHandler{referralSvc: referralSvc}
}

// ListReferralsOutput represents the referrals response.
type ListReferralsOutput struct {
	Body struct {
		Referrals []*models.Referral `json:"referrals"`
	}
}

// ListReferrals returns the referrals the user has made, pending and
// completed.
func (h *ReferralHandler) ListReferrals(ctx context.Context, input *struct{}) (*ListReferralsOutput, error) {
	userID := getUserID(ctx)
	if userID == "" {
		return nil, huma.Error401Unauthorized("unauthorized")
	}

	referrals, err := h.referralSvc.GetReferrals(ctx, userID)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to list referrals")
	}

	out := &ListReferralsOutput{}
	out.Body.Referrals = referrals
	return out, nil
}
