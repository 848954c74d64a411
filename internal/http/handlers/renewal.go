package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/JAlbertCode/prompt-marketplace-sub001/internal/models"
	"github.com/JAlbertCode/prompt-marketplace-sub001/internal/service"
)

// RenewalHandler handles auto-renewal settings endpoints.
type RenewalHandler struct {
	renewalSvc *service.RenewalService
}

// NewRenewalHandler creates a new renewal handler.
func NewRenewalHandler(renewalSvc *service.RenewalService) *RenewalHandler {
	return &RenewalHandler{renewalSvc: renewalSvc}
}

// RenewalSettingBody is the wire form of a user's auto-renewal setting.
type RenewalSettingBody struct {
	Enabled          bool       `json:"enabled"`
	ThresholdCredits int64      `json:"threshold_credits" minimum:"0" doc:"Renew when balance drops below this"`
	TargetBundleID   string     `json:"target_bundle_id,omitempty" doc:"Bundle to repurchase"`
	AttemptCount     int        `json:"attempt_count,omitempty" readOnly:"true"`
	LastAttemptAt    *time.Time `json:"last_attempt_at,omitempty" readOnly:"true"`
}

// GetRenewalSettingOutput represents the settings response.
type GetRenewalSettingOutput struct {
	Body RenewalSettingBody
}

// GetSetting returns the user's auto-renewal preferences. Users who
// never configured renewal get the disabled zero value.
func (h *RenewalHandler) GetSetting(ctx context.Context, input *struct{}) (*GetRenewalSettingOutput, error) {
	userID := getUserID(ctx)
	if userID == "" {
		return nil, huma.Error401Unauthorized("unauthorized")
	}

	setting, err := h.renewalSvc.GetSetting(ctx, userID)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to get renewal setting")
	}

	out := &GetRenewalSettingOutput{}
	if setting != nil {
		out.Body = RenewalSettingBody{
			Enabled:          setting.Enabled,
			ThresholdCredits: setting.ThresholdCredits,
			TargetBundleID:   setting.TargetBundleID,
			AttemptCount:     setting.AttemptCount,
			LastAttemptAt:    setting.LastAttemptAt,
		}
	}
	return out, nil
}

// UpdateRenewalSettingInput represents a settings update.
type UpdateRenewalSettingInput struct {
	Body struct {
		Enabled          bool   `json:"enabled"`
		ThresholdCredits int64  `json:"threshold_credits" minimum:"0"`
		TargetBundleID   string `json:"target_bundle_id,omitempty"`
	}
}

// UpdateSetting stores the user's auto-renewal preferences.
func (h *RenewalHandler) UpdateSetting(ctx context.Context, input *UpdateRenewalSettingInput) (*GetRenewalSettingOutput, error) {
	userID := getUserID(ctx)
	if userID == "" {
		return nil, huma.Error401Unauthorized("unauthorized")
	}

	setting := &models.AutoRenewalSetting{
		UserID:           userID,
		Enabled:          input.Body.Enabled,
		ThresholdCredits: input.Body.ThresholdCredits,
		TargetBundleID:   input.Body.TargetBundleID,
	}
	if err := h.renewalSvc.UpdateSetting(ctx, setting); err != nil {
		if errors.Is(err, service.ErrUnknownBundle) {
			return nil, huma.Error422UnprocessableEntity("unknown bundle")
		}
		return nil, huma.Error422UnprocessableEntity(err.Error())
	}

	return h.GetSetting(ctx, nil)
}
