package handlers

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	svix "github.com/svix/svix-webhooks/go"

	"github.com/JAlbertCode/prompt-marketplace-sub001/internal/config"
	"github.com/JAlbertCode/prompt-marketplace-sub001/internal/service"
)

// SignupWebhookHandler handles user lifecycle events from the auth
// provider: signups flow through the referral pipeline for welcome and
// referral bonuses.
type SignupWebhookHandler struct {
	cfg         *config.Config
	referralSvc *service.ReferralService
	logger      *slog.Logger
}

// NewSignupWebhookHandler creates a new signup webhook handler.
func NewSignupWebhookHandler(cfg *config.Config, referralSvc *service.ReferralService, logger *slog.Logger) *SignupWebhookHandler {
	return &SignupWebhookHandler{
		cfg:         cfg,
		referralSvc: referralSvc,
		logger:      logger,
	}
}

// signupEvent is the envelope the auth provider delivers.
type signupEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// signupData carries the new user and the referral code they signed up
// with, if any.
type signupData struct {
	ID           string `json:"id"`
	ReferralCode string `json:"referral_code,omitempty"`
}

// HandleWebhook processes incoming signup webhooks.
func (h *SignupWebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	const maxBodySize = 65536 // 64KB

	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.Error("failed to read webhook body", "error", err)
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	// Verify webhook signature using Svix
	headers := http.Header{}
	headers.Set("svix-id", r.Header.Get("svix-id"))
	headers.Set("svix-timestamp", r.Header.Get("svix-timestamp"))
	headers.Set("svix-signature", r.Header.Get("svix-signature"))

	wh, err := svix.NewWebhook(h.cfg.SignupWebhookSecret)
	if err != nil {
		h.logger.Error("failed to create webhook verifier", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if err := wh.Verify(payload, headers); err != nil {
		h.logger.Error("failed to verify webhook signature", "error", err)
		http.Error(w, "invalid signature", http.StatusBadRequest)
		return
	}

	var event signupEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		h.logger.Error("failed to unmarshal webhook event", "error", err)
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	if event.Type != "user.created" {
		h.logger.Debug("unhandled webhook event type", "type", event.Type)
		w.WriteHeader(http.StatusOK)
		return
	}

	var data signupData
	if err := json.Unmarshal(event.Data, &data); err != nil {
		h.logger.Error("failed to unmarshal signup data", "error", err)
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	if data.ID == "" {
		h.logger.Warn("signup event missing user id")
		w.WriteHeader(http.StatusOK)
		return
	}

	// Bonuses are provenance-keyed, so a redelivered event grants
	// nothing twice and the 200 below is always safe.
	result, err := h.referralSvc.ProcessNewUserSignup(r.Context(), data.ID, data.ReferralCode)
	if err != nil {
		h.logger.Error("failed to process signup", "user_id", data.ID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	h.logger.Info("signup processed",
		"user_id", data.ID,
		"credits_awarded", result.CreditsAwarded,
		"referred", result.ReferrerID != nil,
	)
	w.WriteHeader(http.StatusOK)
}
