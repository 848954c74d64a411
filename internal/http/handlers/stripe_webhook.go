package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/webhook"

	"github.com/JAlbertCode/prompt-marketplace-sub001/internal/config"
	"github.com/JAlbertCode/prompt-marketplace-sub001/internal/service"
)

// StripeWebhookHandler handles Stripe webhook events.
type StripeWebhookHandler struct {
	cfg        *config.Config
	ledgerSvc  *service.LedgerService
	renewalSvc *service.RenewalService
	logger     *slog.Logger
}

// NewStripeWebhookHandler creates a new Stripe webhook handler.
func NewStripeWebhookHandler(cfg *config.Config, ledgerSvc *service.LedgerService, renewalSvc *service.RenewalService, logger *slog.Logger) *StripeWebhookHandler {
	return &StripeWebhookHandler{
		cfg:        cfg,
		ledgerSvc:  ledgerSvc,
		renewalSvc: renewalSvc,
		logger:     logger,
	}
}

// HandleWebhook processes incoming Stripe webhooks.
// This is a raw HTTP handler since huma doesn't handle raw body verification well.
func (h *StripeWebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	const maxBodySize = 65536 // 64KB

	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.Error("failed to read webhook body", "error", err)
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	sigHeader := r.Header.Get("Stripe-Signature")
	event, err := webhook.ConstructEvent(payload, sigHeader, h.cfg.StripeWebhookSecret)
	if err != nil {
		h.logger.Error("failed to verify webhook signature", "error", err)
		http.Error(w, "invalid signature", http.StatusBadRequest)
		return
	}

	// Internal failures still return 200: every credit grant behind
	// these events is provenance-keyed, so a Stripe retry storm buys
	// nothing, and genuine failures are replayed from the dashboard.
	if err := h.handleEvent(r.Context(), event); err != nil {
		h.logger.Error("failed to handle webhook event", "type", event.Type, "error", err)
	}
	w.WriteHeader(http.StatusOK)
}

// handleEvent routes events to appropriate handlers.
func (h *StripeWebhookHandler) handleEvent(ctx context.Context, event stripe.Event) error {
	h.logger.Info("received Stripe webhook", "type", event.Type, "id", event.ID)

	switch event.Type {
	case "checkout.session.completed":
		return h.handleCheckoutComplete(ctx, event)

	case "payment_intent.succeeded":
		return h.handlePaymentSucceeded(ctx, event)

	case "payment_intent.payment_failed":
		return h.handlePaymentFailed(ctx, event)

	default:
		h.logger.Debug("unhandled webhook event type", "type", event.Type)
		return nil
	}
}

// handleCheckoutComplete credits a bundle purchase made through Stripe
// Checkout. The provenance key is the payment intent, so a redelivered
// event cannot double-credit.
func (h *StripeWebhookHandler) handleCheckoutComplete(ctx context.Context, event stripe.Event) error {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return fmt.Errorf("failed to unmarshal checkout session: %w", err)
	}

	userID, ok := session.Metadata["user_id"]
	if !ok || userID == "" {
		h.logger.Warn("checkout session missing user_id", "session_id", session.ID)
		return nil
	}
	bundleID, ok := session.Metadata["bundle_id"]
	if !ok || bundleID == "" {
		h.logger.Warn("checkout session missing bundle_id", "session_id", session.ID)
		return nil
	}

	paymentRef := session.ID
	if session.PaymentIntent != nil && session.PaymentIntent.ID != "" {
		paymentRef = session.PaymentIntent.ID
	}

	txID, err := h.ledgerSvc.PurchaseBundle(ctx, userID, bundleID, "stripe_payment:"+paymentRef)
	if err != nil {
		return fmt.Errorf("failed to credit checkout: %w", err)
	}

	h.logger.Info("checkout credited",
		"user_id", userID,
		"bundle_id", bundleID,
		"payment_ref", paymentRef,
		"transaction_id", txID,
	)
	return nil
}

// handlePaymentSucceeded completes an auto-renewal charge. Payment
// intents that don't match a renewal attempt belong to ordinary
// checkouts and are ignored here.
func (h *StripeWebhookHandler) handlePaymentSucceeded(ctx context.Context, event stripe.Event) error {
	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return fmt.Errorf("failed to unmarshal payment intent: %w", err)
	}
	return h.renewalSvc.CompleteRenewal(ctx, h.ledgerSvc, intent.ID)
}

// handlePaymentFailed marks a failed auto-renewal charge.
func (h *StripeWebhookHandler) handlePaymentFailed(ctx context.Context, event stripe.Event) error {
	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return fmt.Errorf("failed to unmarshal payment intent: %w", err)
	}

	reason := "payment failed"
	if intent.LastPaymentError != nil && intent.LastPaymentError.Msg != "" {
		reason = intent.LastPaymentError.Msg
	}
	return h.renewalSvc.FailRenewal(ctx, intent.ID, reason)
}
