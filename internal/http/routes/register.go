// Package routes wires API operations to their handlers.
package routes

import (
	"github.com/danielgtaylor/huma/v2"

	"github.com/JAlbertCode/prompt-marketplace-sub001/internal/http/handlers"
	"github.com/JAlbertCode/prompt-marketplace-sub001/internal/http/mw"
)

// Register registers all API routes with the given Huma API instance.
func Register(api huma.API, h *handlers.Handlers) {
	// Public routes
	mw.PublicGet(api, "/api/v1/health", handlers.HealthCheck,
		mw.WithTags("Health"),
		mw.WithSummary("Health check"),
		mw.WithOperationID("healthCheck"))

	// Liveness probe, kept out of the OpenAPI docs.
	mw.HiddenGet(api, "/livez", handlers.HealthCheck)

	mw.PublicGet(api, "/api/v1/bundles", h.Credits.ListBundles,
		mw.WithTags("Credits"),
		mw.WithSummary("List credit bundles"),
		mw.WithOperationID("listBundles"))

	// Protected routes
	mw.ProtectedGet(api, "/api/v1/credits/balance", h.Credits.GetBalance,
		mw.WithTags("Credits"),
		mw.WithSummary("Get credit balance"),
		mw.WithOperationID("getBalance"))
	mw.ProtectedGet(api, "/api/v1/credits/buckets", h.Credits.ListBuckets,
		mw.WithTags("Credits"),
		mw.WithSummary("List credit buckets"),
		mw.WithOperationID("listBuckets"))
	mw.ProtectedGet(api, "/api/v1/credits/transactions", h.Credits.ListTransactions,
		mw.WithTags("Credits"),
		mw.WithSummary("List credit transactions"),
		mw.WithOperationID("listTransactions"))
	mw.ProtectedPost(api, "/api/v1/runs", h.Credits.Run,
		mw.WithTags("Runs"),
		mw.WithSummary("Charge a prompt or flow run"),
		mw.WithOperationID("chargeRun"))

	mw.ProtectedGet(api, "/api/v1/automation/tier", h.Bonus.GetTierStatus,
		mw.WithTags("Automation"),
		mw.WithSummary("Get automation tier status"),
		mw.WithOperationID("getTierStatus"))

	mw.ProtectedGet(api, "/api/v1/referrals", h.Referral.ListReferrals,
		mw.WithTags("Referrals"),
		mw.WithSummary("List referrals"),
		mw.WithOperationID("listReferrals"))

	mw.ProtectedGet(api, "/api/v1/renewal/settings", h.Renewal.GetSetting,
		mw.WithTags("Renewal"),
		mw.WithSummary("Get auto-renewal settings"),
		mw.WithOperationID("getRenewalSettings"))
	mw.ProtectedPut(api, "/api/v1/renewal/settings", h.Renewal.UpdateSetting,
		mw.WithTags("Renewal"),
		mw.WithSummary("Update auto-renewal settings"),
		mw.WithOperationID("updateRenewalSettings"))
}
