package service

import (
	"context"
	"log/slog"
)

// Notifier delivers user-facing notifications. Email/push delivery is
// handled elsewhere; the engine only emits events through this interface.
type Notifier interface {
	RenewalTriggered(ctx context.Context, userID, bundleID string, credits int64)
	RenewalFailed(ctx context.Context, userID, bundleID, reason string)
}

// LogNotifier writes notifications to the structured log. The default
// when no delivery backend is wired.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a log-backed notifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) RenewalTriggered(ctx context.Context, userID, bundleID string, credits int64) {
	n.logger.Info("notification: auto-renewal triggered",
		"user_id", userID,
		"bundle_id", bundleID,
		"credits", credits,
	)
}

func (n *LogNotifier) RenewalFailed(ctx context.Context, userID, bundleID, reason string) {
	n.logger.Warn("notification: auto-renewal failed",
		"user_id", userID,
		"bundle_id", bundleID,
		"reason", reason,
	)
}
