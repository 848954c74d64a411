// Package worker runs the scheduled background passes: referral
// qualification, auto-renewal sweeps, automation bonus grants, and
// expired bucket compaction.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/JAlbertCode/prompt-marketplace-sub001/internal/service"
)

// Worker runs the periodic maintenance passes.
type Worker struct {
	services *service.Services
	cfg      Config
	stop     chan struct{}
	wg       sync.WaitGroup
	logger   *slog.Logger
}

// Config holds the pass intervals.
type Config struct {
	ReferralQualifyInterval time.Duration
	RenewalCheckInterval    time.Duration
	BonusGrantInterval      time.Duration
	CompactionInterval      time.Duration
}

// New creates a new worker.
func New(services *service.Services, cfg Config, logger *slog.Logger) *Worker {
	if cfg.ReferralQualifyInterval == 0 {
		cfg.ReferralQualifyInterval = 15 * time.Minute
	}
	if cfg.RenewalCheckInterval == 0 {
		cfg.RenewalCheckInterval = 30 * time.Minute
	}
	if cfg.BonusGrantInterval == 0 {
		cfg.BonusGrantInterval = 6 * time.Hour
	}
	if cfg.CompactionInterval == 0 {
		cfg.CompactionInterval = 24 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		services: services,
		cfg:      cfg,
		stop:     make(chan struct{}),
		logger:   logger.With("component", "worker"),
	}
}

// Start launches the pass loops. Each pass runs on its own ticker so a
// slow sweep never delays the others.
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info("starting",
		"referral_interval", w.cfg.ReferralQualifyInterval,
		"renewal_interval", w.cfg.RenewalCheckInterval,
		"bonus_interval", w.cfg.BonusGrantInterval,
		"compaction_interval", w.cfg.CompactionInterval,
	)

	w.runLoop(ctx, "referral_qualify", w.cfg.ReferralQualifyInterval, w.referralPass)
	w.runLoop(ctx, "renewal_check", w.cfg.RenewalCheckInterval, w.renewalPass)
	w.runLoop(ctx, "bonus_grant", w.cfg.BonusGrantInterval, w.bonusPass)
	w.runLoop(ctx, "compaction", w.cfg.CompactionInterval, w.compactionPass)
}

// Stop gracefully stops the worker.
func (w *Worker) Stop() {
	w.logger.Info("stopping")
	close(w.stop)
	w.wg.Wait()
	w.logger.Info("stopped")
}

func (w *Worker) runLoop(ctx context.Context, name string, interval time.Duration, pass func(context.Context) error) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-w.stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := pass(ctx); err != nil {
					w.logger.Error("pass failed", "pass", name, "error", err)
				}
			}
		}
	}()
}

func (w *Worker) referralPass(ctx context.Context) error {
	qualified, err := w.services.Referral.ProcessQualifyingReferrals(ctx)
	if err != nil {
		return err
	}
	if qualified > 0 {
		w.logger.Info("referrals qualified", "count", qualified)
	}
	return nil
}

func (w *Worker) renewalPass(ctx context.Context) error {
	triggered, err := w.services.Renewal.Sweep(ctx)
	if err != nil {
		return err
	}
	if triggered > 0 {
		w.logger.Info("renewals triggered", "count", triggered)
	}
	return nil
}

func (w *Worker) bonusPass(ctx context.Context) error {
	granted, err := w.services.Bonus.GrantMonthlyBonuses(ctx)
	if err != nil {
		return err
	}
	if granted > 0 {
		w.logger.Info("automation bonuses granted", "count", granted)
	}
	return nil
}

func (w *Worker) compactionPass(ctx context.Context) error {
	compacted, err := w.services.Ledger.CompactExpiredBuckets(ctx)
	if err != nil {
		return err
	}
	if compacted > 0 {
		w.logger.Info("expired buckets compacted", "count", compacted)
	}
	return nil
}
