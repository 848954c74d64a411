package worker

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"testing"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/JAlbertCode/prompt-marketplace-sub001/internal/config"
	"github.com/JAlbertCode/prompt-marketplace-sub001/internal/database/migrations"
	"github.com/JAlbertCode/prompt-marketplace-sub001/internal/models"
	"github.com/JAlbertCode/prompt-marketplace-sub001/internal/repository"
	"github.com/JAlbertCode/prompt-marketplace-sub001/internal/service"
)

func setupTestServices(t *testing.T) (*service.Services, *sql.DB) {
	t.Helper()

	db, err := sql.Open("libsql", ":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	if err := migrations.Run(db, nil); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	repos := repository.NewRepositories(db)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := &config.Config{}
	services, err := service.NewServices(cfg, repos, logger)
	if err != nil {
		t.Fatalf("failed to create services: %v", err)
	}
	return services, db
}

func TestStartStop(t *testing.T) {
	services, _ := setupTestServices(t)
	w := New(services, Config{
		ReferralQualifyInterval: 10 * time.Millisecond,
		RenewalCheckInterval:    10 * time.Millisecond,
		BonusGrantInterval:      10 * time.Millisecond,
		CompactionInterval:      10 * time.Millisecond,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w.Start(ctx)
	// Let every loop tick at least once.
	time.Sleep(50 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		w.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
}

func TestCompactionPass(t *testing.T) {
	services, db := setupTestServices(t)
	w := New(services, Config{}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	past := time.Now().UTC().Add(-time.Hour).Format(time.RFC3339)
	if _, err := db.Exec(
		`INSERT INTO credit_buckets (id, user_id, amount, remaining, source, expires_at, created_at)
		VALUES ('b1', 'user-1', 1000, 1000, 'bonus', ?, ?)`, past, past); err != nil {
		t.Fatalf("failed to seed bucket: %v", err)
	}

	if err := w.compactionPass(context.Background()); err != nil {
		t.Fatalf("compactionPass failed: %v", err)
	}

	var remaining int64
	if err := db.QueryRow(`SELECT remaining FROM credit_buckets WHERE id = 'b1'`).Scan(&remaining); err != nil {
		t.Fatalf("failed to read bucket: %v", err)
	}
	if remaining != 0 {
		t.Errorf("remaining = %d, want 0 after compaction", remaining)
	}
}

func TestReferralPass(t *testing.T) {
	services, db := setupTestServices(t)
	w := New(services, Config{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()

	now := time.Now().UTC().Format(time.RFC3339)
	for _, stmt := range []string{
		`INSERT INTO users (id, referral_code, created_at) VALUES ('referrer', 'PM-AAA', '` + now + `')`,
		`INSERT INTO users (id, referral_code, referred_by, created_at) VALUES ('invitee', 'PM-BBB', 'referrer', '` + now + `')`,
		`INSERT INTO referrals (id, referrer_id, referred_id, status, created_at) VALUES ('ref1', 'referrer', 'invitee', 'pending', '` + now + `')`,
		`INSERT INTO credit_transactions (id, user_id, amount, type, source, created_at)
		 VALUES ('tx1', 'invitee', -10000000, 'PROMPT_RUN', 'web', '` + now + `')`,
	} {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("seed failed: %v", err)
		}
	}

	if err := w.referralPass(ctx); err != nil {
		t.Fatalf("referralPass failed: %v", err)
	}

	var status string
	if err := db.QueryRow(`SELECT status FROM referrals WHERE id = 'ref1'`).Scan(&status); err != nil {
		t.Fatalf("failed to read referral: %v", err)
	}
	if status != string(models.ReferralComplete) {
		t.Errorf("referral status = %q, want complete", status)
	}

	balance, err := services.Ledger.GetBalance(ctx, "referrer")
	if err != nil {
		t.Fatalf("GetBalance failed: %v", err)
	}
	if balance != 10_000_000 {
		t.Errorf("referrer balance = %d, want 10000000", balance)
	}
}
