package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/JAlbertCode/prompt-marketplace-sub001/internal/config"
	"github.com/JAlbertCode/prompt-marketplace-sub001/internal/models"
)

// fakePaymentClient records charges and can be told to decline.
type fakePaymentClient struct {
	mu       sync.Mutex
	charges  []PaymentRequest
	declined bool
	seq      int
}

func (f *fakePaymentClient) Charge(ctx context.Context, req PaymentRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.charges = append(f.charges, req)
	if f.declined {
		return "", ErrPaymentDeclined
	}
	f.seq++
	return fmt.Sprintf("pi_fake_%d", f.seq), nil
}

func (f *fakePaymentClient) chargeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.charges)
}

// recordingNotifier captures renewal notifications.
type recordingNotifier struct {
	mu        sync.Mutex
	triggered []string
	failed    []string
}

func (n *recordingNotifier) RenewalTriggered(ctx context.Context, userID, bundleID string, credits int64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.triggered = append(n.triggered, userID)
}

func (n *recordingNotifier) RenewalFailed(ctx context.Context, userID, bundleID, reason string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failed = append(n.failed, userID)
}

func newTestRenewal(store *mockStore) (*RenewalService, *fakePaymentClient, *recordingNotifier, *LedgerService) {
	cfg := config.DefaultBillingConfig()
	payments := &fakePaymentClient{}
	notifier := &recordingNotifier{}
	ledger := NewLedgerService(store.repos(), &cfg, testLogger())
	svc := NewRenewalService(store.repos(), &cfg, notifier, testLogger())
	svc.SetPaymentClient(payments)
	return svc, payments, notifier, ledger
}

func enableRenewal(t *testing.T, svc *RenewalService, userID string, threshold int64) {
	t.Helper()
	err := svc.UpdateSetting(context.Background(), &models.AutoRenewalSetting{
		UserID:           userID,
		Enabled:          true,
		ThresholdCredits: threshold,
		TargetBundleID:   "starter",
		StripeCustomerID: "cus_test",
	})
	if err != nil {
		t.Fatalf("UpdateSetting failed: %v", err)
	}
}

func TestCheckThresholdTriggersBelowThreshold(t *testing.T) {
	store := newMockStore()
	svc, payments, notifier, _ := newTestRenewal(store)
	ctx := context.Background()

	store.addBucket("user-1", 500_000, nil)
	enableRenewal(t, svc, "user-1", 5_000_000)

	triggered, err := svc.CheckThreshold(ctx, "user-1")
	if err != nil {
		t.Fatalf("CheckThreshold failed: %v", err)
	}
	if !triggered {
		t.Fatal("expected renewal to trigger below threshold")
	}
	if payments.chargeCount() != 1 {
		t.Errorf("charge count = %d, want 1", payments.chargeCount())
	}
	if len(notifier.triggered) != 1 {
		t.Errorf("triggered notifications = %d, want 1", len(notifier.triggered))
	}

	req := payments.charges[0]
	if req.BundleID != "starter" || req.AmountUSDCents != 1000 {
		t.Errorf("charge = %+v, want starter at 1000 cents", req)
	}
	if req.StripeCustomerID != "cus_test" {
		t.Errorf("customer = %q, want cus_test", req.StripeCustomerID)
	}
}

func TestCheckThresholdNoTriggerAboveThreshold(t *testing.T) {
	store := newMockStore()
	svc, payments, _, _ := newTestRenewal(store)

	store.addBucket("user-1", 20_000_000, nil)
	enableRenewal(t, svc, "user-1", 5_000_000)

	triggered, err := svc.CheckThreshold(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("CheckThreshold failed: %v", err)
	}
	if triggered {
		t.Error("renewal triggered above threshold")
	}
	if payments.chargeCount() != 0 {
		t.Errorf("charge count = %d, want 0", payments.chargeCount())
	}
}

func TestCheckThresholdDisabledOrUnset(t *testing.T) {
	store := newMockStore()
	svc, payments, _, _ := newTestRenewal(store)
	ctx := context.Background()

	// No setting at all.
	triggered, err := svc.CheckThreshold(ctx, "user-1")
	if err != nil || triggered {
		t.Errorf("unset: triggered=%v err=%v, want false nil", triggered, err)
	}

	// Disabled setting.
	if err := svc.UpdateSetting(ctx, &models.AutoRenewalSetting{
		UserID: "user-1", Enabled: false,
	}); err != nil {
		t.Fatalf("UpdateSetting failed: %v", err)
	}
	triggered, err = svc.CheckThreshold(ctx, "user-1")
	if err != nil || triggered {
		t.Errorf("disabled: triggered=%v err=%v, want false nil", triggered, err)
	}
	if payments.chargeCount() != 0 {
		t.Errorf("charge count = %d, want 0", payments.chargeCount())
	}
}

func TestUpdateSettingValidation(t *testing.T) {
	store := newMockStore()
	svc, _, _, _ := newTestRenewal(store)
	ctx := context.Background()

	err := svc.UpdateSetting(ctx, &models.AutoRenewalSetting{
		UserID: "user-1", Enabled: true, TargetBundleID: "nosuch", ThresholdCredits: 1,
	})
	if !errors.Is(err, ErrUnknownBundle) {
		t.Errorf("unknown bundle err = %v, want ErrUnknownBundle", err)
	}

	err = svc.UpdateSetting(ctx, &models.AutoRenewalSetting{
		UserID: "user-1", Enabled: true, TargetBundleID: "starter", ThresholdCredits: 0,
	})
	if err == nil {
		t.Error("expected error for non-positive threshold")
	}
}

func TestAttemptBudgetExhaustedIsSilent(t *testing.T) {
	store := newMockStore()
	svc, payments, notifier, _ := newTestRenewal(store)
	ctx := context.Background()

	store.addBucket("user-1", 0, nil)
	enableRenewal(t, svc, "user-1", 5_000_000)
	payments.declined = true

	// Burn through the rolling-window budget.
	for i := 0; i < 3; i++ {
		triggered, err := svc.CheckThreshold(ctx, "user-1")
		if err != nil {
			t.Fatalf("CheckThreshold %d failed: %v", i, err)
		}
		if triggered {
			t.Errorf("declined charge %d reported as triggered", i)
		}
	}
	if payments.chargeCount() != 3 {
		t.Fatalf("charge count = %d, want 3", payments.chargeCount())
	}
	if len(notifier.failed) != 3 {
		t.Errorf("failure notifications = %d, want 3", len(notifier.failed))
	}

	// Fourth check is a silent no-op: no charge, no error, no notice.
	triggered, err := svc.CheckThreshold(ctx, "user-1")
	if err != nil {
		t.Fatalf("exhausted CheckThreshold failed: %v", err)
	}
	if triggered {
		t.Error("triggered despite exhausted budget")
	}
	if payments.chargeCount() != 3 {
		t.Errorf("charge count after exhaustion = %d, want 3", payments.chargeCount())
	}
	if len(notifier.failed) != 3 {
		t.Errorf("failure notifications after exhaustion = %d, want 3", len(notifier.failed))
	}
}

func TestAttemptBudgetResetsAfterWindow(t *testing.T) {
	store := newMockStore()
	svc, payments, _, _ := newTestRenewal(store)
	ctx := context.Background()

	store.addBucket("user-1", 0, nil)
	enableRenewal(t, svc, "user-1", 5_000_000)

	// Simulate an exhausted budget whose last attempt is older than the
	// rolling window.
	old := time.Now().UTC().Add(-25 * time.Hour)
	store.mu.Lock()
	store.settings["user-1"].AttemptCount = 3
	store.settings["user-1"].LastAttemptAt = &old
	store.mu.Unlock()

	triggered, err := svc.CheckThreshold(ctx, "user-1")
	if err != nil {
		t.Fatalf("CheckThreshold failed: %v", err)
	}
	if !triggered {
		t.Error("expected renewal after budget reset")
	}
	if payments.chargeCount() != 1 {
		t.Errorf("charge count = %d, want 1", payments.chargeCount())
	}
}

func TestFailedChargeRecordsAttempt(t *testing.T) {
	store := newMockStore()
	svc, payments, notifier, _ := newTestRenewal(store)
	ctx := context.Background()

	store.addBucket("user-1", 0, nil)
	enableRenewal(t, svc, "user-1", 5_000_000)
	payments.declined = true

	triggered, err := svc.CheckThreshold(ctx, "user-1")
	if err != nil {
		t.Fatalf("CheckThreshold failed: %v", err)
	}
	if triggered {
		t.Error("declined charge reported as triggered")
	}
	if len(notifier.failed) != 1 {
		t.Errorf("failure notifications = %d, want 1", len(notifier.failed))
	}

	store.mu.Lock()
	var attempt *models.RenewalAttempt
	for _, a := range store.attempts {
		attempt = a
	}
	store.mu.Unlock()
	if attempt == nil {
		t.Fatal("no attempt recorded")
	}
	if attempt.Status != models.RenewalFailed {
		t.Errorf("attempt status = %q, want failed", attempt.Status)
	}
	if attempt.ErrorMessage == nil {
		t.Error("attempt has no error message")
	}
}

func TestCompleteRenewalGrantsCreditsOnce(t *testing.T) {
	store := newMockStore()
	svc, payments, _, ledger := newTestRenewal(store)
	ctx := context.Background()

	store.addBucket("user-1", 0, nil)
	enableRenewal(t, svc, "user-1", 5_000_000)

	triggered, err := svc.CheckThreshold(ctx, "user-1")
	if err != nil || !triggered {
		t.Fatalf("CheckThreshold: triggered=%v err=%v", triggered, err)
	}
	paymentRef := payments.charges[0].AttemptID
	store.mu.Lock()
	attempt := store.attempts[paymentRef]
	ref := *attempt.PaymentRef
	store.mu.Unlock()

	if err := svc.CompleteRenewal(ctx, ledger, ref); err != nil {
		t.Fatalf("CompleteRenewal failed: %v", err)
	}
	balance, _ := ledger.GetBalance(ctx, "user-1")
	if balance != 10_000_000 {
		t.Errorf("balance = %d, want 10000000 (starter)", balance)
	}

	// Webhook replay: provenance makes the grant idempotent.
	if err := svc.CompleteRenewal(ctx, ledger, ref); err != nil {
		t.Fatalf("replayed CompleteRenewal failed: %v", err)
	}
	balance, _ = ledger.GetBalance(ctx, "user-1")
	if balance != 10_000_000 {
		t.Errorf("balance after replay = %d, want 10000000", balance)
	}

	store.mu.Lock()
	status := store.attempts[attempt.ID].Status
	store.mu.Unlock()
	if status != models.RenewalSucceeded {
		t.Errorf("attempt status = %q, want succeeded", status)
	}
}

func TestCompleteRenewalUnknownRefIgnored(t *testing.T) {
	store := newMockStore()
	svc, _, _, ledger := newTestRenewal(store)

	if err := svc.CompleteRenewal(context.Background(), ledger, "pi_ordinary_purchase"); err != nil {
		t.Errorf("unknown ref err = %v, want nil", err)
	}
}

func TestFailRenewalMarksAttempt(t *testing.T) {
	store := newMockStore()
	svc, payments, notifier, _ := newTestRenewal(store)
	ctx := context.Background()

	store.addBucket("user-1", 0, nil)
	enableRenewal(t, svc, "user-1", 5_000_000)

	triggered, err := svc.CheckThreshold(ctx, "user-1")
	if err != nil || !triggered {
		t.Fatalf("CheckThreshold: triggered=%v err=%v", triggered, err)
	}
	attemptID := payments.charges[0].AttemptID
	store.mu.Lock()
	ref := *store.attempts[attemptID].PaymentRef
	store.mu.Unlock()

	if err := svc.FailRenewal(ctx, ref, "card_declined"); err != nil {
		t.Fatalf("FailRenewal failed: %v", err)
	}

	store.mu.Lock()
	attempt := store.attempts[attemptID]
	store.mu.Unlock()
	if attempt.Status != models.RenewalFailed {
		t.Errorf("attempt status = %q, want failed", attempt.Status)
	}
	if attempt.ErrorMessage == nil || *attempt.ErrorMessage != "card_declined" {
		t.Errorf("error message = %v, want card_declined", attempt.ErrorMessage)
	}
	if len(notifier.failed) != 1 {
		t.Errorf("failure notifications = %d, want 1", len(notifier.failed))
	}
}

func TestSweepChecksOnlyEnabledUsers(t *testing.T) {
	store := newMockStore()
	svc, payments, _, _ := newTestRenewal(store)
	ctx := context.Background()

	store.addBucket("low", 100_000, nil)
	store.addBucket("high", 50_000_000, nil)
	store.addBucket("off", 100_000, nil)

	enableRenewal(t, svc, "low", 5_000_000)
	enableRenewal(t, svc, "high", 5_000_000)
	if err := svc.UpdateSetting(ctx, &models.AutoRenewalSetting{
		UserID: "off", Enabled: false,
	}); err != nil {
		t.Fatalf("UpdateSetting failed: %v", err)
	}

	triggered, err := svc.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if triggered != 1 {
		t.Errorf("triggered = %d, want 1 (only the low-balance enabled user)", triggered)
	}
	if payments.chargeCount() != 1 {
		t.Errorf("charge count = %d, want 1", payments.chargeCount())
	}
}
