package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/JAlbertCode/prompt-marketplace-sub001/internal/models"
	"github.com/JAlbertCode/prompt-marketplace-sub001/internal/repository"
)

// mockStore holds the shared in-memory state behind the per-interface
// mock repositories, guarded by one mutex so ledger semantics hold
// across them.
type mockStore struct {
	mu           sync.Mutex
	users        map[string]*models.User
	buckets      []*models.CreditBucket
	transactions []*models.CreditTransaction
	provenance   map[string]bool
	referrals    map[string]*models.Referral
	settings     map[string]*models.AutoRenewalSetting
	attempts     map[string]*models.RenewalAttempt
	seq          int

	burnErr  error
	grantErr error
}

func newMockStore() *mockStore {
	return &mockStore{
		users:      make(map[string]*models.User),
		provenance: make(map[string]bool),
		referrals:  make(map[string]*models.Referral),
		settings:   make(map[string]*models.AutoRenewalSetting),
		attempts:   make(map[string]*models.RenewalAttempt),
	}
}

func (m *mockStore) repos() *repository.Repositories {
	return &repository.Repositories{
		User:        &mockUserRepo{m},
		Bucket:      &mockBucketRepo{m},
		Transaction: &mockTransactionRepo{m},
		Ledger:      &mockLedgerRepo{m},
		Referral:    &mockReferralRepo{m},
		Renewal:     &mockRenewalRepo{m},
	}
}

func (m *mockStore) nextID(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s-%d", prefix, m.seq)
}

// addBucket seeds a bucket directly.
func (m *mockStore) addBucket(userID string, remaining int64, expiresAt *time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buckets = append(m.buckets, &models.CreditBucket{
		ID:        m.nextID("bucket"),
		UserID:    userID,
		Amount:    remaining,
		Remaining: remaining,
		Source:    models.SourcePurchased,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now().UTC(),
	})
}

// addDebit seeds a burn transaction directly.
func (m *mockStore) addDebit(userID string, amount int64, source string, createdAt time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transactions = append(m.transactions, &models.CreditTransaction{
		ID:        m.nextID("tx"),
		UserID:    userID,
		Amount:    -amount,
		Type:      models.TxTypePromptRun,
		Source:    source,
		CreatedAt: createdAt,
	})
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- UserRepository ---

type mockUserRepo struct{ s *mockStore }

func (m *mockUserRepo) Create(ctx context.Context, user *models.User) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.users[user.ID]; ok {
		return errors.New("UNIQUE constraint failed: users.id")
	}
	u := *user
	m.s.users[user.ID] = &u
	return nil
}

func (m *mockUserRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if u, ok := m.s.users[id]; ok {
		copy := *u
		return &copy, nil
	}
	return nil, nil
}

func (m *mockUserRepo) GetByReferralCode(ctx context.Context, code string) (*models.User, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, u := range m.s.users {
		if u.ReferralCode == code {
			copy := *u
			return &copy, nil
		}
	}
	return nil, nil
}

func (m *mockUserRepo) ListIDs(ctx context.Context) ([]string, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	ids := make([]string, 0, len(m.s.users))
	for id := range m.s.users {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *mockUserRepo) SetReferredBy(ctx context.Context, userID, referrerID string) (bool, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	u, ok := m.s.users[userID]
	if !ok || u.ReferredBy != nil {
		return false, nil
	}
	u.ReferredBy = &referrerID
	return true, nil
}

// --- BucketRepository ---

type mockBucketRepo struct{ s *mockStore }

func (m *mockBucketRepo) GetByUserID(ctx context.Context, userID string) ([]*models.CreditBucket, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var out []*models.CreditBucket
	for _, b := range m.s.buckets {
		if b.UserID == userID {
			copy := *b
			out = append(out, &copy)
		}
	}
	return out, nil
}

func (m *mockBucketRepo) GetBalance(ctx context.Context, userID string, now time.Time) (int64, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var total int64
	for _, b := range m.s.buckets {
		if b.UserID == userID && !b.Expired(now) {
			total += b.Remaining
		}
	}
	return total, nil
}

func (m *mockBucketRepo) CompactExpired(ctx context.Context, now time.Time) (int64, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var count int64
	for _, b := range m.s.buckets {
		if b.Remaining > 0 && b.Expired(now) {
			b.Remaining = 0
			count++
		}
	}
	return count, nil
}

// --- TransactionRepository ---

type mockTransactionRepo struct{ s *mockStore }

func (m *mockTransactionRepo) GetByUserID(ctx context.Context, userID string, limit, offset int) ([]*models.CreditTransaction, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var out []*models.CreditTransaction
	for _, tx := range m.s.transactions {
		if tx.UserID == userID {
			copy := *tx
			out = append(out, &copy)
		}
	}
	return out, nil
}

func (m *mockTransactionRepo) GetByProvenance(ctx context.Context, provenance string) (*models.CreditTransaction, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, tx := range m.s.transactions {
		if tx.Provenance != nil && *tx.Provenance == provenance {
			copy := *tx
			return &copy, nil
		}
	}
	return nil, nil
}

func (m *mockTransactionRepo) SumDebits(ctx context.Context, userID string, since time.Time) (int64, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var total int64
	for _, tx := range m.s.transactions {
		if tx.UserID == userID && tx.Amount < 0 && !tx.CreatedAt.Before(since) {
			total += -tx.Amount
		}
	}
	return total, nil
}

func (m *mockTransactionRepo) SumDebitsBySource(ctx context.Context, userID, source string, since time.Time) (int64, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var total int64
	for _, tx := range m.s.transactions {
		if tx.UserID == userID && tx.Amount < 0 && tx.Source == source && !tx.CreatedAt.Before(since) {
			total += -tx.Amount
		}
	}
	return total, nil
}

func (m *mockTransactionRepo) HasTypeSince(ctx context.Context, userID string, txType models.TransactionType, since time.Time) (bool, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, tx := range m.s.transactions {
		if tx.UserID == userID && tx.Type == txType && !tx.CreatedAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

// --- LedgerRepository ---

type mockLedgerRepo struct{ s *mockStore }

func (m *mockLedgerRepo) Burn(ctx context.Context, userID string, amount int64, tx *models.CreditTransaction) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if m.s.burnErr != nil {
		return m.s.burnErr
	}

	now := tx.CreatedAt
	var eligible []*models.CreditBucket
	for _, b := range m.s.buckets {
		if b.UserID == userID && b.Remaining > 0 && !b.Expired(now) {
			eligible = append(eligible, b)
		}
	}
	sort.SliceStable(eligible, func(i, j int) bool {
		a, b := eligible[i], eligible[j]
		if (a.ExpiresAt == nil) != (b.ExpiresAt == nil) {
			return a.ExpiresAt != nil
		}
		if a.ExpiresAt != nil && !a.ExpiresAt.Equal(*b.ExpiresAt) {
			return a.ExpiresAt.Before(*b.ExpiresAt)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})

	var available int64
	for _, b := range eligible {
		available += b.Remaining
	}
	if available < amount {
		return repository.ErrInsufficientCredits
	}

	remaining := amount
	for _, b := range eligible {
		if remaining == 0 {
			break
		}
		take := b.Remaining
		if take > remaining {
			take = remaining
		}
		b.Remaining -= take
		remaining -= take
	}

	copy := *tx
	m.s.transactions = append(m.s.transactions, &copy)
	return nil
}

func (m *mockLedgerRepo) Grant(ctx context.Context, bucket *models.CreditBucket, tx *models.CreditTransaction) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if m.s.grantErr != nil {
		return m.s.grantErr
	}
	if tx.Provenance != nil {
		if m.s.provenance[*tx.Provenance] {
			return repository.ErrDuplicateProvenance
		}
		m.s.provenance[*tx.Provenance] = true
	}
	b := *bucket
	t := *tx
	m.s.buckets = append(m.s.buckets, &b)
	m.s.transactions = append(m.s.transactions, &t)
	return nil
}

// --- ReferralRepository ---

type mockReferralRepo struct{ s *mockStore }

func (m *mockReferralRepo) Create(ctx context.Context, referral *models.Referral) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, r := range m.s.referrals {
		if r.ReferredID == referral.ReferredID {
			return errors.New("UNIQUE constraint failed: referrals.referred_id")
		}
	}
	copy := *referral
	m.s.referrals[referral.ID] = &copy
	return nil
}

func (m *mockReferralRepo) GetByReferredID(ctx context.Context, referredID string) (*models.Referral, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, r := range m.s.referrals {
		if r.ReferredID == referredID {
			copy := *r
			return &copy, nil
		}
	}
	return nil, nil
}

func (m *mockReferralRepo) GetByReferrerID(ctx context.Context, referrerID string) ([]*models.Referral, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var out []*models.Referral
	for _, r := range m.s.referrals {
		if r.ReferrerID == referrerID {
			copy := *r
			out = append(out, &copy)
		}
	}
	return out, nil
}

func (m *mockReferralRepo) GetPending(ctx context.Context) ([]*models.Referral, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var out []*models.Referral
	for _, r := range m.s.referrals {
		if r.Status == models.ReferralPending {
			copy := *r
			out = append(out, &copy)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *mockReferralRepo) MarkComplete(ctx context.Context, id string, creditsAwarded int64, completedAt time.Time) (bool, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	r, ok := m.s.referrals[id]
	if !ok || r.Status != models.ReferralPending {
		return false, nil
	}
	r.Status = models.ReferralComplete
	r.CreditsAwarded = creditsAwarded
	r.CompletedAt = &completedAt
	return true, nil
}

// --- RenewalRepository ---

type mockRenewalRepo struct{ s *mockStore }

func (m *mockRenewalRepo) GetSetting(ctx context.Context, userID string) (*models.AutoRenewalSetting, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if s, ok := m.s.settings[userID]; ok {
		copy := *s
		return &copy, nil
	}
	return nil, nil
}

func (m *mockRenewalRepo) UpsertSetting(ctx context.Context, setting *models.AutoRenewalSetting) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	copy := *setting
	m.s.settings[setting.UserID] = &copy
	return nil
}

func (m *mockRenewalRepo) ListEnabled(ctx context.Context) ([]*models.AutoRenewalSetting, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var out []*models.AutoRenewalSetting
	for _, s := range m.s.settings {
		if s.Enabled {
			copy := *s
			out = append(out, &copy)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (m *mockRenewalRepo) RecordAttempt(ctx context.Context, attempt *models.RenewalAttempt) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	copy := *attempt
	m.s.attempts[attempt.ID] = &copy
	if s, ok := m.s.settings[attempt.UserID]; ok {
		s.AttemptCount++
		at := attempt.CreatedAt
		s.LastAttemptAt = &at
	}
	return nil
}

func (m *mockRenewalRepo) UpdateAttemptStatus(ctx context.Context, id string, status models.RenewalStatus, errorMessage, paymentRef *string, updatedAt time.Time) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	a, ok := m.s.attempts[id]
	if !ok {
		return errors.New("attempt not found")
	}
	a.Status = status
	a.ErrorMessage = errorMessage
	a.PaymentRef = paymentRef
	a.UpdatedAt = updatedAt
	return nil
}

func (m *mockRenewalRepo) GetAttemptByPaymentRef(ctx context.Context, paymentRef string) (*models.RenewalAttempt, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, a := range m.s.attempts {
		if a.PaymentRef != nil && *a.PaymentRef == paymentRef {
			copy := *a
			return &copy, nil
		}
	}
	return nil, nil
}

func (m *mockRenewalRepo) ResetAttempts(ctx context.Context, userID string, updatedAt time.Time) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if s, ok := m.s.settings[userID]; ok {
		s.AttemptCount = 0
		s.LastAttemptAt = nil
		s.UpdatedAt = updatedAt
	}
	return nil
}
