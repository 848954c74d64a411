package migrations

func init() {
	Register(Migration{
		Timestamp:   "20250601-000000",
		Description: "Initial schema",
		Up: []string{
			// Users - minimal row for referral code resolution.
			// user ids come from the external auth provider (no FK targets).
			`CREATE TABLE IF NOT EXISTS users (
				id TEXT PRIMARY KEY,
				referral_code TEXT UNIQUE NOT NULL,
				referred_by TEXT,
				created_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_users_referral_code ON users(referral_code)`,

			// Credit buckets - discrete expiring grants.
			// remaining only decreases; enforced by the CHECK plus guarded
			// UPDATEs in the ledger repository.
			`CREATE TABLE IF NOT EXISTS credit_buckets (
				id TEXT PRIMARY KEY,
				user_id TEXT NOT NULL,
				amount INTEGER NOT NULL,
				remaining INTEGER NOT NULL CHECK (remaining >= 0),
				source TEXT NOT NULL,
				expires_at TEXT,
				created_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_credit_buckets_user_id ON credit_buckets(user_id)`,
			`CREATE INDEX IF NOT EXISTS idx_credit_buckets_user_expiry ON credit_buckets(user_id, expires_at)`,

			// Credit transactions - append-only audit trail.
			// provenance is the grant idempotency key; UNIQUE closes the
			// race between two concurrent duplicate webhook deliveries.
			`CREATE TABLE IF NOT EXISTS credit_transactions (
				id TEXT PRIMARY KEY,
				user_id TEXT NOT NULL,
				amount INTEGER NOT NULL,
				type TEXT NOT NULL,
				model_id TEXT,
				item_type TEXT,
				item_id TEXT,
				creator_id TEXT,
				source TEXT NOT NULL DEFAULT '',
				provenance TEXT UNIQUE,
				description TEXT NOT NULL DEFAULT '',
				created_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_credit_transactions_user_id ON credit_transactions(user_id)`,
			`CREATE INDEX IF NOT EXISTS idx_credit_transactions_user_type_created ON credit_transactions(user_id, type, created_at)`,
			`CREATE INDEX IF NOT EXISTS idx_credit_transactions_user_source ON credit_transactions(user_id, source)`,

			// Referrals - one row per referred user, pending -> complete once.
			`CREATE TABLE IF NOT EXISTS referrals (
				id TEXT PRIMARY KEY,
				referrer_id TEXT NOT NULL,
				referred_id TEXT UNIQUE NOT NULL,
				status TEXT NOT NULL DEFAULT 'pending',
				credits_awarded INTEGER NOT NULL DEFAULT 0,
				completed_at TEXT,
				created_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_referrals_referrer_id ON referrals(referrer_id)`,
			`CREATE INDEX IF NOT EXISTS idx_referrals_status ON referrals(status)`,

			// Auto-renewal preferences and rolling attempt budget.
			`CREATE TABLE IF NOT EXISTS auto_renewal_settings (
				user_id TEXT PRIMARY KEY,
				enabled INTEGER NOT NULL DEFAULT 0,
				threshold_credits INTEGER NOT NULL DEFAULT 0,
				target_bundle_id TEXT NOT NULL DEFAULT '',
				stripe_customer_id TEXT NOT NULL DEFAULT '',
				attempt_count INTEGER NOT NULL DEFAULT 0,
				last_attempt_at TEXT,
				updated_at TEXT NOT NULL
			)`,

			// Renewal attempts - one row per replenishment trigger.
			`CREATE TABLE IF NOT EXISTS renewal_attempts (
				id TEXT PRIMARY KEY,
				user_id TEXT NOT NULL,
				bundle_id TEXT NOT NULL,
				credits INTEGER NOT NULL,
				status TEXT NOT NULL DEFAULT 'pending',
				error_message TEXT,
				payment_ref TEXT,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_renewal_attempts_user_id ON renewal_attempts(user_id)`,
			`CREATE INDEX IF NOT EXISTS idx_renewal_attempts_payment_ref ON renewal_attempts(payment_ref)`,
		},
	})
}
