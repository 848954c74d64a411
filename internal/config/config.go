// Package config handles application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Server settings
	Port    int
	BaseURL string

	// Database
	DatabaseURL string

	// Authentication
	JWTSecret string

	// Stripe
	StripeSecretKey     string
	StripeWebhookSecret string

	// Signup webhook (Svix signing secret from the auth provider)
	SignupWebhookSecret string

	// CORS
	CORSOrigins []string

	// Background worker intervals
	ReferralQualifyInterval time.Duration // referral qualification pass
	RenewalCheckInterval    time.Duration // auto-renewal threshold sweep
	BonusGrantInterval      time.Duration // monthly automation bonus pass
	CompactionInterval      time.Duration // expired bucket compaction
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnvInt("PORT", 8080),
		BaseURL:     getEnv("BASE_URL", "http://localhost:8080"),
		DatabaseURL: getEnv("DATABASE_URL", "file:marketplace.db?_journal=WAL&_timeout=5000"),
		JWTSecret:   getEnv("JWT_SECRET", ""),

		StripeSecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
		SignupWebhookSecret: getEnv("SIGNUP_WEBHOOK_SECRET", ""),

		CORSOrigins: getEnvSlice("CORS_ORIGINS", []string{"http://localhost:3000"}),

		ReferralQualifyInterval: getEnvDuration("REFERRAL_QUALIFY_INTERVAL", 15*time.Minute),
		RenewalCheckInterval:    getEnvDuration("RENEWAL_CHECK_INTERVAL", 30*time.Minute),
		BonusGrantInterval:      getEnvDuration("BONUS_GRANT_INTERVAL", 6*time.Hour),
		CompactionInterval:      getEnvDuration("COMPACTION_INTERVAL", 24*time.Hour),
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}
