package twofa

import (
	"errors"
	"strings"
	"time"
)

// Config carries the engine-level knobs. Tenant-level provider configuration
// is data, not Config: it lives in TwoFactorAuthSettings and is loaded from
// the ConfigStore per request.
//
// Config instances are set up before Build and treated as immutable after.
type Config struct {
	// KeyPrefix namespaces every Redis key the engine writes.
	KeyPrefix string
	TOTP      TOTPConfig
	Challenge ChallengeConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
}

/*
====================================
TOTP CONFIG
====================================
*/

// TOTPConfig fixes the one-time password algorithm parameters. These apply to
// every tenant; only the issuer name is tenant data.
type TOTPConfig struct {
	Digits     int
	Period     int // seconds per time step
	Skew       int // accepted steps of clock drift on either side
	Algorithm  string
	SecretSize int // random secret length in bytes, >= 20 (160 bits)
}

/*
====================================
CHALLENGE CONFIG
====================================
*/

// ChallengeConfig governs dispatched (SMS, email) verification challenges.
type ChallengeConfig struct {
	// TTL bounds how long a dispatched code stays verifiable. After it, even a
	// correct code fails with ErrChallengeExpired.
	TTL time.Duration
	// MaxAttempts bounds incorrect submissions per challenge. The challenge is
	// discarded once exhausted.
	MaxAttempts int
	// CodeDigits is the length of dispatched numeric codes.
	CodeDigits int
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls the in-process metrics registry.
type MetricsConfig struct {
	Enabled bool
}

func defaultConfig() Config {
	return Config{
		KeyPrefix: "tfa",
		TOTP: TOTPConfig{
			Digits:     6,
			Period:     30,
			Skew:       1,
			Algorithm:  "SHA1",
			SecretSize: 20,
		},
		Challenge: ChallengeConfig{
			TTL:         2 * time.Minute,
			MaxAttempts: 5,
			CodeDigits:  6,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	// All sections are value types; a shallow copy is a deep copy.
	return cfg
}

func validateConfig(cfg *Config) error {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "tfa"
	}
	if strings.ContainsAny(cfg.KeyPrefix, ": \t\n") {
		return errors.New("key prefix must not contain separators or whitespace")
	}

	if cfg.TOTP.Digits < 6 || cfg.TOTP.Digits > 8 {
		return errors.New("totp digits must be between 6 and 8")
	}
	if cfg.TOTP.Period <= 0 {
		return errors.New("totp period must be positive")
	}
	if cfg.TOTP.Skew < 0 || cfg.TOTP.Skew > 4 {
		return errors.New("totp skew must be between 0 and 4")
	}
	switch strings.ToUpper(cfg.TOTP.Algorithm) {
	case "SHA1", "SHA256", "SHA512":
	default:
		return errors.New("totp algorithm must be SHA1, SHA256 or SHA512")
	}
	if cfg.TOTP.SecretSize < 20 {
		return errors.New("totp secret must be at least 20 bytes")
	}

	if cfg.Challenge.TTL <= 0 {
		return errors.New("challenge ttl must be positive")
	}
	if cfg.Challenge.MaxAttempts <= 0 {
		return errors.New("challenge max attempts must be positive")
	}
	if cfg.Challenge.CodeDigits < 6 || cfg.Challenge.CodeDigits > 10 {
		return errors.New("challenge code digits must be between 6 and 10")
	}

	if cfg.Audit.Enabled && cfg.Audit.BufferSize <= 0 {
		cfg.Audit.BufferSize = 1
	}
	return nil
}
