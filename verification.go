package twofa

import (
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"github.com/5giotlead/twofa/internal"
)

// totpVerifier computes and checks time-based one-time passwords. All methods
// take an explicit timestamp so the engine's Clock stays the only time source.
type totpVerifier struct {
	config TOTPConfig
}

func newTOTPVerifier(cfg TOTPConfig) *totpVerifier {
	if cfg.Algorithm == "" {
		cfg.Algorithm = "SHA1"
	}
	return &totpVerifier{config: cfg}
}

func (v *totpVerifier) algorithm() otp.Algorithm {
	switch strings.ToUpper(v.config.Algorithm) {
	case "SHA256":
		return otp.AlgorithmSHA256
	case "SHA512":
		return otp.AlgorithmSHA512
	default:
		return otp.AlgorithmSHA1
	}
}

func (v *totpVerifier) validateOpts() totp.ValidateOpts {
	return totp.ValidateOpts{
		Period:    uint(v.config.Period),
		Skew:      uint(v.config.Skew),
		Digits:    otp.Digits(v.config.Digits),
		Algorithm: v.algorithm(),
	}
}

// GenerateKey draws a fresh random secret and builds the provisioning key
// whose URL is otpauth://totp/{issuer}:{account}?secret=...&issuer=...
func (v *totpVerifier) GenerateKey(issuer, account string) (*otp.Key, error) {
	secret, err := internal.NewSecret(v.config.SecretSize)
	if err != nil {
		return nil, err
	}
	return totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: account,
		Secret:      secret,
		Period:      uint(v.config.Period),
		Digits:      otp.Digits(v.config.Digits),
		Algorithm:   v.algorithm(),
	})
}

// ExpectedCode returns the code for the time step containing at.
func (v *totpVerifier) ExpectedCode(secretBase32 string, at time.Time) (string, error) {
	return totp.GenerateCodeCustom(normalizeSecret(secretBase32), at, v.validateOpts())
}

// Matches reports whether code is valid for the secret at the given instant,
// accepting the configured skew on either side of the current time step.
// Malformed input counts as a mismatch, never as an error.
func (v *totpVerifier) Matches(secretBase32, code string, at time.Time) bool {
	ok, err := totp.ValidateCustom(strings.TrimSpace(code), normalizeSecret(secretBase32), at, v.validateOpts())
	if err != nil {
		return false
	}
	return ok
}

func normalizeSecret(secret string) string {
	return strings.TrimRight(strings.ToUpper(strings.TrimSpace(secret)), "=")
}
