package twofa

import (
	"context"
	"fmt"
	"time"
)

// ProviderType is the closed enumeration of verification mechanisms a tenant
// can enable. Every site that inspects it switches exhaustively so a new
// variant fails compilation reviews rather than runtime requests.
type ProviderType uint8

const (
	// ProviderTOTP is a time-based one-time password authenticator (RFC 6238).
	ProviderTOTP ProviderType = iota
	// ProviderSMS delivers one-time codes over SMS.
	ProviderSMS
	// ProviderEmail delivers one-time codes over email.
	ProviderEmail
	// ProviderBackupCode is reserved for single-use recovery codes. It is an
	// extensibility marker: the engine rejects it as unsupported.
	ProviderBackupCode
)

func (t ProviderType) String() string {
	switch t {
	case ProviderTOTP:
		return "TOTP"
	case ProviderSMS:
		return "SMS"
	case ProviderEmail:
		return "EMAIL"
	case ProviderBackupCode:
		return "BACKUP_CODE"
	default:
		return fmt.Sprintf("ProviderType(%d)", uint8(t))
	}
}

// MarshalText encodes the provider type as its wire name ("TOTP", "SMS", ...).
func (t ProviderType) MarshalText() ([]byte, error) {
	switch t {
	case ProviderTOTP, ProviderSMS, ProviderEmail, ProviderBackupCode:
		return []byte(t.String()), nil
	default:
		return nil, fmt.Errorf("unknown provider type %d", uint8(t))
	}
}

// UnmarshalText decodes a wire name produced by MarshalText.
func (t *ProviderType) UnmarshalText(data []byte) error {
	switch string(data) {
	case "TOTP":
		*t = ProviderTOTP
	case "SMS":
		*t = ProviderSMS
	case "EMAIL":
		*t = ProviderEmail
	case "BACKUP_CODE":
		*t = ProviderBackupCode
	default:
		return fmt.Errorf("unknown provider type %q", string(data))
	}
	return nil
}

// TOTPProviderConfig is the tenant-level configuration of the TOTP provider.
type TOTPProviderConfig struct {
	// IssuerName labels generated otpauth URIs and authenticator entries.
	// Must be non-blank after trimming.
	IssuerName string `json:"issuerName"`
}

// SMSProviderConfig is the tenant-level configuration of the SMS provider.
type SMSProviderConfig struct {
	// VerificationMessageTemplate is rendered into the dispatched message by
	// substituting the ${verificationCode} placeholder, which must be present.
	VerificationMessageTemplate string `json:"verificationMessageTemplate"`
}

// EmailProviderConfig is the tenant-level configuration of the email provider.
type EmailProviderConfig struct {
	VerificationMessageTemplate string `json:"verificationMessageTemplate"`
}

// ProviderConfig is the tagged union of tenant-level provider configurations.
// Exactly the variant matching Type is set; the others are nil.
type ProviderConfig struct {
	Type  ProviderType         `json:"providerType"`
	TOTP  *TOTPProviderConfig  `json:"totp,omitempty"`
	SMS   *SMSProviderConfig   `json:"sms,omitempty"`
	Email *EmailProviderConfig `json:"email,omitempty"`
}

// TwoFactorAuthSettings is the tenant-owned aggregate of enabled providers,
// unique by provider type. It is replaced wholesale on every write and loaded
// per request; the engine never caches it.
type TwoFactorAuthSettings struct {
	Providers []ProviderConfig `json:"providers"`
}

// Provider returns the configuration entry for the given type, if enabled.
func (s TwoFactorAuthSettings) Provider(t ProviderType) (ProviderConfig, bool) {
	for _, p := range s.Providers {
		if p.Type == t {
			return p, true
		}
	}
	return ProviderConfig{}, false
}

// TOTPAccountConfig is a user's TOTP credential. AuthURI is derived from the
// secret, the tenant's issuer name, and the user identifier; it is never set
// independently.
type TOTPAccountConfig struct {
	SecretBase32 string `json:"secret"`
	AuthURI      string `json:"authUri"`
}

// SMSAccountConfig is a user's SMS credential.
type SMSAccountConfig struct {
	PhoneNumber string `json:"phoneNumber"`
}

// EmailAccountConfig is a user's email credential.
type EmailAccountConfig struct {
	Email string `json:"email"`
}

// AccountConfig is the tagged union of per-user credentials. A generated but
// unverified AccountConfig is a candidate: held by the client (TOTP) or
// correlated server-side with a dispatched code (SMS, email) and invisible to
// reads. Only after successful verification is it committed through the
// ConfigStore.
type AccountConfig struct {
	Type  ProviderType        `json:"providerType"`
	TOTP  *TOTPAccountConfig  `json:"totp,omitempty"`
	SMS   *SMSAccountConfig   `json:"sms,omitempty"`
	Email *EmailAccountConfig `json:"email,omitempty"`
}

// User identifies the subject of account-level operations. Identifier is the
// stable human-readable handle (typically the email) used as the otpauth
// account label and as the audit principal.
type User struct {
	TenantID   string
	UserID     string
	Identifier string
}

// ConfigStore is the persistence capability callers must implement. It stores
// tenant settings and committed per-user account configs with at least strict
// read-after-write consistency per key. The engine owns the invariants; the
// store only has to replace and look up whole records atomically per key.
//
// Get methods return ErrSettingsNotFound / ErrAccountConfigNotFound when no
// record exists. A ready-made Redis-backed implementation is available via
// NewRedisConfigStore.
type ConfigStore interface {
	GetSettings(ctx context.Context, tenantID string) (TwoFactorAuthSettings, error)
	PutSettings(ctx context.Context, tenantID string, settings TwoFactorAuthSettings) error

	GetAccountConfig(ctx context.Context, tenantID, userID string, providerType ProviderType) (AccountConfig, error)
	ListAccountConfigs(ctx context.Context, tenantID, userID string) ([]AccountConfig, error)
	PutAccountConfig(ctx context.Context, tenantID, userID string, config AccountConfig) error
	DeleteAccountConfig(ctx context.Context, tenantID, userID string, providerType ProviderType) error
}

// CodeSender is the out-of-band delivery capability (SMS gateway, mailer).
// Implementations must report dispatch failures; the engine propagates them.
type CodeSender interface {
	SendCode(ctx context.Context, destination, message string) error
}

// Clock abstracts time for TOTP computation and challenge expiry so tests can
// substitute a deterministic source.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }
