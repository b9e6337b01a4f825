package twofa

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// GenerateAccountConfig produces a candidate credential for the user and
// provider type. The candidate is not persisted and not visible to reads; the
// caller round-trips it through SubmitAccountConfig and
// VerifyAndSaveAccountConfig.
//
// For TOTP the candidate is self-contained: a fresh random secret plus the
// derived otpauth URI, labelled with the tenant's issuer name and the user's
// identifier. For SMS and email the server cannot invent the contact address,
// so the returned candidate is an empty variant the caller fills in before
// submitting.
func (e *Engine) GenerateAccountConfig(ctx context.Context, user User, providerType ProviderType) (*AccountConfig, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}

	settings, err := e.GetSettings(ctx, user.TenantID)
	if err != nil {
		return nil, err
	}
	provider, ok := settings.Provider(providerType)
	if !ok {
		return nil, ErrProviderNotConfigured
	}

	var candidate AccountConfig
	switch providerType {
	case ProviderTOTP:
		key, err := e.totp.GenerateKey(provider.TOTP.IssuerName, user.Identifier)
		if err != nil {
			e.logger.Error("failed to generate totp key",
				zap.Error(err), zap.String("tenant_id", user.TenantID), zap.String("user_id", user.UserID))
			return nil, err
		}
		candidate = AccountConfig{
			Type: ProviderTOTP,
			TOTP: &TOTPAccountConfig{
				SecretBase32: key.Secret(),
				AuthURI:      key.URL(),
			},
		}
	case ProviderSMS:
		candidate = AccountConfig{Type: ProviderSMS, SMS: &SMSAccountConfig{}}
	case ProviderEmail:
		candidate = AccountConfig{Type: ProviderEmail, Email: &EmailAccountConfig{}}
	case ProviderBackupCode:
		return nil, ErrProviderNotSupported
	default:
		return nil, ErrProviderNotSupported
	}

	e.metricInc(MetricConfigGenerated)
	e.emitAudit(ctx, auditEventConfigGenerated, true, user, providerType.String(), nil, nil)
	return &candidate, nil
}

// GetAccountConfig returns the user's committed credential, or nil when none
// is visible. A committed credential is visible only while its provider type
// is present in the tenant's current settings; disabling a provider hides the
// credential without deleting it. With several visible credentials the lowest
// provider type wins, TOTP first.
func (e *Engine) GetAccountConfig(ctx context.Context, user User) (*AccountConfig, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}

	settings, err := e.GetSettings(ctx, user.TenantID)
	if err != nil {
		return nil, err
	}

	configs, err := e.store.ListAccountConfigs(ctx, user.TenantID, user.UserID)
	if err != nil {
		e.metricInc(MetricStoreFailure)
		e.logger.Error("failed to list account 2fa configs",
			zap.Error(err), zap.String("tenant_id", user.TenantID), zap.String("user_id", user.UserID))
		return nil, err
	}

	var visible *AccountConfig
	for i := range configs {
		if _, ok := settings.Provider(configs[i].Type); !ok {
			continue
		}
		if visible == nil || configs[i].Type < visible.Type {
			visible = &configs[i]
		}
	}
	return visible, nil
}

// GetAccountConfigForType returns the user's committed credential of one
// provider type, or nil when it does not exist or its provider type is no
// longer enabled for the tenant.
func (e *Engine) GetAccountConfigForType(ctx context.Context, user User, providerType ProviderType) (*AccountConfig, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}

	settings, err := e.GetSettings(ctx, user.TenantID)
	if err != nil {
		return nil, err
	}
	if _, ok := settings.Provider(providerType); !ok {
		return nil, nil
	}

	config, err := e.store.GetAccountConfig(ctx, user.TenantID, user.UserID, providerType)
	if err != nil {
		if errors.Is(err, ErrAccountConfigNotFound) {
			return nil, nil
		}
		e.metricInc(MetricStoreFailure)
		return nil, err
	}
	return &config, nil
}

// DeleteAccountConfig removes a committed credential. This is the explicit
// administrative counterpart to the read-time hiding that happens when a
// tenant disables a provider: it works regardless of the current settings.
func (e *Engine) DeleteAccountConfig(ctx context.Context, user User, providerType ProviderType) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}

	if err := e.store.DeleteAccountConfig(ctx, user.TenantID, user.UserID, providerType); err != nil {
		e.metricInc(MetricStoreFailure)
		e.logger.Error("failed to delete account 2fa config",
			zap.Error(err), zap.String("tenant_id", user.TenantID), zap.String("user_id", user.UserID))
		return err
	}

	e.emitAudit(ctx, auditEventConfigDeleted, true, user, providerType.String(), nil, nil)
	return nil
}
