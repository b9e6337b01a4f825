package twofa

import (
	"context"
	"errors"
)

// SendLoginCode dispatches a login-time verification challenge against the
// user's committed credential. For SMS and email a fresh code is sent to the
// committed contact address; for TOTP this is a no-op since the user's
// authenticator derives the code locally.
//
// The provider type must still be enabled for the tenant and the user must
// hold a committed credential of that type.
func (e *Engine) SendLoginCode(ctx context.Context, user User, providerType ProviderType) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}

	provider, committed, err := e.committedCredential(ctx, user, providerType)
	if err != nil {
		e.emitAudit(ctx, auditEventLoginCodeSent, false, user, providerType.String(), err, nil)
		return err
	}

	switch providerType {
	case ProviderTOTP:
		e.emitAudit(ctx, auditEventLoginCodeSent, true, user, providerType.String(), nil, nil)
		return nil
	case ProviderSMS, ProviderEmail:
		if err := e.dispatchChallenge(ctx, user, provider, *committed, scopeLogin); err != nil {
			e.emitAudit(ctx, auditEventLoginCodeSent, false, user, providerType.String(), err, nil)
			return err
		}
		e.metricInc(MetricLoginCodeSent)
		e.emitAudit(ctx, auditEventLoginCodeSent, true, user, providerType.String(), nil, nil)
		return nil
	default:
		return ErrProviderNotSupported
	}
}

// CheckLoginCode verifies a login-time code against the user's committed
// credential. TOTP codes are recomputed from the stored secret with the
// configured skew; dispatched codes are matched against the pending login
// challenge, which is consumed on success.
func (e *Engine) CheckLoginCode(ctx context.Context, user User, providerType ProviderType, submittedCode string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}

	_, committed, err := e.committedCredential(ctx, user, providerType)
	if err != nil {
		e.emitAudit(ctx, auditEventLoginCodeRejected, false, user, providerType.String(), err, nil)
		return err
	}

	switch providerType {
	case ProviderTOTP:
		if !e.totp.Matches(committed.TOTP.SecretBase32, submittedCode, e.clock.Now()) {
			e.metricInc(MetricLoginCodeRejected)
			e.emitAudit(ctx, auditEventLoginCodeRejected, false, user, providerType.String(), ErrIncorrectCode, nil)
			return ErrIncorrectCode
		}
	case ProviderSMS, ProviderEmail:
		if _, err := e.resolvePendingCode(ctx, user, providerType, scopeLogin, submittedCode); err != nil {
			e.metricInc(MetricLoginCodeRejected)
			e.emitAudit(ctx, auditEventLoginCodeRejected, false, user, providerType.String(), err, nil)
			return err
		}
	default:
		return ErrProviderNotSupported
	}

	e.metricInc(MetricLoginCodeAccepted)
	e.emitAudit(ctx, auditEventLoginCodeChecked, true, user, providerType.String(), nil, nil)
	return nil
}

// committedCredential loads the provider config and the user's committed
// credential for a login-time operation.
func (e *Engine) committedCredential(ctx context.Context, user User, providerType ProviderType) (ProviderConfig, *AccountConfig, error) {
	settings, err := e.GetSettings(ctx, user.TenantID)
	if err != nil {
		return ProviderConfig{}, nil, err
	}
	provider, ok := settings.Provider(providerType)
	if !ok {
		return ProviderConfig{}, nil, ErrProviderNotConfigured
	}

	committed, err := e.store.GetAccountConfig(ctx, user.TenantID, user.UserID, providerType)
	if err != nil {
		if errors.Is(err, ErrAccountConfigNotFound) {
			return ProviderConfig{}, nil, ErrAccountConfigNotFound
		}
		e.metricInc(MetricStoreFailure)
		return ProviderConfig{}, nil, err
	}
	return provider, &committed, nil
}
