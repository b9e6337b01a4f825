package twofa

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
)

// GetSettings returns the tenant's two-factor auth settings, or an empty
// provider set when the tenant never configured any.
func (e *Engine) GetSettings(ctx context.Context, tenantID string) (TwoFactorAuthSettings, error) {
	if e == nil || e.store == nil {
		return TwoFactorAuthSettings{}, ErrEngineNotReady
	}

	settings, err := e.store.GetSettings(ctx, tenantID)
	if err != nil {
		if errors.Is(err, ErrSettingsNotFound) {
			return TwoFactorAuthSettings{}, nil
		}
		e.metricInc(MetricStoreFailure)
		e.logger.Error("failed to load 2fa settings",
			zap.Error(err), zap.String("tenant_id", tenantID))
		return TwoFactorAuthSettings{}, err
	}
	return settings, nil
}

// SaveSettings validates every provider entry and replaces the tenant's
// settings wholesale. Nothing is persisted if any entry fails validation or
// any provider type appears twice; readers never observe a partial set.
func (e *Engine) SaveSettings(ctx context.Context, tenantID string, settings TwoFactorAuthSettings) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}

	seen := make(map[ProviderType]bool, len(settings.Providers))
	for i := range settings.Providers {
		provider := &settings.Providers[i]
		if err := validateProviderConfig(*provider); err != nil {
			e.metricInc(MetricSettingsRejected)
			e.emitAudit(ctx, auditEventSettingsRejected, false, User{TenantID: tenantID}, provider.Type.String(), err, nil)
			return err
		}
		if seen[provider.Type] {
			err := validationErrorf("providers", "duplicate provider type %s", provider.Type)
			e.metricInc(MetricSettingsRejected)
			e.emitAudit(ctx, auditEventSettingsRejected, false, User{TenantID: tenantID}, provider.Type.String(), err, nil)
			return err
		}
		seen[provider.Type] = true

		if provider.Type == ProviderTOTP {
			provider.TOTP.IssuerName = strings.TrimSpace(provider.TOTP.IssuerName)
		}
	}

	if err := e.store.PutSettings(ctx, tenantID, settings); err != nil {
		e.metricInc(MetricStoreFailure)
		e.logger.Error("failed to store 2fa settings",
			zap.Error(err), zap.String("tenant_id", tenantID))
		return err
	}

	e.metricInc(MetricSettingsSaved)
	e.emitAudit(ctx, auditEventSettingsSaved, true, User{TenantID: tenantID}, "", nil, func() map[string]string {
		types := make([]string, 0, len(settings.Providers))
		for _, p := range settings.Providers {
			types = append(types, p.Type.String())
		}
		return map[string]string{"providers": strings.Join(types, ",")}
	})
	return nil
}
