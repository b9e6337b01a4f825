package twofa

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/5giotlead/twofa/internal"
)

// SubmitAccountConfig advances an enrollment from candidate to
// server-pending for providers that need an out-of-band challenge: it
// dispatches a freshly generated code to the candidate's contact address and
// stores the pending correlation (candidate, expected code hash, expiry)
// keyed by user and provider type. Re-submitting restarts the handshake and
// replaces the previous pending challenge.
//
// For TOTP nothing is dispatched — the secret is already in the candidate —
// so submission only validates the candidate and records the observation.
func (e *Engine) SubmitAccountConfig(ctx context.Context, user User, candidate AccountConfig) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}

	settings, err := e.GetSettings(ctx, user.TenantID)
	if err != nil {
		return err
	}
	provider, ok := settings.Provider(candidate.Type)
	if !ok {
		return ErrProviderNotConfigured
	}
	if err := validateAccountConfig(candidate); err != nil {
		return err
	}

	switch candidate.Type {
	case ProviderTOTP:
		// Self-contained: the authenticator app derives the challenge.
		e.emitAudit(ctx, auditEventConfigSubmitted, true, user, candidate.Type.String(), nil, nil)
		e.metricInc(MetricConfigSubmitted)
		return nil
	case ProviderSMS, ProviderEmail:
		if err := e.dispatchChallenge(ctx, user, provider, candidate, scopeEnroll); err != nil {
			e.emitAudit(ctx, auditEventConfigSubmitted, false, user, candidate.Type.String(), err, nil)
			return err
		}
		e.emitAudit(ctx, auditEventConfigSubmitted, true, user, candidate.Type.String(), nil, nil)
		e.metricInc(MetricConfigSubmitted)
		return nil
	default:
		return ErrProviderNotSupported
	}
}

// VerifyAndSaveAccountConfig completes an enrollment. It locates or
// recomputes the expected code for the candidate, compares it with the
// submitted one, and only on a match commits the credential, replacing any
// prior committed config of that provider type. On a mismatch nothing
// changes; the candidate is not promoted.
//
// For dispatched challenges the pending correlation is consumed with a
// compare-and-set: of concurrent attempts exactly one commits, the rest fail
// with ErrNoPendingChallenge.
func (e *Engine) VerifyAndSaveAccountConfig(ctx context.Context, user User, candidate AccountConfig, submittedCode string) (*AccountConfig, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}

	settings, err := e.GetSettings(ctx, user.TenantID)
	if err != nil {
		return nil, err
	}
	if _, ok := settings.Provider(candidate.Type); !ok {
		return nil, ErrProviderNotConfigured
	}
	if err := validateAccountConfig(candidate); err != nil {
		return nil, err
	}

	var committed AccountConfig
	switch candidate.Type {
	case ProviderTOTP:
		if !e.totp.Matches(candidate.TOTP.SecretBase32, submittedCode, e.clock.Now()) {
			e.metricInc(MetricVerifyFailure)
			e.emitAudit(ctx, auditEventConfigRejected, false, user, candidate.Type.String(), ErrIncorrectCode, nil)
			return nil, ErrIncorrectCode
		}
		committed = candidate
	case ProviderSMS, ProviderEmail:
		stored, err := e.resolvePendingCode(ctx, user, candidate.Type, scopeEnroll, submittedCode)
		if err != nil {
			e.metricInc(MetricVerifyFailure)
			e.emitAudit(ctx, auditEventConfigRejected, false, user, candidate.Type.String(), err, nil)
			return nil, err
		}
		// Commit the server-held candidate from the pending correlation, not
		// the resubmitted copy.
		committed = *stored
	default:
		return nil, ErrProviderNotSupported
	}

	if err := e.store.PutAccountConfig(ctx, user.TenantID, user.UserID, committed); err != nil {
		e.metricInc(MetricStoreFailure)
		e.logger.Error("failed to commit account 2fa config",
			zap.Error(err), zap.String("tenant_id", user.TenantID), zap.String("user_id", user.UserID))
		return nil, err
	}

	e.metricInc(MetricVerifySuccess)
	e.emitAudit(ctx, auditEventConfigVerified, true, user, committed.Type.String(), nil, nil)
	return &committed, nil
}

// dispatchChallenge generates a numeric code, renders the tenant's message
// template, sends it through the provider's CodeSender, and records the
// pending correlation. The send happens before the record is stored so a
// delivery failure leaves no state behind.
func (e *Engine) dispatchChallenge(
	ctx context.Context,
	user User,
	provider ProviderConfig,
	candidate AccountConfig,
	scope challengeScope,
) error {
	if e.pending == nil {
		return ErrEngineNotReady
	}
	sender := e.sender(candidate.Type)
	if sender == nil {
		return ErrCodeSenderMissing
	}

	template := verificationTemplate(provider)
	code, err := internal.NewNumericCode(e.config.Challenge.CodeDigits)
	if err != nil {
		return err
	}

	message := internal.RenderVerificationMessage(template, code)
	if err := sender.SendCode(ctx, destination(candidate), message); err != nil {
		e.metricInc(MetricDeliveryFailure)
		e.logger.Error("failed to dispatch verification code",
			zap.Error(err), zap.String("tenant_id", user.TenantID),
			zap.String("user_id", user.UserID), zap.Stringer("provider", candidate.Type))
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}

	now := e.clock.Now()
	record := &pendingChallenge{
		Candidate: candidate,
		CodeHash:  internal.HashCode(code),
		ExpiresAt: now.Add(e.config.Challenge.TTL).Unix(),
	}
	if err := e.pending.Save(ctx, user.TenantID, user.UserID, candidate.Type, scope, record, e.config.Challenge.TTL); err != nil {
		e.metricInc(MetricStoreFailure)
		return err
	}

	e.metricInc(MetricChallengeDispatched)
	return nil
}

// resolvePendingCode checks a submitted code against the pending challenge
// and consumes the challenge on success. Only the caller whose delete removed
// the record wins; everyone else sees ErrNoPendingChallenge.
func (e *Engine) resolvePendingCode(
	ctx context.Context,
	user User,
	providerType ProviderType,
	scope challengeScope,
	submittedCode string,
) (*AccountConfig, error) {
	if e.pending == nil {
		return nil, ErrEngineNotReady
	}

	now := e.clock.Now()
	record, err := e.pending.Get(ctx, user.TenantID, user.UserID, providerType, scope, now)
	if err != nil {
		if errors.Is(err, ErrChallengeExpired) {
			e.metricInc(MetricChallengeExpired)
		}
		return nil, err
	}

	if !internal.CodeMatches(record.CodeHash, submittedCode) {
		exceeded, ferr := e.pending.RecordFailure(ctx, user.TenantID, user.UserID, providerType, scope,
			e.config.Challenge.MaxAttempts, now)
		if ferr != nil {
			if errors.Is(ferr, ErrChallengeExpired) {
				e.metricInc(MetricChallengeExpired)
				return nil, ferr
			}
			if errors.Is(ferr, ErrNoPendingChallenge) {
				return nil, ErrIncorrectCode
			}
			return nil, ferr
		}
		if exceeded {
			e.metricInc(MetricChallengeExhausted)
			return nil, ErrChallengeAttemptsExceeded
		}
		return nil, ErrIncorrectCode
	}

	won, err := e.pending.Consume(ctx, user.TenantID, user.UserID, providerType, scope)
	if err != nil {
		return nil, err
	}
	if !won {
		return nil, ErrNoPendingChallenge
	}
	return &record.Candidate, nil
}

// verificationTemplate returns the message template of a dispatching
// provider. Validation guarantees the matching variant is set.
func verificationTemplate(provider ProviderConfig) string {
	switch provider.Type {
	case ProviderSMS:
		return provider.SMS.VerificationMessageTemplate
	case ProviderEmail:
		return provider.Email.VerificationMessageTemplate
	default:
		return ""
	}
}
