package twofa

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestSaveSettingsRoundTrip(t *testing.T) {
	te, done := newTestEngine(t, enrollmentTestConfig())
	defer done()

	settings := TwoFactorAuthSettings{Providers: []ProviderConfig{
		{Type: ProviderTOTP, TOTP: &TOTPProviderConfig{IssuerName: "tb"}},
		{Type: ProviderSMS, SMS: &SMSProviderConfig{VerificationMessageTemplate: "${verificationCode}"}},
	}}
	mustSaveSettings(t, te.engine, "t1", settings)

	got, err := te.engine.GetSettings(context.Background(), "t1")
	if err != nil {
		t.Fatalf("GetSettings failed: %v", err)
	}
	if len(got.Providers) != 2 {
		t.Fatalf("expected 2 providers, got %d", len(got.Providers))
	}

	totp, ok := got.Provider(ProviderTOTP)
	if !ok || totp.TOTP == nil || totp.TOTP.IssuerName != "tb" {
		t.Fatalf("totp provider config did not round-trip: %+v", totp)
	}
	sms, ok := got.Provider(ProviderSMS)
	if !ok || sms.SMS == nil || sms.SMS.VerificationMessageTemplate != "${verificationCode}" {
		t.Fatalf("sms provider config did not round-trip: %+v", sms)
	}
}

func TestGetSettingsEmptyWhenNeverConfigured(t *testing.T) {
	te, done := newTestEngine(t, enrollmentTestConfig())
	defer done()

	got, err := te.engine.GetSettings(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("GetSettings failed: %v", err)
	}
	if len(got.Providers) != 0 {
		t.Fatalf("expected empty provider set, got %+v", got.Providers)
	}
}

func TestSaveSettingsRejectsBlankIssuerName(t *testing.T) {
	te, done := newTestEngine(t, enrollmentTestConfig())
	defer done()

	err := te.engine.SaveSettings(context.Background(), "t1", totpSettings("   "))
	if err == nil {
		t.Fatal("expected validation error")
	}
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %T: %v", err, err)
	}
	if verr.Field != "issuerName" {
		t.Fatalf("expected issuerName field, got %q", verr.Field)
	}
	if !strings.Contains(strings.ToLower(err.Error()), "issuer name must not be blank") {
		t.Fatalf("unexpected message: %q", err.Error())
	}
}

func TestSaveSettingsRejectsTemplateWithoutPlaceholder(t *testing.T) {
	te, done := newTestEngine(t, enrollmentTestConfig())
	defer done()

	err := te.engine.SaveSettings(context.Background(), "t1", smsSettings("does not contain the code"))
	if err == nil {
		t.Fatal("expected validation error")
	}
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %T: %v", err, err)
	}
	if !strings.Contains(strings.ToLower(err.Error()), "must contain verification code") {
		t.Fatalf("unexpected message: %q", err.Error())
	}
}

func TestSaveSettingsRejectsWholeSetOnOneBadEntry(t *testing.T) {
	te, done := newTestEngine(t, enrollmentTestConfig())
	defer done()

	settings := TwoFactorAuthSettings{Providers: []ProviderConfig{
		{Type: ProviderTOTP, TOTP: &TOTPProviderConfig{IssuerName: "tb"}},
		{Type: ProviderSMS, SMS: &SMSProviderConfig{VerificationMessageTemplate: "no placeholder"}},
	}}
	if err := te.engine.SaveSettings(context.Background(), "t1", settings); err == nil {
		t.Fatal("expected validation error")
	}

	got, err := te.engine.GetSettings(context.Background(), "t1")
	if err != nil {
		t.Fatalf("GetSettings failed: %v", err)
	}
	if len(got.Providers) != 0 {
		t.Fatal("expected no partial commit after rejected write")
	}
}

func TestSaveSettingsRejectsDuplicateProviderTypes(t *testing.T) {
	te, done := newTestEngine(t, enrollmentTestConfig())
	defer done()

	settings := TwoFactorAuthSettings{Providers: []ProviderConfig{
		{Type: ProviderTOTP, TOTP: &TOTPProviderConfig{IssuerName: "a"}},
		{Type: ProviderTOTP, TOTP: &TOTPProviderConfig{IssuerName: "b"}},
	}}
	err := te.engine.SaveSettings(context.Background(), "t1", settings)
	if err == nil {
		t.Fatal("expected duplicate provider type rejection")
	}
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %T: %v", err, err)
	}
}

func TestSaveSettingsReplacesWholesale(t *testing.T) {
	te, done := newTestEngine(t, enrollmentTestConfig())
	defer done()

	mustSaveSettings(t, te.engine, "t1", TwoFactorAuthSettings{Providers: []ProviderConfig{
		{Type: ProviderTOTP, TOTP: &TOTPProviderConfig{IssuerName: "tb"}},
		{Type: ProviderSMS, SMS: &SMSProviderConfig{VerificationMessageTemplate: "${verificationCode}"}},
	}})
	mustSaveSettings(t, te.engine, "t1", smsSettings("code: ${verificationCode}"))

	got, err := te.engine.GetSettings(context.Background(), "t1")
	if err != nil {
		t.Fatalf("GetSettings failed: %v", err)
	}
	if len(got.Providers) != 1 || got.Providers[0].Type != ProviderSMS {
		t.Fatalf("expected only sms provider after replace, got %+v", got.Providers)
	}
}

func TestSaveSettingsTrimsIssuerName(t *testing.T) {
	te, done := newTestEngine(t, enrollmentTestConfig())
	defer done()

	mustSaveSettings(t, te.engine, "t1", totpSettings("  tb  "))

	got, err := te.engine.GetSettings(context.Background(), "t1")
	if err != nil {
		t.Fatalf("GetSettings failed: %v", err)
	}
	provider, _ := got.Provider(ProviderTOTP)
	if provider.TOTP.IssuerName != "tb" {
		t.Fatalf("expected trimmed issuer, got %q", provider.TOTP.IssuerName)
	}
}

func TestSaveSettingsRejectsBackupCodeProvider(t *testing.T) {
	te, done := newTestEngine(t, enrollmentTestConfig())
	defer done()

	settings := TwoFactorAuthSettings{Providers: []ProviderConfig{{Type: ProviderBackupCode}}}
	if err := te.engine.SaveSettings(context.Background(), "t1", settings); !errors.Is(err, ErrProviderNotSupported) {
		t.Fatalf("expected ErrProviderNotSupported, got %v", err)
	}
}
