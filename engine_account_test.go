package twofa

import (
	"context"
	"encoding/base32"
	"errors"
	"net/url"
	"testing"
)

func totpCodeAt(t *testing.T, te *testEngine, secretBase32 string) string {
	t.Helper()
	code, err := te.engine.totp.ExpectedCode(secretBase32, te.clock.Now())
	if err != nil {
		t.Fatalf("ExpectedCode failed: %v", err)
	}
	return code
}

func enrollTOTP(t *testing.T, te *testEngine, user User) *AccountConfig {
	t.Helper()
	ctx := context.Background()

	candidate, err := te.engine.GenerateAccountConfig(ctx, user, ProviderTOTP)
	if err != nil {
		t.Fatalf("GenerateAccountConfig failed: %v", err)
	}
	if err := te.engine.SubmitAccountConfig(ctx, user, *candidate); err != nil {
		t.Fatalf("SubmitAccountConfig failed: %v", err)
	}
	committed, err := te.engine.VerifyAndSaveAccountConfig(ctx, user, *candidate,
		totpCodeAt(t, te, candidate.TOTP.SecretBase32))
	if err != nil {
		t.Fatalf("VerifyAndSaveAccountConfig failed: %v", err)
	}
	return committed
}

func TestGenerateAccountConfigProviderNotConfigured(t *testing.T) {
	te, done := newTestEngine(t, enrollmentTestConfig())
	defer done()

	mustSaveSettings(t, te.engine, "t1", smsSettings("code: ${verificationCode}"))

	_, err := te.engine.GenerateAccountConfig(context.Background(), testUser(), ProviderTOTP)
	if !errors.Is(err, ErrProviderNotConfigured) {
		t.Fatalf("expected ErrProviderNotConfigured, got %v", err)
	}
}

func TestGenerateTOTPAccountConfigShape(t *testing.T) {
	te, done := newTestEngine(t, enrollmentTestConfig())
	defer done()

	user := testUser()
	mustSaveSettings(t, te.engine, user.TenantID, totpSettings("tb"))

	candidate, err := te.engine.GenerateAccountConfig(context.Background(), user, ProviderTOTP)
	if err != nil {
		t.Fatalf("GenerateAccountConfig failed: %v", err)
	}
	if candidate.Type != ProviderTOTP || candidate.TOTP == nil {
		t.Fatalf("expected totp candidate, got %+v", candidate)
	}

	authURI, err := url.Parse(candidate.TOTP.AuthURI)
	if err != nil {
		t.Fatalf("auth uri does not parse: %v", err)
	}
	if authURI.Scheme != "otpauth" {
		t.Fatalf("expected otpauth scheme, got %q", authURI.Scheme)
	}
	if authURI.Host != "totp" {
		t.Fatalf("expected totp host, got %q", authURI.Host)
	}
	if authURI.Path != "/tb:"+user.Identifier {
		t.Fatalf("unexpected label path %q", authURI.Path)
	}
	if got := authURI.Query().Get("issuer"); got != "tb" {
		t.Fatalf("expected issuer=tb, got %q", got)
	}

	secret := authURI.Query().Get("secret")
	if secret != candidate.TOTP.SecretBase32 {
		t.Fatalf("uri secret %q does not match config secret %q", secret, candidate.TOTP.SecretBase32)
	}
	raw, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(secret)
	if err != nil {
		t.Fatalf("secret is not valid base32: %v", err)
	}
	if len(raw) < 20 {
		t.Fatalf("secret below 160 bits: %d bytes", len(raw))
	}
}

func TestGenerateTOTPSecretsAreUnique(t *testing.T) {
	te, done := newTestEngine(t, enrollmentTestConfig())
	defer done()

	user := testUser()
	mustSaveSettings(t, te.engine, user.TenantID, totpSettings("tb"))

	first, err := te.engine.GenerateAccountConfig(context.Background(), user, ProviderTOTP)
	if err != nil {
		t.Fatalf("GenerateAccountConfig failed: %v", err)
	}
	second, err := te.engine.GenerateAccountConfig(context.Background(), user, ProviderTOTP)
	if err != nil {
		t.Fatalf("GenerateAccountConfig failed: %v", err)
	}
	if first.TOTP.SecretBase32 == second.TOTP.SecretBase32 {
		t.Fatal("expected distinct secrets on repeated generation")
	}
}

func TestGetAccountConfigEmptyBeforeCommit(t *testing.T) {
	te, done := newTestEngine(t, enrollmentTestConfig())
	defer done()

	user := testUser()
	mustSaveSettings(t, te.engine, user.TenantID, totpSettings("tb"))

	if _, err := te.engine.GenerateAccountConfig(context.Background(), user, ProviderTOTP); err != nil {
		t.Fatalf("GenerateAccountConfig failed: %v", err)
	}

	got, err := te.engine.GetAccountConfig(context.Background(), user)
	if err != nil {
		t.Fatalf("GetAccountConfig failed: %v", err)
	}
	if got != nil {
		t.Fatalf("candidate must not be visible before verification, got %+v", got)
	}
}

func TestGetAccountConfigHiddenAfterProviderRemoved(t *testing.T) {
	te, done := newTestEngine(t, enrollmentTestConfig())
	defer done()

	user := testUser()
	mustSaveSettings(t, te.engine, user.TenantID, totpSettings("tb"))
	enrollTOTP(t, te, user)

	got, err := te.engine.GetAccountConfig(context.Background(), user)
	if err != nil || got == nil {
		t.Fatalf("expected committed config, got %+v err %v", got, err)
	}

	// Disable TOTP tenant-wide; the committed record stays but reads go empty.
	mustSaveSettings(t, te.engine, user.TenantID, smsSettings("code: ${verificationCode}"))

	got, err = te.engine.GetAccountConfig(context.Background(), user)
	if err != nil {
		t.Fatalf("GetAccountConfig failed: %v", err)
	}
	if got != nil {
		t.Fatalf("expected hidden config after provider removal, got %+v", got)
	}

	// The record itself survives: re-enabling the provider surfaces it again.
	mustSaveSettings(t, te.engine, user.TenantID, totpSettings("tb"))
	got, err = te.engine.GetAccountConfig(context.Background(), user)
	if err != nil || got == nil {
		t.Fatalf("expected config visible again, got %+v err %v", got, err)
	}
}

func TestGetAccountConfigForTypeHiddenWhenDisabled(t *testing.T) {
	te, done := newTestEngine(t, enrollmentTestConfig())
	defer done()

	user := testUser()
	mustSaveSettings(t, te.engine, user.TenantID, totpSettings("tb"))
	enrollTOTP(t, te, user)

	mustSaveSettings(t, te.engine, user.TenantID, smsSettings("code: ${verificationCode}"))

	got, err := te.engine.GetAccountConfigForType(context.Background(), user, ProviderTOTP)
	if err != nil {
		t.Fatalf("GetAccountConfigForType failed: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for disabled provider, got %+v", got)
	}

	// The store still holds the record underneath the read-time filter.
	stored, err := te.engine.store.GetAccountConfig(context.Background(), user.TenantID, user.UserID, ProviderTOTP)
	if err != nil {
		t.Fatalf("store.GetAccountConfig failed: %v", err)
	}
	if stored.TOTP == nil || stored.TOTP.SecretBase32 == "" {
		t.Fatalf("expected stored totp credential, got %+v", stored)
	}
}

func TestDeleteAccountConfigRemovesRecord(t *testing.T) {
	te, done := newTestEngine(t, enrollmentTestConfig())
	defer done()

	user := testUser()
	mustSaveSettings(t, te.engine, user.TenantID, totpSettings("tb"))
	enrollTOTP(t, te, user)

	if err := te.engine.DeleteAccountConfig(context.Background(), user, ProviderTOTP); err != nil {
		t.Fatalf("DeleteAccountConfig failed: %v", err)
	}

	got, err := te.engine.GetAccountConfig(context.Background(), user)
	if err != nil {
		t.Fatalf("GetAccountConfig failed: %v", err)
	}
	if got != nil {
		t.Fatalf("expected no config after delete, got %+v", got)
	}
}

func TestGenerateAccountConfigBackupCodeRejected(t *testing.T) {
	te, done := newTestEngine(t, enrollmentTestConfig())
	defer done()

	user := testUser()
	mustSaveSettings(t, te.engine, user.TenantID, totpSettings("tb"))

	// Backup codes can never be enabled in settings, so generation fails at
	// the settings lookup.
	_, err := te.engine.GenerateAccountConfig(context.Background(), user, ProviderBackupCode)
	if !errors.Is(err, ErrProviderNotConfigured) {
		t.Fatalf("expected ErrProviderNotConfigured, got %v", err)
	}
}
