package twofa

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, rdb
}

// manualClock is a settable Clock for deterministic TOTP steps and expiry.
type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock(start time.Time) *manualClock {
	return &manualClock{now: start}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type sentCode struct {
	Destination string
	Message     string
}

// recorderSender captures dispatched messages instead of sending them.
type recorderSender struct {
	mu   sync.Mutex
	sent []sentCode
	fail error
}

func (s *recorderSender) SendCode(_ context.Context, destination, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.sent = append(s.sent, sentCode{Destination: destination, Message: message})
	return nil
}

func (s *recorderSender) last(t *testing.T) sentCode {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.sent) == 0 {
		t.Fatal("expected a dispatched code")
	}
	return s.sent[len(s.sent)-1]
}

func (s *recorderSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

// codeFromMessage pulls the numeric code out of a message rendered from the
// "code: ${verificationCode}" test template.
func codeFromMessage(t *testing.T, message string) string {
	t.Helper()
	idx := strings.LastIndexByte(message, ' ')
	if idx < 0 || idx == len(message)-1 {
		t.Fatalf("unexpected message format: %q", message)
	}
	return message[idx+1:]
}

type testEngine struct {
	engine *Engine
	mr     *miniredis.Miniredis
	clock  *manualClock
	sms    *recorderSender
	email  *recorderSender
}

func newTestEngine(t *testing.T, cfg Config) (*testEngine, func()) {
	t.Helper()

	mr, rdb := newTestRedis(t)
	clock := newManualClock(time.Unix(1_700_000_000, 0))
	sms := &recorderSender{}
	email := &recorderSender{}

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithConfigStore(NewRedisConfigStore(rdb, cfg.KeyPrefix)).
		WithSMSSender(sms).
		WithEmailSender(email).
		WithClock(clock).
		WithMetricsEnabled(true).
		Build()
	if err != nil {
		mr.Close()
		t.Fatalf("Build failed: %v", err)
	}

	te := &testEngine{engine: engine, mr: mr, clock: clock, sms: sms, email: email}
	return te, func() {
		engine.Close()
		mr.Close()
	}
}

func enrollmentTestConfig() Config {
	cfg := defaultConfig()
	cfg.Challenge.TTL = 2 * time.Minute
	cfg.Challenge.MaxAttempts = 3
	return cfg
}

func totpSettings(issuer string) TwoFactorAuthSettings {
	return TwoFactorAuthSettings{Providers: []ProviderConfig{
		{Type: ProviderTOTP, TOTP: &TOTPProviderConfig{IssuerName: issuer}},
	}}
}

func smsSettings(template string) TwoFactorAuthSettings {
	return TwoFactorAuthSettings{Providers: []ProviderConfig{
		{Type: ProviderSMS, SMS: &SMSProviderConfig{VerificationMessageTemplate: template}},
	}}
}

func testUser() User {
	return User{TenantID: "t1", UserID: "u1", Identifier: "alice@example.com"}
}

func mustSaveSettings(t *testing.T, e *Engine, tenantID string, settings TwoFactorAuthSettings) {
	t.Helper()
	if err := e.SaveSettings(context.Background(), tenantID, settings); err != nil {
		t.Fatalf("SaveSettings failed: %v", err)
	}
}
