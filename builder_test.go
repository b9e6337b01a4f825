package twofa

import (
	"strings"
	"testing"
)

func TestBuildRequiresConfigStore(t *testing.T) {
	_, err := New().Build()
	if err == nil || !strings.Contains(err.Error(), "config store") {
		t.Fatalf("expected config store error, got %v", err)
	}
}

func TestBuildRejectsReuse(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	b := New().WithConfigStore(NewRedisConfigStore(rdb, "tfa"))
	if _, err := b.Build(); err != nil {
		t.Fatalf("first Build failed: %v", err)
	}
	if _, err := b.Build(); err == nil {
		t.Fatal("second Build must fail")
	}
}

func TestBuildRejectsInvalidConfig(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	cfg := defaultConfig()
	cfg.TOTP.Digits = 12

	_, err := New().
		WithConfig(cfg).
		WithConfigStore(NewRedisConfigStore(rdb, "tfa")).
		Build()
	if err == nil {
		t.Fatal("expected config validation error")
	}
}

func TestBuildWithoutRedisIsTOTPOnly(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	engine, err := New().
		WithConfigStore(NewRedisConfigStore(rdb, "tfa")).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()

	if engine.pending != nil {
		t.Fatal("pending store must be absent without redis")
	}
}
