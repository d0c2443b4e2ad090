package authcore

import (
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestBuildRequiresCollaborators(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	if _, err := New().WithConfig(testConfig()).WithAccountProvider(newFakeProvider()).Build(); err == nil {
		t.Fatal("expected error without redis client")
	}
	if _, err := New().WithConfig(testConfig()).WithRedis(rdb).Build(); err == nil {
		t.Fatal("expected error without account provider")
	}
}

func TestBuildRejectsShortSigningSecret(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	cfg := testConfig()
	cfg.SigningSecret = []byte("too-short")

	_, err := New().WithConfig(cfg).WithRedis(rdb).WithAccountProvider(newFakeProvider()).Build()
	if err == nil || !strings.Contains(err.Error(), "signing secret") {
		t.Fatalf("err = %v, want signing secret rejection", err)
	}
}

func TestBuildRejectsMissingEncryptionSeed(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	cfg := testConfig()
	cfg.EncryptionSeed = ""

	_, err := New().WithConfig(cfg).WithRedis(rdb).WithAccountProvider(newFakeProvider()).Build()
	if err == nil || !strings.Contains(err.Error(), "encryption seed") {
		t.Fatalf("err = %v, want encryption seed rejection", err)
	}
}

func TestBuilderIsSingleUse(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	b := New().WithConfig(testConfig()).WithRedis(rdb).WithAccountProvider(newFakeProvider())
	core, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(core.Close)

	if _, err := b.Build(); err == nil {
		t.Fatal("expected second Build to fail")
	}
}

func TestDefaultConfigValues(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Lockout.Threshold != 5 {
		t.Fatalf("lockout threshold = %d, want 5", cfg.Lockout.Threshold)
	}
	if cfg.RateLimit.PerMinute != 100 || cfg.RateLimit.PerHour != 1000 {
		t.Fatalf("rate quotas = %d/%d, want 100/1000", cfg.RateLimit.PerMinute, cfg.RateLimit.PerHour)
	}
	if cfg.Session.TTL.Hours() != 24 {
		t.Fatalf("session ttl = %v, want 24h", cfg.Session.TTL)
	}
	if cfg.MFA.BackupCodeCount != 10 || cfg.MFA.Skew != 1 {
		t.Fatalf("mfa config = %+v", cfg.MFA)
	}

	// Defaults alone must not validate; the secrets are mandatory.
	if err := cfg.validate(); err == nil {
		t.Fatal("expected validation failure without secrets")
	}

	cfg.SigningSecret = []byte(testSecret)
	cfg.EncryptionSeed = testSeed
	if err := cfg.validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}
