package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	authcore "github.com/securepay/authcore"
	"github.com/securepay/authcore/password"
)

type memProvider struct {
	accounts map[string]*authcore.Account
}

func (p *memProvider) GetByIdentifier(_ context.Context, identifier string) (*authcore.Account, error) {
	for _, acct := range p.accounts {
		if acct.Identifier == identifier {
			clone := *acct
			return &clone, nil
		}
	}
	return nil, nil
}

func (p *memProvider) GetByID(_ context.Context, id string) (*authcore.Account, error) {
	acct, ok := p.accounts[id]
	if !ok {
		return nil, nil
	}
	clone := *acct
	return &clone, nil
}

func (p *memProvider) Create(_ context.Context, account *authcore.Account) error {
	clone := *account
	p.accounts[account.ID] = &clone
	return nil
}

func (p *memProvider) UpdateSecurityState(_ context.Context, id string, state authcore.SecurityState) error {
	p.accounts[id].Security = state
	return nil
}

func (p *memProvider) UpdateMFAState(_ context.Context, id string, state authcore.MFAState) error {
	p.accounts[id].MFA = state
	return nil
}

const testPassword = "Sup3r$ecretPass!"

func newCore(t *testing.T, perMinute int) (*authcore.Core, string) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	cfg := authcore.DefaultConfig()
	cfg.SigningSecret = []byte("0123456789abcdef0123456789abcdef")
	cfg.EncryptionSeed = "middleware-test-seed"
	cfg.RateLimit.PerMinute = perMinute
	cfg.Password = password.Config{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}

	provider := &memProvider{accounts: make(map[string]*authcore.Account)}
	core, err := authcore.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithAccountProvider(provider).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(core.Close)

	res, err := core.Guard().Register(context.Background(), authcore.RegisterInput{
		Identifier: "mw@example.com",
		Password:   testPassword,
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	return core, res.Tokens.AccessToken
}

func okHandler(t *testing.T, sawIdentity *bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id, ok := IdentityFromContext(r.Context()); ok && id != nil {
			*sawIdentity = true
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestGuardAcceptsValidBearer(t *testing.T) {
	core, token := newCore(t, 100)

	var sawIdentity bool
	handler := Guard(core.Gate())(okHandler(t, &sawIdentity))

	req := httptest.NewRequest(http.MethodGet, "/transactions", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	req.RemoteAddr = "203.0.113.5:41000"

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !sawIdentity {
		t.Fatal("identity not attached to context")
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatal("X-Request-ID not set")
	}
	if rec.Header().Get("X-RateLimit-Remaining-Minute") == "" {
		t.Fatal("X-RateLimit-Remaining-Minute not set")
	}
}

func TestGuardRejectsMissingBearer(t *testing.T) {
	core, _ := newCore(t, 100)

	var sawIdentity bool
	handler := Guard(core.Gate())(okHandler(t, &sawIdentity))

	req := httptest.NewRequest(http.MethodGet, "/transactions", nil)
	req.RemoteAddr = "203.0.113.5:41000"

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if sawIdentity {
		t.Fatal("handler ran without authentication")
	}
}

func TestThrottleReturns429WithRetryAfter(t *testing.T) {
	core, _ := newCore(t, 1)

	handler := Throttle(core.Gate())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
		req.RemoteAddr = "203.0.113.6:41000"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if i == 0 && rec.Code != http.StatusOK {
			t.Fatalf("first request status = %d, want 200", rec.Code)
		}
		if i == 1 {
			if rec.Code != http.StatusTooManyRequests {
				t.Fatalf("second request status = %d, want 429", rec.Code)
			}
			if rec.Header().Get("Retry-After") != "60" {
				t.Fatalf("Retry-After = %q, want 60", rec.Header().Get("Retry-After"))
			}
		}
	}
}

func TestGuardHonorsForwardedFor(t *testing.T) {
	core, token := newCore(t, 1)

	var sawIdentity bool
	handler := Guard(core.Gate())(okHandler(t, &sawIdentity))

	// Exhaust the budget for one forwarded address.
	req := httptest.NewRequest(http.MethodGet, "/transactions", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Forwarded-For", "198.51.100.1, 10.0.0.1")
	req.RemoteAddr = "10.0.0.1:41000"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429 for same forwarded address", rec.Code)
	}

	// A different forwarded address has its own budget.
	req2 := httptest.NewRequest(http.MethodGet, "/transactions", nil)
	req2.Header.Set("Authorization", "Bearer "+token)
	req2.Header.Set("X-Forwarded-For", "198.51.100.2")
	req2.RemoteAddr = "10.0.0.1:41000"
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req2)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 for distinct forwarded address", rec.Code)
	}
}

func TestCorrelationIDEchoedFromRequest(t *testing.T) {
	core, _ := newCore(t, 100)

	handler := Throttle(core.Gate())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	req.Header.Set("X-Request-ID", "edge-assigned")
	req.RemoteAddr = "203.0.113.7:41000"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-ID"); got != "edge-assigned" {
		t.Fatalf("X-Request-ID = %q, want edge-assigned", got)
	}
}
