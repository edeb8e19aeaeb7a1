package server

import (
	"bytes"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"bizdesk/internal/ratelimit"
	"bizdesk/internal/util"
	"bizdesk/services/gateway/internal/security"
)

func newLimiter(t *testing.T, client redis.UniversalClient, name string, limit int) *ratelimit.FixedWindowLimiter {
	t.Helper()
	limiter, err := ratelimit.New(client, "test:ratelimit:"+name, limit, time.Minute)
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	return limiter
}

func TestLoginRateLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	g := newTestGateway(t, func(cfg *Config) {
		cfg.LoginLimiter = newLimiter(t, client, "login", 2)
	})
	g.signup(t, "ana@example.com", "Ana") // consumes one login

	body := map[string]string{"email": "ana@example.com", "password": "secret-pass"}
	if resp := g.call(t, http.MethodPost, "/auth/login", "", body, nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("second login = %d", resp.StatusCode)
	}
	var out map[string]string
	resp := g.call(t, http.MethodPost, "/auth/login", "", body, &out)
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("third login = %d", resp.StatusCode)
	}
	if out["error"] != "too many login attempts" {
		t.Fatalf("error = %q", out["error"])
	}
	secs, err := strconv.Atoi(resp.Header.Get("Retry-After"))
	if err != nil || secs < 1 || secs > 60 {
		t.Fatalf("Retry-After = %q", resp.Header.Get("Retry-After"))
	}
}

func TestSignupRateLimitFailsClosedWithoutRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })

	g := newTestGateway(t, func(cfg *Config) {
		cfg.SignupLimiter = newLimiter(t, client, "signup", 10)
	})
	mr.Close()

	resp := g.call(t, http.MethodPost, "/auth/register", "", map[string]string{"email": "ana@example.com", "password": "x"}, nil)
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("register with redis down = %d", resp.StatusCode)
	}
}

func TestUnlimitedWithoutLimiters(t *testing.T) {
	g := newTestGateway(t, nil)
	g.signup(t, "ana@example.com", "Ana")
	body := map[string]string{"email": "ana@example.com", "password": "secret-pass"}
	for i := 0; i < 20; i++ {
		if resp := g.call(t, http.MethodPost, "/auth/login", "", body, nil); resp.StatusCode != http.StatusOK {
			t.Fatalf("login %d = %d", i, resp.StatusCode)
		}
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestRepeatedLoginFailuresRaiseSecurityAlert(t *testing.T) {
	var logs syncBuffer
	prev := slog.Default()
	slog.SetDefault(util.NewLogger(&logs, "info"))
	t.Cleanup(func() { slog.SetDefault(prev) })

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	g := newTestGateway(t, func(cfg *Config) {
		cfg.Alerter = security.NewAuditAlerter(client, "test:alerts")
	})

	body := map[string]string{"email": "ghost@example.com", "password": "nope"}
	for i := 0; i < 9; i++ {
		g.call(t, http.MethodPost, "/auth/login", "", body, nil)
	}
	if strings.Contains(logs.String(), `"msg":"security_alert"`) {
		t.Fatalf("alert raised before threshold")
	}
	g.call(t, http.MethodPost, "/auth/login", "", body, nil)
	if !strings.Contains(logs.String(), `"msg":"security_alert"`) {
		t.Fatalf("expected security_alert after 10 failures; logs:\n%s", logs.String())
	}
}
