package security

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestAlerter(t *testing.T) (*AuditAlerter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewAuditAlerter(client, "test:alerts"), mr
}

func TestAuditAlerterObserveTriggers(t *testing.T) {
	alerter, _ := newTestAlerter(t)
	ctx := context.Background()
	for i := 1; i <= 10; i++ {
		result, err := alerter.Observe(ctx, "gateway.login", "fail", "127.0.0.1")
		if err != nil {
			t.Fatalf("observe: %v", err)
		}
		if result.Triggered != (i == 10) {
			t.Fatalf("attempt %d triggered = %v", i, result.Triggered)
		}
	}
	other, err := alerter.Observe(ctx, "gateway.login", "fail", "10.0.0.9")
	if err != nil || other.Count != 1 {
		t.Fatalf("other ip = %+v, %v", other, err)
	}
}

func TestAuditAlerterWindowExpires(t *testing.T) {
	alerter, mr := newTestAlerter(t)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	alerter.now = func() time.Time { return now }
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, _ = alerter.Observe(ctx, "gateway.register", "rate_limited", "1.2.3.4")
	}
	now = now.Add(time.Minute)
	mr.FastForward(time.Minute)
	result, err := alerter.Observe(ctx, "gateway.register", "rate_limited", "1.2.3.4")
	if err != nil || result.Count != 1 {
		t.Fatalf("after window = %+v, %v", result, err)
	}
}

func TestAuditAlerterIgnoresUnknownRuleAndNil(t *testing.T) {
	alerter, _ := newTestAlerter(t)
	result, err := alerter.Observe(context.Background(), "gateway.login", "success", "127.0.0.1")
	if err != nil || result.Triggered || result.Count != 0 {
		t.Fatalf("success outcome = %+v, %v", result, err)
	}
	var none *AuditAlerter
	if _, err := none.Observe(context.Background(), "gateway.login", "fail", "x"); err != nil {
		t.Fatalf("nil alerter: %v", err)
	}
	if NewAuditAlerter(nil, "") != nil {
		t.Fatalf("expected nil alerter without client")
	}
}
