package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"bizdesk/pkg/auth"
	"bizdesk/pkg/store"
	"bizdesk/services/gateway/internal/app"
	"bizdesk/services/gateway/internal/realtime"
)

type testGateway struct {
	url   string
	app   *app.App
	store *store.MemoryStore
	hub   *realtime.Hub
}

func newTestGateway(t *testing.T, mutate func(*Config)) *testGateway {
	t.Helper()
	tokens, err := auth.NewTokenManager("test-secret", time.Hour, auth.NewMemoryTokenRevoker())
	if err != nil {
		t.Fatalf("token manager: %v", err)
	}
	st := store.NewMemoryStore()
	hub := realtime.NewHub(nil)
	core, err := app.New(app.Config{Store: st, Tokens: tokens, Notifier: hub})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	cfg := Config{
		App:                core,
		Hub:                hub,
		CORSAllowedOrigins: []string{"http://localhost:5173"},
	}
	if mutate != nil {
		mutate(&cfg)
	}
	gw, err := New(cfg)
	if err != nil {
		t.Fatalf("new gateway server: %v", err)
	}
	srv := httptest.NewServer(gw.Router())
	t.Cleanup(func() {
		hub.CloseAll()
		srv.Close()
	})
	return &testGateway{url: srv.URL, app: core, store: st, hub: hub}
}

// call sends body as JSON (raw when it is a string) and decodes the response
// into out when out is non-nil.
func (g *testGateway) call(t *testing.T, method, path, token string, body any, out any) *http.Response {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("encode body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, g.url+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s (status %d): %v", method, path, resp.StatusCode, err)
		}
	}
	return resp
}

// signup registers and logs in, returning the bearer token.
func (g *testGateway) signup(t *testing.T, email, name string) string {
	t.Helper()
	resp := g.call(t, http.MethodPost, "/auth/register", "", map[string]string{
		"email": email, "password": "secret-pass", "name": name,
	}, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register %s: status %d", email, resp.StatusCode)
	}
	var login loginResponse
	resp = g.call(t, http.MethodPost, "/auth/login", "", map[string]string{
		"email": email, "password": "secret-pass",
	}, &login)
	if resp.StatusCode != http.StatusOK || login.Token == "" {
		t.Fatalf("login %s: status %d", email, resp.StatusCode)
	}
	return login.Token
}

func errorMessage(t *testing.T, g *testGateway, method, path, token string, body any) (int, string) {
	t.Helper()
	var out map[string]string
	resp := g.call(t, method, path, token, body, &out)
	return resp.StatusCode, out["error"]
}

func TestNumberAcceptsStringsAndNumbers(t *testing.T) {
	var req productRequest
	if err := json.Unmarshal([]byte(`{"name":"Mouse","price":"12.50","stock":3}`), &req); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if req.Price.Float() != 12.5 || req.Stock.Int() != 3 {
		t.Fatalf("decoded = %+v", req)
	}
	if err := json.Unmarshal([]byte(`{"price":"abc"}`), &req); err == nil {
		t.Fatalf("expected error for non-numeric string")
	}
	for _, body := range []string{`{"stock":1e30}`, `{"stock":"-1e19"}`} {
		var big productRequest
		if err := json.Unmarshal([]byte(body), &big); err == nil {
			t.Fatalf("%s decoded to %d", body, big.Stock)
		}
	}
	var frac orderItemRequest
	if err := json.Unmarshal([]byte(`{"quantity":"2.9"}`), &frac); err != nil || frac.Quantity.Int() != 2 {
		t.Fatalf("fractional quantity = %d, %v", frac.Quantity, err)
	}
	var empty productRequest
	if err := json.Unmarshal([]byte(`{"price":"","stock":null}`), &empty); err != nil || empty.Price != 0 || empty.Stock != 0 {
		t.Fatalf("empty values = %+v, %v", empty, err)
	}
}

func TestHealthzAndRequestID(t *testing.T) {
	g := newTestGateway(t, nil)
	var out map[string]string
	resp := g.call(t, http.MethodGet, "/healthz", "", nil, &out)
	if resp.StatusCode != http.StatusOK || out["status"] != "ok" {
		t.Fatalf("healthz = %d %v", resp.StatusCode, out)
	}
	if resp.Header.Get("X-Request-Id") == "" {
		t.Fatalf("expected request id header")
	}
	if resp.Header.Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("expected security headers")
	}
}

func TestCORSPreflightForAllowedOrigin(t *testing.T) {
	g := newTestGateway(t, nil)
	req, _ := http.NewRequest(http.MethodOptions, g.url+"/orders", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "POST")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("preflight: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("preflight status = %d", resp.StatusCode)
	}
	if resp.Header.Get("Access-Control-Allow-Origin") != "http://localhost:5173" {
		t.Fatalf("allow origin = %q", resp.Header.Get("Access-Control-Allow-Origin"))
	}
}
