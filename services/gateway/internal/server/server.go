package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"

	"bizdesk/internal/ratelimit"
	"bizdesk/internal/util"
	"bizdesk/pkg/auth"
	"bizdesk/services/gateway/internal/app"
	"bizdesk/services/gateway/internal/realtime"
	"bizdesk/services/gateway/internal/security"
)

const maxJSONBody = 1 << 20

// Config wires required dependencies for the HTTP server.
type Config struct {
	App *app.App
	// Hub serves /ws; without it the endpoint answers 503.
	Hub *realtime.Hub
	// Limiters are optional; nil disables rate limiting for that route.
	SignupLimiter      *ratelimit.FixedWindowLimiter
	LoginLimiter       *ratelimit.FixedWindowLimiter
	TrustedProxies     *util.TrustedProxies
	CORSAllowedOrigins []string
	MaxUploadBytes     int64
	// Alerter is optional; it flags bursts of failed security events.
	Alerter *security.AuditAlerter
}

// Server exposes HTTP endpoints for the backend.
type Server struct {
	app            *app.App
	hub            *realtime.Hub
	mux            *http.ServeMux
	trusted        *util.TrustedProxies
	origins        []string
	maxUploadBytes int64
	signupLimiter  *ratelimit.FixedWindowLimiter
	loginLimiter   *ratelimit.FixedWindowLimiter
	alerter        *security.AuditAlerter
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("app required")
	}
	s := &Server{
		app:            cfg.App,
		hub:            cfg.Hub,
		mux:            http.NewServeMux(),
		trusted:        cfg.TrustedProxies,
		origins:        cfg.CORSAllowedOrigins,
		maxUploadBytes: normalizeMaxBytes(cfg.MaxUploadBytes),
		signupLimiter:  cfg.SignupLimiter,
		loginLimiter:   cfg.LoginLimiter,
		alerter:        cfg.Alerter,
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	h := util.WithSecurityHeaders(s.mux)
	h = util.WithCORS(s.origins, h)
	h = util.WithRequestLog(s.trusted, h, "/healthz")
	return util.WithRequestID(h)
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.HandleFunc("/ws", s.handleWS)

	// auth
	s.mux.HandleFunc("/auth/register", s.handleRegister)
	s.mux.HandleFunc("/auth/login", s.handleLogin)
	s.mux.Handle("/auth/logout", s.authenticated(s.handleLogout))
	s.mux.Handle("/auth/me", s.authenticated(s.handleMe))

	// catalog & orders
	s.mux.Handle("/products", s.authenticated(s.handleProducts))
	s.mux.Handle("/products/", s.authenticated(s.handleProductByID))
	s.mux.Handle("/orders", s.authenticated(s.handleOrders))
	s.mux.Handle("/orders/", s.authenticated(s.handleOrderStatus))

	// chat
	s.mux.Handle("/chat/history", s.authenticated(s.handleChatHistory))
	s.mux.Handle("/chat/history/", s.authenticated(s.handleChatHistoryRoom))
	s.mux.Handle("/chat/upload", s.authenticated(s.handleChatUpload))

	// billing
	s.mux.Handle("/invoices", s.authenticated(s.handleInvoices))
	s.mux.Handle("/clients", s.authenticated(s.handleClients))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type authHandler func(http.ResponseWriter, *http.Request, app.Principal)

// authenticated answers 401 without a bearer token and 403 for tokens that
// fail verification or were revoked.
func (s *Server) authenticated(next authHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			s.audit(r, "gateway.authorize", "fail", "reason", "missing_token")
			writeError(w, http.StatusUnauthorized, "missing token")
			return
		}
		p, err := s.app.Authenticate(token)
		if err != nil {
			reason := "invalid_token"
			if errors.Is(err, auth.ErrTokenRevoked) {
				reason = "revoked_token"
			}
			s.audit(r, "gateway.authorize", "fail", "reason", reason)
			writeError(w, http.StatusForbidden, "invalid token")
			return
		}
		ctx := r.Context()
		ctx = util.ContextWithLogger(ctx, util.LoggerFromContext(ctx).With("user_id", p.UserID))
		next(w, r.WithContext(ctx), p)
	})
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeAppError maps application errors to status codes. Unexpected errors
// are logged and answered with a generic message.
func writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, app.ErrInvalidInput),
		errors.Is(err, app.ErrEmailAlreadyExists),
		errors.Is(err, app.ErrInvalidStatus),
		errors.Is(err, app.ErrRoomRequired):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, app.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, app.ErrRoomForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, auth.ErrTokenInvalid), errors.Is(err, auth.ErrTokenRevoked):
		writeError(w, http.StatusForbidden, "invalid token")
	case errors.Is(err, app.ErrUserNotFound),
		errors.Is(err, app.ErrProductNotFound),
		errors.Is(err, app.ErrOrderNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		util.LoggerFromContext(r.Context()).Error("request failed", "path", r.URL.Path, "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeJSON(r *http.Request, dst any) error {
	return json.NewDecoder(io.LimitReader(r.Body, maxJSONBody)).Decode(dst)
}

func normalizeMaxBytes(value int64) int64 {
	if value <= 0 {
		return 10 << 20
	}
	return value
}

func (s *Server) audit(r *http.Request, event, outcome string, attrs ...any) {
	ip := util.ClientIP(r, s.trusted)
	logAttrs := []any{
		"event", event,
		"outcome", outcome,
		"path", r.URL.Path,
		"method", r.Method,
		"ip", ip,
	}
	logAttrs = append(logAttrs, attrs...)
	logger := util.LoggerFromContext(r.Context())
	if outcome == "success" {
		logger.Info("security_event", logAttrs...)
		return
	}
	logger.Warn("security_event", logAttrs...)

	result, err := s.alerter.Observe(r.Context(), event, outcome, ip)
	if err != nil {
		logger.Warn("security alert observe failed", "event", event, "err", err)
		return
	}
	if result.Triggered {
		logger.Error("security_alert",
			"event", event,
			"outcome", outcome,
			"ip", ip,
			"count", result.Count,
			"threshold", result.Threshold,
			"window", result.Window.String(),
		)
	}
}

func (s *Server) allowRate(w http.ResponseWriter, r *http.Request, limiter *ratelimit.FixedWindowLimiter, msg string) bool {
	if limiter == nil {
		return true
	}
	key := r.URL.Path + "|" + util.ClientIP(r, s.trusted)
	allowed, retryAfter := limiter.Allow(r.Context(), key)
	if allowed {
		return true
	}
	seconds := int(math.Ceil(retryAfter.Seconds()))
	if seconds < 1 {
		seconds = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(seconds))
	writeError(w, http.StatusTooManyRequests, msg)
	return false
}

// number accepts a JSON number or a string holding one.
type number float64

func (n *number) UnmarshalJSON(b []byte) error {
	raw := strings.TrimSpace(string(b))
	if raw == "null" {
		return nil
	}
	if unquoted, err := strconv.Unquote(raw); err == nil {
		raw = strings.TrimSpace(unquoted)
		if raw == "" {
			return nil
		}
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("not a number: %s", b)
	}
	*n = number(f)
	return nil
}

func (n number) Float() float64 { return float64(n) }

// integer is a number truncated toward zero; values outside the int range are rejected.
type integer int

func (n *integer) UnmarshalJSON(b []byte) error {
	var f number
	if err := f.UnmarshalJSON(b); err != nil {
		return err
	}
	t := math.Trunc(float64(f))
	if t < math.MinInt || t >= math.MaxInt {
		return fmt.Errorf("out of range: %s", b)
	}
	*n = integer(t)
	return nil
}

func (n integer) Int() int { return int(n) }
