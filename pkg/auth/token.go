package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"bizdesk/pkg/domain"
)

const (
	defaultTokenTTL = 8 * time.Hour
	defaultIssuer   = "bizdesk"
)

var (
	// ErrTokenInvalid covers bad signatures, malformed tokens and expiry.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrTokenRevoked is returned for tokens revoked by logout.
	ErrTokenRevoked = errors.New("token revoked")
)

// Claims is the signed payload of an access token.
type Claims struct {
	UserID string          `json:"userId"`
	Role   domain.UserRole `json:"role"`
	jwt.RegisteredClaims
}

// TokenManager issues and verifies HS256 access tokens.
type TokenManager struct {
	secret  []byte
	ttl     time.Duration
	issuer  string
	revoker TokenRevoker
	now     func() time.Time
}

// NewTokenManager builds a manager signing with secret. revoker may be nil.
func NewTokenManager(secret string, ttl time.Duration, revoker TokenRevoker) (*TokenManager, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("jwt secret required")
	}
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	return &TokenManager{
		secret:  []byte(secret),
		ttl:     ttl,
		issuer:  defaultIssuer,
		revoker: revoker,
		now:     time.Now,
	}, nil
}

// Issue signs a token embedding the user id and role.
func (m *TokenManager) Issue(user domain.User) (string, error) {
	now := m.now().UTC()
	claims := Claims{
		UserID: user.ID,
		Role:   user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
			ID:        uuid.NewString(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// Verify checks signature, expiry and revocation and returns the claims.
func (m *TokenManager) Verify(token string) (Claims, error) {
	claims := Claims{}
	token = strings.TrimSpace(token)
	if token == "" {
		return claims, ErrTokenInvalid
	}
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil || !parsed.Valid {
		return claims, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if claims.UserID == "" {
		return claims, fmt.Errorf("%w: userId missing", ErrTokenInvalid)
	}
	if m.revoker != nil && claims.ID != "" {
		revoked, err := m.revoker.IsRevoked(claims.ID)
		if err != nil {
			return claims, fmt.Errorf("check revocation: %w", err)
		}
		if revoked {
			return claims, ErrTokenRevoked
		}
	}
	return claims, nil
}

// Revoke invalidates a verified token until it would have expired.
func (m *TokenManager) Revoke(token string) error {
	if m.revoker == nil {
		return nil
	}
	claims, err := m.Verify(token)
	if err != nil {
		return err
	}
	if claims.ExpiresAt == nil || claims.ID == "" {
		return nil
	}
	return m.revoker.Revoke(claims.ID, claims.ExpiresAt.Time.Sub(m.now()))
}
