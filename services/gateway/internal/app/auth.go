package app

import (
	"errors"
	"fmt"
	"strings"

	"bizdesk/internal/util"
	"bizdesk/pkg/auth"
	"bizdesk/pkg/domain"
	"bizdesk/pkg/store"
)

// Register creates an account. The very first account becomes ADMIN.
func (a *App) Register(email, password, name string) (domain.User, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return domain.User{}, fmt.Errorf("%w: email and password required", ErrInvalidInput)
	}
	exists, err := a.store.HasUserEmail(email)
	if err != nil {
		return domain.User{}, fmt.Errorf("check email: %w", err)
	}
	if exists {
		return domain.User{}, ErrEmailAlreadyExists
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}
	user, err := a.store.RegisterUser(domain.User{
		ID:           util.NewID(),
		Email:        email,
		PasswordHash: hash,
		Name:         strings.TrimSpace(name),
		CreatedAt:    a.clock(),
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return domain.User{}, ErrEmailAlreadyExists
		}
		return domain.User{}, fmt.Errorf("save user: %w", err)
	}
	return user, nil
}

// Login checks credentials and issues an access token.
func (a *App) Login(email, password string) (domain.User, string, error) {
	user, ok, err := a.store.GetUserByEmail(normalizeEmail(email))
	if err != nil {
		return domain.User{}, "", fmt.Errorf("fetch user: %w", err)
	}
	if !ok || !auth.CheckPassword(password, user.PasswordHash) {
		return domain.User{}, "", ErrInvalidCredentials
	}
	token, err := a.tokens.Issue(user)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("issue token: %w", err)
	}
	return user, token, nil
}

// Authenticate verifies an access token. Errors wrap auth.ErrTokenInvalid or
// auth.ErrTokenRevoked.
func (a *App) Authenticate(token string) (Principal, error) {
	claims, err := a.tokens.Verify(token)
	if err != nil {
		return Principal{}, err
	}
	return Principal{UserID: claims.UserID, Role: claims.Role}, nil
}

// Logout revokes the token until its natural expiry.
func (a *App) Logout(token string) error {
	return a.tokens.Revoke(token)
}

// Me returns the caller's account.
func (a *App) Me(p Principal) (domain.User, error) {
	return a.user(p.UserID)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
