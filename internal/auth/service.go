// Package auth validates subscriber bearer tokens. Issuing sessions
// belongs to the identity provider; IssueToken exists for operators and
// tests.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Roles carried in the token.
const (
	RoleSubscriber = "subscriber"
	RoleAdmin      = "admin"
)

var ErrInvalidToken = errors.New("invalid token")

// AccountEnsurer creates the account on first sight.
type AccountEnsurer interface {
	EnsureAccount(ctx context.Context, accountID uuid.UUID) error
}

type Service interface {
	ValidateToken(ctx context.Context, token string) (uuid.UUID, string, error)
	// Authenticate validates the token and makes sure the account exists.
	Authenticate(ctx context.Context, token string) (uuid.UUID, string, error)
	IssueToken(accountID uuid.UUID, role string, ttl time.Duration) (string, error)
}

type service struct {
	secret   []byte
	accounts AccountEnsurer
	now      func() time.Time
}

func NewService(secret string, accounts AccountEnsurer) Service {
	return &service{secret: []byte(secret), accounts: accounts, now: time.Now}
}

// Ensure service implements Service at compile time.
var _ Service = (*service)(nil)

type claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

func (s *service) IssueToken(accountID uuid.UUID, role string, ttl time.Duration) (string, error) {
	if role == "" {
		role = RoleSubscriber
	}
	now := s.now()
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		Role: role,
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	return tok.SignedString(s.secret)
}

func (s *service) ValidateToken(_ context.Context, token string) (uuid.UUID, string, error) {
	tok, err := jwt.ParseWithClaims(token, &claims{}, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return uuid.Nil, "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	c, ok := tok.Claims.(*claims)
	if !ok || !tok.Valid {
		return uuid.Nil, "", ErrInvalidToken
	}
	id, err := uuid.Parse(c.Subject)
	if err != nil {
		return uuid.Nil, "", fmt.Errorf("%w: subject: %v", ErrInvalidToken, err)
	}
	return id, c.Role, nil
}

func (s *service) Authenticate(ctx context.Context, token string) (uuid.UUID, string, error) {
	id, role, err := s.ValidateToken(ctx, token)
	if err != nil {
		return uuid.Nil, "", err
	}
	if s.accounts != nil {
		if err := s.accounts.EnsureAccount(ctx, id); err != nil {
			return uuid.Nil, "", fmt.Errorf("ensure account: %w", err)
		}
	}
	return id, role, nil
}
