package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"gatekey.org/internal/ids"
	"gatekey.org/internal/obs"
	"gatekey.org/internal/result"
)

// AccessClaims are the claims embedded in every access token.
type AccessClaims struct {
	Name  string   `json:"name"`
	Email string   `json:"email"`
	Roles []string `json:"role"`
	jwt.RegisteredClaims
}

// TokenService signs access tokens, tracks refresh tokens and rotates
// pairs. The signing key is immutable after construction and safe to share
// across concurrent requests.
type TokenService struct {
	key      []byte
	lifetime time.Duration
	users    UserStore
	tokens   TokenStore
	now      func() time.Time
}

// TokenOption configures TokenService behavior.
type TokenOption func(*TokenService)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) TokenOption {
	return func(s *TokenService) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewTokenService constructs a TokenService with the given HS256 key and
// access-token lifetime in minutes.
func NewTokenService(key string, lifetimeMinutes int, users UserStore, tokens TokenStore, opts ...TokenOption) *TokenService {
	s := &TokenService{
		key:      []byte(key),
		lifetime: time.Duration(lifetimeMinutes) * time.Minute,
		users:    users,
		tokens:   tokens,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Issue mints an access/refresh pair for the user and persists the refresh
// half. Exactly one token-store write happens per call; a failed write
// aborts the issuance instead of returning a half-issued pair.
func (s *TokenService) Issue(ctx context.Context, user *User) (Tokens, error) {
	roles, err := s.users.Roles(ctx, user.ID)
	if err != nil {
		return Tokens{}, fmt.Errorf("load roles: %w", err)
	}

	now := s.now().UTC()
	claims := AccessClaims{
		Name:  user.UserName,
		Email: user.Email,
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.lifetime)),
		},
	}
	access, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return Tokens{}, fmt.Errorf("sign access token: %w", err)
	}

	refresh, err := newRefreshTokenString()
	if err != nil {
		return Tokens{}, err
	}
	rec := &RefreshToken{
		ID:       ids.New(),
		UserID:   user.ID,
		Token:    refresh,
		IsActive: true,
	}
	if err := s.tokens.Insert(ctx, rec); err != nil {
		return Tokens{}, fmt.Errorf("persist refresh token: %w", err)
	}
	obs.ObserveTokensIssued()
	return Tokens{AccessToken: access, RefreshToken: refresh}, nil
}

// Claims verifies the token fully, expiry included. Used by the bearer
// middleware.
func (s *TokenService) Claims(accessToken string) (*AccessClaims, error) {
	return s.parse(accessToken)
}

// ExpiredClaims recovers identity from an expired-but-authentic access
// token during refresh. Signature and algorithm are still enforced; expiry
// is deliberately ignored.
func (s *TokenService) ExpiredClaims(accessToken string) (*AccessClaims, error) {
	return s.parse(accessToken, jwt.WithoutClaimsValidation())
}

func (s *TokenService) parse(accessToken string, opts ...jwt.ParserOption) (*AccessClaims, error) {
	parsed, err := jwt.ParseWithClaims(accessToken, &AccessClaims{}, func(t *jwt.Token) (any, error) {
		// Reject anything but HS256 before touching the signature; this
		// closes the "none"/asymmetric-algorithm substitution hole.
		if t.Method != jwt.SigningMethodHS256 {
			return nil, result.Failf("invalid token")
		}
		return s.key, nil
	}, opts...)
	if err != nil {
		return nil, result.Failf("invalid token")
	}
	claims, ok := parsed.Claims.(*AccessClaims)
	if !ok || claims.Subject == "" {
		return nil, result.Failf("invalid token")
	}
	return claims, nil
}

// Refresh rotates a token pair: it recovers the principal from the expired
// access token, consumes the presented refresh token and issues a new pair.
// The consume step is a conditional delete, so of two concurrent callers
// presenting the same pair exactly one succeeds; the other gets Forbidden.
func (s *TokenService) Refresh(ctx context.Context, tokens Tokens) (Tokens, error) {
	claims, err := s.ExpiredClaims(tokens.AccessToken)
	if err != nil {
		obs.ObserveRefresh("invalid")
		return Tokens{}, err
	}

	user, err := s.users.Find(ctx, claims.Subject)
	if err != nil {
		obs.ObserveRefresh("not_found")
		return Tokens{}, err
	}

	deleted, err := s.tokens.Delete(ctx, user.ID, tokens.RefreshToken)
	if err != nil {
		return Tokens{}, fmt.Errorf("consume refresh token: %w", err)
	}
	if !deleted {
		// Never issued, already consumed, or another user's token: the
		// caller cannot tell which.
		obs.ObserveRefresh("forbidden")
		return Tokens{}, result.Forbidden()
	}

	fresh, err := s.Issue(ctx, user)
	if err != nil {
		return Tokens{}, err
	}
	obs.ObserveRefresh("ok")
	return fresh, nil
}

func newRefreshTokenString() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate refresh token: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf), nil
}
