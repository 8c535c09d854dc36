// Package identity authenticates API callers from HS256 bearer tokens.
package identity

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the JWT claims the console issues and accepts.
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Config holds token settings.
type Config struct {
	SecretKey string
	Issuer    string
	TokenTTL  time.Duration
}

// JWTValidator implements httputil.TokenValidator.
type JWTValidator struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewJWTValidator creates a validator for tokens signed with cfg.SecretKey.
func NewJWTValidator(cfg Config) (*JWTValidator, error) {
	if cfg.SecretKey == "" {
		return nil, ErrEmptySecret
	}
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &JWTValidator{
		secret: []byte(cfg.SecretKey),
		issuer: cfg.Issuer,
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

// IssueToken signs a token for actor, which must be an email address.
func (v *JWTValidator) IssueToken(actor string) (string, error) {
	if _, err := mail.ParseAddress(actor); err != nil {
		return "", fmt.Errorf("%w: %s", ErrInvalidActor, actor)
	}

	now := v.now()
	claims := Claims{
		Email: actor,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(v.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken parses the token and returns the actor email.
func (v *JWTValidator) ValidateToken(_ context.Context, token string) (string, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(v.now),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	if claims.Email == "" {
		return "", ErrMissingEmail
	}
	return claims.Email, nil
}
