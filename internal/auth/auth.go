// Package auth guards the daemon API. Clients exchange a shared access
// token for a short-lived JWT, then present the JWT on every request.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const defaultTokenTTL = 24 * time.Hour

var (
	// ErrInvalidCredentials is returned when the presented access token
	// does not match the configured hash.
	ErrInvalidCredentials = errors.New("invalid access token")

	// ErrInvalidToken is returned for JWTs that fail validation.
	ErrInvalidToken = errors.New("invalid token")

	// ErrDisabled is returned when token operations are requested while
	// authentication is switched off.
	ErrDisabled = errors.New("authentication is disabled")
)

// Claims represents JWT token claims.
type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// Config configures the auth service.
type Config struct {
	Enabled bool

	// TokenHash is the bcrypt hash of the shared access token.
	TokenHash string

	// JWTSecret signs and verifies issued tokens (HS256).
	JWTSecret string

	// TokenTTL bounds the lifetime of issued tokens.
	TokenTTL time.Duration
}

// Service handles authentication for the daemon API.
type Service struct {
	enabled   bool
	tokenHash []byte
	jwtSecret []byte
	tokenTTL  time.Duration
}

// NewService creates an auth service. When authentication is enabled
// both the access token hash and the JWT secret are required.
func NewService(cfg Config) (*Service, error) {
	if cfg.Enabled {
		if cfg.TokenHash == "" {
			return nil, errors.New("auth: access token hash is required")
		}
		if cfg.JWTSecret == "" {
			return nil, errors.New("auth: jwt secret is required")
		}
	}

	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}

	return &Service{
		enabled:   cfg.Enabled,
		tokenHash: []byte(cfg.TokenHash),
		jwtSecret: []byte(cfg.JWTSecret),
		tokenTTL:  ttl,
	}, nil
}

// Enabled reports whether requests must carry a token.
func (s *Service) Enabled() bool {
	return s.enabled
}

// IssueToken exchanges the shared access token for a signed JWT bound
// to the given user.
func (s *Service) IssueToken(accessToken, userID string) (string, time.Time, error) {
	if !s.enabled {
		return "", time.Time{}, ErrDisabled
	}

	err := bcrypt.CompareHashAndPassword(s.tokenHash, []byte(accessToken))
	if err == bcrypt.ErrMismatchedHashAndPassword {
		return "", time.Time{}, ErrInvalidCredentials
	}
	if err != nil {
		return "", time.Time{}, fmt.Errorf("compare access token: %w", err)
	}

	now := time.Now()
	expires := now.Add(s.tokenTTL)
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "mentat",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expires, nil
}

// ValidateToken validates a JWT and returns its claims.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// HashAccessToken produces a bcrypt hash suitable for the TokenHash
// configuration field.
func HashAccessToken(token string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash access token: %w", err)
	}
	return string(hash), nil
}
