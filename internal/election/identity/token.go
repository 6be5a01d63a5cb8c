// Package identity resolves signed session tokens from the hosted sign-in
// provider into authorized users and their capabilities.
package identity

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/openschool/ballotbox/internal/platform/errors"
)

// tokenEnv holds raw env values before post-parse validation.
type tokenEnv struct {
	Issuer   string `env:"BALLOTBOX_SESSION_TOKEN_ISSUER"`
	Audience string `env:"BALLOTBOX_SESSION_TOKEN_AUDIENCE"`
	Secret   string `env:"BALLOTBOX_SESSION_TOKEN_SECRET"`
}

// TokenConfig defines how session tokens are verified.
type TokenConfig struct {
	Issuer   string
	Audience string
	Secret   []byte
	Now      func() time.Time
}

// TokenClaims captures the validated identity carried by a session token.
type TokenClaims struct {
	Subject   string
	Email     string
	Name      string
	ExpiresAt time.Time
	IssuedAt  time.Time
}

// sessionClaims is the internal claims type used for JWT parsing.
type sessionClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
	Name  string `json:"name"`
}

// LoadTokenConfigFromEnv reads session token verification configuration.
func LoadTokenConfigFromEnv(now func() time.Time) (TokenConfig, error) {
	var raw tokenEnv
	if err := env.Parse(&raw); err != nil {
		return TokenConfig{}, fmt.Errorf("parse session token env: %w", err)
	}
	issuer := strings.TrimSpace(raw.Issuer)
	audience := strings.TrimSpace(raw.Audience)
	secret := strings.TrimSpace(raw.Secret)
	if issuer == "" {
		return TokenConfig{}, fmt.Errorf("BALLOTBOX_SESSION_TOKEN_ISSUER is required")
	}
	if audience == "" {
		return TokenConfig{}, fmt.Errorf("BALLOTBOX_SESSION_TOKEN_AUDIENCE is required")
	}
	if secret == "" {
		return TokenConfig{}, fmt.Errorf("BALLOTBOX_SESSION_TOKEN_SECRET is required")
	}
	key, err := decodeSecret(secret)
	if err != nil {
		return TokenConfig{}, fmt.Errorf("decode session token secret: %w", err)
	}
	if now == nil {
		now = time.Now
	}
	return TokenConfig{
		Issuer:   issuer,
		Audience: audience,
		Secret:   key,
		Now:      now,
	}, nil
}

// ValidateSessionToken verifies a bearer token and extracts the subject
// identity.
func ValidateSessionToken(token string, cfg TokenConfig) (TokenClaims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return TokenClaims{}, apperrors.New(apperrors.CodeTokenInvalid, "session token is required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Issuer == "" || cfg.Audience == "" || len(cfg.Secret) == 0 {
		return TokenClaims{}, errors.New("session token verifier is not configured")
	}

	var parsed sessionClaims
	_, err := jwt.ParseWithClaims(token, &parsed, func(token *jwt.Token) (any, error) {
		return cfg.Secret, nil
	},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return TokenClaims{}, mapJWTError(err)
	}

	if parsed.Issuer == "" || parsed.Issuer != cfg.Issuer {
		return TokenClaims{}, apperrors.WithMetadata(
			apperrors.CodeTokenInvalid,
			"session token issuer mismatch",
			map[string]string{"Field": "issuer"},
		)
	}
	if !audienceContains(parsed.Audience, cfg.Audience) {
		return TokenClaims{}, apperrors.WithMetadata(
			apperrors.CodeTokenInvalid,
			"session token audience mismatch",
			map[string]string{"Field": "audience"},
		)
	}
	if strings.TrimSpace(parsed.Subject) == "" {
		return TokenClaims{}, apperrors.New(apperrors.CodeTokenInvalid, "session token sub is required")
	}
	if strings.TrimSpace(parsed.Email) == "" {
		return TokenClaims{}, apperrors.New(apperrors.CodeTokenInvalid, "session token email is required")
	}
	if parsed.ExpiresAt == nil {
		return TokenClaims{}, apperrors.New(apperrors.CodeTokenInvalid, "session token exp is required")
	}

	now := cfg.Now().UTC()
	exp := parsed.ExpiresAt.Time.UTC()
	if !exp.After(now) {
		return TokenClaims{}, apperrors.New(apperrors.CodeTokenInvalid, "session token is expired")
	}
	if parsed.NotBefore != nil && now.Before(parsed.NotBefore.Time.UTC()) {
		return TokenClaims{}, apperrors.New(apperrors.CodeTokenInvalid, "session token not active yet")
	}

	claims := TokenClaims{
		Subject:   parsed.Subject,
		Email:     strings.ToLower(strings.TrimSpace(parsed.Email)),
		Name:      strings.TrimSpace(parsed.Name),
		ExpiresAt: exp,
	}
	if parsed.IssuedAt != nil {
		claims.IssuedAt = parsed.IssuedAt.Time.UTC()
	}
	return claims, nil
}

// mapJWTError translates jwt library errors to application errors.
func mapJWTError(err error) error {
	if errors.Is(err, jwt.ErrTokenSignatureInvalid) {
		return apperrors.New(apperrors.CodeTokenInvalid, "session token signature is invalid")
	}
	if errors.Is(err, jwt.ErrTokenUnverifiable) {
		return apperrors.New(apperrors.CodeTokenInvalid, "session token alg is invalid")
	}
	return apperrors.New(apperrors.CodeTokenInvalid, "session token is invalid")
}

// audienceContains reports whether the audience list contains the given value.
func audienceContains(aud jwt.ClaimStrings, value string) bool {
	for _, item := range aud {
		if item == value {
			return true
		}
	}
	return false
}

func decodeSecret(value string) ([]byte, error) {
	if value == "" {
		return nil, errors.New("empty secret value")
	}
	decoded, err := base64.RawStdEncoding.DecodeString(value)
	if err == nil {
		return decoded, nil
	}
	decoded, err = base64.StdEncoding.DecodeString(value)
	if err == nil {
		return decoded, nil
	}
	return []byte(value), nil
}
