package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for bearer tokens that fail verification.
var ErrInvalidToken = errors.New("invalid token")

// Service derives the opaque caller identity used to scope user data.
// Verified bearer tokens win; otherwise a device fingerprint is used.
type Service struct {
	secret          []byte
	adminToken      string
	headerName      string
	adminHeaderName string
}

// NewService constructs an identity service. An empty secret disables
// bearer tokens; an empty adminToken disables admin routes.
func NewService(jwtSecret, adminToken string) *Service {
	var secret []byte
	if jwtSecret != "" {
		secret = []byte(jwtSecret)
	}
	return &Service{
		secret:          secret,
		adminToken:      adminToken,
		headerName:      "Authorization",
		adminHeaderName: "X-Admin-Token",
	}
}

// TokensEnabled reports whether bearer tokens are verified.
func (s *Service) TokensEnabled() bool {
	return len(s.secret) > 0
}

// IssueToken signs an HS256 token whose subject becomes the user id.
func (s *Service) IssueToken(subject string, ttl time.Duration) (string, error) {
	if !s.TokensEnabled() {
		return "", errors.New("token signing not configured")
	}
	if strings.TrimSpace(subject) == "" {
		return "", errors.New("subject is required")
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// ValidateToken verifies the token and returns its subject.
func (s *Service) ValidateToken(token string) (string, error) {
	if !s.TokensEnabled() {
		return "", ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

// Fingerprint derives a stable, non-reversible identity from request
// metadata. It is not a security boundary.
func Fingerprint(userAgent, clientAddr string) string {
	sum := sha256.Sum256([]byte(userAgent + "-" + clientAddr))
	return hex.EncodeToString(sum[:])[:16]
}
