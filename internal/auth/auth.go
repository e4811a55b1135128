package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidToken = errors.New("invalid or expired token")
	ErrMissingScope = errors.New("token lacks required scope")
)

// Operator scopes
const (
	ScopeRatingsRecompute = "ratings:recompute"
	ScopeStatsRecompute   = "stats:recompute"
	ScopeMatchesVoid      = "matches:void"
	ScopeJobsRead         = "jobs:read"
)

// KnownScopes lists every scope an operator token may carry
var KnownScopes = []string{ScopeRatingsRecompute, ScopeStatsRecompute, ScopeMatchesVoid, ScopeJobsRead}

const issuer = "foospulse"

// Claims represents the JWT claims for a user or an operator
type Claims struct {
	UserID   string   `json:"user_id,omitempty"`
	Username string   `json:"username,omitempty"`
	IsAdmin  bool     `json:"is_admin,omitempty"`
	Scopes   []string `json:"scope,omitempty"`
	jwt.RegisteredClaims
}

// HasScope reports whether the token grants scope
func (c *Claims) HasScope(scope string) bool {
	return slices.Contains(c.Scopes, scope)
}

// Service handles authentication operations
type Service struct {
	jwtSecret     []byte
	tokenDuration time.Duration
}

// NewService creates a new auth service
func NewService(jwtSecret string, tokenDuration time.Duration) *Service {
	if tokenDuration == 0 {
		tokenDuration = 24 * time.Hour
	}
	return &Service{
		jwtSecret:     []byte(jwtSecret),
		tokenDuration: tokenDuration,
	}
}

// HashSecret creates a bcrypt hash of a capability secret
func HashSecret(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	return string(hash), err
}

// CheckSecret compares a secret against a hash
func CheckSecret(secret, hash string) bool {
	if secret == "" || hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}

// RandomToken returns a URL-safe random string of length characters
func RandomToken(length int) (string, error) {
	buf := make([]byte, (length*3+3)/4)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	token := base64.RawURLEncoding.EncodeToString(buf)
	return token[:length], nil
}

// GenerateToken creates a JWT for an authenticated user
func (s *Service) GenerateToken(userID, username string, isAdmin bool) (string, error) {
	claims := Claims{
		UserID:   userID,
		Username: username,
		IsAdmin:  isAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.tokenDuration)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

// GenerateOperatorToken creates a short-lived service token limited to scopes
func (s *Service) GenerateOperatorToken(subject string, scopes []string, duration time.Duration) (string, error) {
	if duration == 0 {
		duration = time.Hour
	}
	claims := Claims{
		Scopes: scopes,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(duration)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

// ValidateToken validates a JWT and returns the claims
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return s.jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(issuer))

	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// RequireScope validates a token and checks it grants scope
func (s *Service) RequireScope(tokenString, scope string) (*Claims, error) {
	claims, err := s.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	if !claims.HasScope(scope) {
		return nil, ErrMissingScope
	}
	return claims, nil
}
