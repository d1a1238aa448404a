// Package auth is the relay's authentication collaborator. The core only
// consumes two predicates from it: "is this username/credential pair
// registered" and "does this token carry root authority". Secrets are never
// compared inline in relay logic.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// RoleRoot is the claim value granting super-admin authority.
const RoleRoot = "root"

const bcryptCost = 12

// ErrInvalidToken is returned when a token fails verification.
var ErrInvalidToken = errors.New("invalid token")

// CredentialSource is the persistence view auth needs: stored hashes only.
type CredentialSource interface {
	CreateUser(ctx context.Context, username, passwordHash string) error
	UserHash(ctx context.Context, username string) (string, error)
}

// Claims are the custom JWT claims carried by relay tokens.
type Claims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// Service verifies credentials against the store and issues/validates
// HMAC-signed role tokens.
type Service struct {
	creds  CredentialSource
	secret []byte
	issuer string
	ttl    time.Duration
}

// New returns a Service signing tokens with secret. ttl <= 0 defaults to 24h.
func New(creds CredentialSource, secret string, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Service{
		creds:  creds,
		secret: []byte(secret),
		issuer: "cloak",
		ttl:    ttl,
	}
}

// Register hashes a password and stores the credential row.
func (s *Service) Register(ctx context.Context, username, password string) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return fmt.Errorf("username is required")
	}
	if password == "" {
		return fmt.Errorf("password is required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return s.creds.CreateUser(ctx, username, string(hash))
}

// IsRegistered reports whether the username/credential pair matches a stored
// registration. Store errors read as "not registered".
func (s *Service) IsRegistered(ctx context.Context, username, credential string) bool {
	hash, err := s.creds.UserHash(ctx, username)
	if err != nil {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(credential)) == nil
}

// Issue signs a token binding username to role for the configured TTL.
func (s *Service) Issue(username, role string) (string, error) {
	now := time.Now()
	claims := Claims{
		Username: username,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   username,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Verify parses and validates a token, returning its claims.
func (s *Service) Verify(token string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// IsPrivileged reports whether token carries a valid root role claim.
func (s *Service) IsPrivileged(token string) bool {
	if strings.TrimSpace(token) == "" {
		return false
	}
	claims, err := s.Verify(token)
	if err != nil {
		return false
	}
	return claims.Role == RoleRoot
}
