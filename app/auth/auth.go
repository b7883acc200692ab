// Package auth provides the credential service: bcrypt password hashing and
// verification, and signed bearer tokens carrying the user identity.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidToken returned for expired, malformed or wrongly signed tokens
var ErrInvalidToken = errors.New("invalid token")

// Claims is the token payload, user id and email plus standard expiry
type Claims struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Service issues and verifies tokens and hashes passwords
type Service struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time // for tests
}

// NewService creates a credential service with the given signing secret and
// token lifetime, ttl defaults to 7 days if not set
func NewService(secret string, ttl time.Duration) *Service {
	if ttl == 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &Service{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// HashPassword returns a bcrypt hash of the password
func (s *Service) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether the password matches the bcrypt hash
func (s *Service) CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// MakeToken issues a signed token with the user identity and configured expiry
func (s *Service) MakeToken(id, email string) (string, error) {
	now := s.now()
	claims := Claims{
		ID:    id,
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return token, nil
}

// ParseToken verifies the token signature and expiry and returns the claims.
// All failures are reported as ErrInvalidToken without detail to the caller,
// specifics are for logs only.
func (s *Service) ParseToken(tokenStr string) (Claims, error) {
	claims := Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return Claims{}, ErrInvalidToken
	}
	return claims, nil
}
