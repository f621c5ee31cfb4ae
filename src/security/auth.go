// src/security/auth.go
//
// The login surface is deliberately thin: the data engine only needs a gate
// that produces a validated session token. A local passcode (bcrypt hash held
// in config) is exchanged for a signed JWT the GUI presents on every call.
package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidPasscode = errors.New("invalid passcode")
	ErrInvalidToken    = errors.New("invalid session token")
)

// AuthService issues and validates session tokens.
type AuthService struct {
	secret        []byte
	passcodeHash  string
	sessionExpiry time.Duration
}

func NewAuthService(jwtSecret, passcodeHash string, sessionExpiry time.Duration) *AuthService {
	return &AuthService{
		secret:        []byte(jwtSecret),
		passcodeHash:  passcodeHash,
		sessionExpiry: sessionExpiry,
	}
}

// HashPasscode produces the bcrypt hash to store in configuration.
func HashPasscode(passcode string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(passcode), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// Login checks the passcode and returns a session token. When no passcode is
// configured the gate is open and a token is issued directly.
func (a *AuthService) Login(passcode string) (string, error) {
	if a.passcodeHash != "" {
		if err := bcrypt.CompareHashAndPassword([]byte(a.passcodeHash), []byte(passcode)); err != nil {
			return "", ErrInvalidPasscode
		}
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   "local-session",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(a.sessionExpiry)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("signing session token: %w", err)
	}
	return signed, nil
}

// ValidateToken verifies signature and expiry of a session token.
func (a *AuthService) ValidateToken(tokenString string) error {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil || !token.Valid {
		return ErrInvalidToken
	}
	return nil
}
