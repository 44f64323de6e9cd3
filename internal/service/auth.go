package service

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/msomdec/tagbatch/internal/domain"
)

// MinSecretLength is the shortest accepted HMAC secret.
const MinSecretLength = 32

// OpsAuth verifies bearer tokens for the destructive ops routes.
type OpsAuth struct {
	secret []byte
}

// NewOpsAuth creates an OpsAuth for the given HMAC secret.
func NewOpsAuth(secret string) (*OpsAuth, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("%w: ops token secret must be at least %d characters", domain.ErrInvalidInput, MinSecretLength)
	}
	return &OpsAuth{secret: []byte(secret)}, nil
}

// IssueToken signs a token for subject valid for ttl.
func (a *OpsAuth) IssueToken(subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

// ValidateToken parses and validates a token and returns its subject.
func (a *OpsAuth) ValidateToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return "", domain.ErrUnauthorized
	}

	sub, err := token.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", domain.ErrUnauthorized
	}
	return sub, nil
}
