package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// RoleHost is the only role allowed to drive evaluation sessions
const RoleHost = "host"

var ErrInvalidRole = errors.New("token role is not allowed")

// JWTClaims represents the claims in a host token
type JWTClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Signer issues and validates host tokens with a shared HMAC secret
type Signer struct {
	secret []byte
	now    func() time.Time
}

// NewSigner creates a signer; the secret is usually HOST_JWT_SECRET
func NewSigner(secret string) (*Signer, error) {
	if secret == "" {
		return nil, errors.New("JWT secret cannot be empty")
	}
	return &Signer{secret: []byte(secret), now: time.Now}, nil
}

// GenerateHostToken generates a token for a host that expires after ttl
func (s *Signer) GenerateHostToken(subject string, ttl time.Duration) (string, error) {
	if subject == "" {
		return "", errors.New("subject cannot be empty")
	}
	now := s.now()
	claims := &JWTClaims{
		Role: RoleHost,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// ValidateToken validates a token and returns the claims of a host
func (s *Signer) ValidateToken(tokenString string) (*JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid {
		return nil, jwt.ErrInvalidKey
	}
	if claims.Role != RoleHost {
		return nil, ErrInvalidRole
	}
	return claims, nil
}
