// Package auth validates the access tokens that identify referrers.
// Tokens are HS256 JWTs whose subject is the referrer ID.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenTypeAccess is the only token type the API accepts.
const TokenTypeAccess = "access"

// Issuer is set on issued tokens and required on validated ones.
const Issuer = "refmarket"

// AccessTokenExpiry is the lifetime of issued access tokens.
const AccessTokenExpiry = 15 * time.Minute

// DefaultLeeway is the clock skew tolerated during validation.
const DefaultLeeway = 30 * time.Second

var (
	// ErrInvalidToken is returned when token validation fails.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken is returned when the token has expired.
	ErrExpiredToken = errors.New("token has expired")
	// ErrEmptyReferrerID is returned when issuing a token without a subject.
	ErrEmptyReferrerID = errors.New("referrer ID cannot be empty")
)

// Claims are the JWT claims of an access token.
type Claims struct {
	jwt.RegisteredClaims
	Type string `json:"typ"`
}

// ReferrerID returns the token subject.
func (c *Claims) ReferrerID() string {
	return c.Subject
}

// JWTService signs and validates access tokens.
// Tokens are signed with the current secret and validated against the current
// secret, then the previous one, so a secret can be rotated without downtime.
type JWTService struct {
	currentSecret  []byte
	previousSecret []byte
	leeway         time.Duration
	now            func() time.Time
}

// Option configures a JWTService.
type Option func(*JWTService)

// WithLeeway overrides DefaultLeeway.
func WithLeeway(leeway time.Duration) Option {
	return func(s *JWTService) {
		s.leeway = leeway
	}
}

// NewJWTService creates a JWTService. previousSecret may be empty when no
// rotation is in progress.
func NewJWTService(currentSecret, previousSecret string, opts ...Option) *JWTService {
	s := &JWTService{
		currentSecret: []byte(currentSecret),
		leeway:        DefaultLeeway,
		now:           time.Now,
	}
	if previousSecret != "" {
		s.previousSecret = []byte(previousSecret)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GenerateAccessToken issues an access token for the referrer.
func (s *JWTService) GenerateAccessToken(referrerID string) (string, error) {
	if referrerID == "" {
		return "", ErrEmptyReferrerID
	}

	now := s.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			Subject:   referrerID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(AccessTokenExpiry)),
		},
		Type: TokenTypeAccess,
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.currentSecret)
}

// ValidateAccessToken parses and validates an access token.
// It returns ErrExpiredToken for expired tokens and ErrInvalidToken for
// anything else that fails, including tokens of another type or without a subject.
func (s *JWTService) ValidateAccessToken(tokenString string) (*Claims, error) {
	claims, err := s.parse(tokenString, s.currentSecret)
	if err != nil && s.previousSecret != nil && !errors.Is(err, jwt.ErrTokenExpired) {
		claims, err = s.parse(tokenString, s.previousSecret)
	}
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	if claims.Type != TokenTypeAccess || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (s *JWTService) parse(tokenString string, secret []byte) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithLeeway(s.leeway),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
