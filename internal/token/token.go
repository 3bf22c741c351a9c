// Package token mints and verifies the HS256 access tokens the local
// backend accepts. Claims carry a numeric subject, an issued-at time and an
// expiry exactly Validity seconds later.
package token

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrSign is returned when the signing primitive rejects the key or claims.
	ErrSign = errors.New("signing token")
	// ErrSubjectType is returned when a token's sub claim is not a whole number.
	ErrSubjectType = errors.New("sub claim is not a numeric user id")
	// ErrMethod is returned for tokens not signed with HMAC.
	ErrMethod = errors.New("unexpected signing method")
)

// maxSubject is the largest whole number a float64 sub claim holds exactly.
const maxSubject = 1 << 53

// Settings configures a Minter.
type Settings struct {
	Secret   []byte
	Validity time.Duration
	UserID   int64
}

// Claims is the payload minted into every token.
type Claims struct {
	// Subject is the user id. The backend decodes it as a float64.
	Subject   float64
	IssuedAt  int64
	ExpiresAt int64
}

// NewClaims builds claims for userID issued at now.
func NewClaims(userID int64, now time.Time, validity time.Duration) Claims {
	iat := now.Unix()
	return Claims{
		Subject:   float64(userID),
		IssuedAt:  iat,
		ExpiresAt: iat + int64(validity/time.Second),
	}
}

// UserID returns the subject as an integer id.
func (c Claims) UserID() int64 {
	return int64(c.Subject)
}

// Expiry returns the expiration as a time.Time.
func (c Claims) Expiry() time.Time {
	return time.Unix(c.ExpiresAt, 0)
}

// MapClaims returns the wire form of the claims.
func (c Claims) MapClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"sub": c.Subject,
		"exp": c.ExpiresAt,
		"iat": c.IssuedAt,
	}
}

// Token is a signed token and the claims it carries.
type Token struct {
	Raw    string
	Claims Claims
}

// Option configures a Minter.
type Option func(*Minter)

// WithClock overrides the wall clock, for tests and reproducible output.
func WithClock(now func() time.Time) Option {
	return func(m *Minter) {
		m.now = now
	}
}

// Minter signs and verifies tokens with one shared secret.
type Minter struct {
	settings Settings
	now      func() time.Time
}

// New returns a Minter for the given settings.
func New(s Settings, opts ...Option) *Minter {
	m := &Minter{settings: s, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Mint builds claims from the current time and signs them with HS256.
func (m *Minter) Mint() (*Token, error) {
	claims := NewClaims(m.settings.UserID, m.now(), m.settings.Validity)
	raw, err := Sign(claims, m.settings.Secret)
	if err != nil {
		return nil, err
	}
	return &Token{Raw: raw, Claims: claims}, nil
}

// Verify parses raw with the Minter's secret and clock.
func (m *Minter) Verify(raw string) (*Claims, error) {
	return Parse(raw, m.settings.Secret, m.now)
}

// Sign produces the compact serialization of claims. Signing is
// deterministic: equal claims and secret give equal tokens.
func Sign(c Claims, secret []byte) (string, error) {
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, c.MapClaims())
	s, err := t.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrSign, err)
	}
	return s, nil
}

// Parse verifies raw more strictly than the backend: HS256 only, expiry
// required, and a sub claim that is a whole number in (0, 2^53]. now may be
// nil to use the wall clock.
func Parse(raw string, secret []byte, now func() time.Time) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if now != nil {
		opts = append(opts, jwt.WithTimeFunc(now))
	}

	tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("%w: %v", ErrMethod, t.Header["alg"])
		}
		return secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	mc, ok := tok.Claims.(jwt.MapClaims)
	if !ok || !tok.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	sub, ok := mc["sub"].(float64)
	if !ok || sub != math.Trunc(sub) || sub <= 0 || sub > maxSubject {
		return nil, ErrSubjectType
	}

	claims := &Claims{Subject: sub}
	if exp, err := mc.GetExpirationTime(); err == nil && exp != nil {
		claims.ExpiresAt = exp.Unix()
	}
	if iat, err := mc.GetIssuedAt(); err == nil && iat != nil {
		claims.IssuedAt = iat.Unix()
	}
	return claims, nil
}
