package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Issuer is the iss claim of every runway token.
const Issuer = "aspire-runway"

var (
	ErrMissingSubject = errors.New("token subject is required")
	ErrMissingSuite   = errors.New("token suite binding is required")
)

// Claims are the JWT claims the control API expects.
type Claims struct {
	jwt.RegisteredClaims
	SuiteID  string   `json:"suite_id"`
	OfficeID string   `json:"office_id,omitempty"`
	Roles    []string `json:"roles,omitempty"`
}

// Validator checks tokens against a key set.
type Validator struct {
	keys KeySet
}

// NewValidator returns nil when ks is nil so that callers fail closed.
func NewValidator(ks KeySet) *Validator {
	if ks == nil {
		return nil
	}
	return &Validator{keys: ks}
}

// Validate parses tokenStr and returns the principal it names.
func (v *Validator) Validate(tokenStr string) (*Principal, error) {
	if v == nil || v.keys == nil {
		return nil, errors.New("validator uninitialized")
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, v.keys.KeyFunc(),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("token validation failed: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.Subject == "" {
		return nil, ErrMissingSubject
	}
	if claims.SuiteID == "" {
		return nil, ErrMissingSuite
	}
	return &Principal{
		ID:       claims.Subject,
		SuiteID:  claims.SuiteID,
		OfficeID: claims.OfficeID,
		Roles:    claims.Roles,
	}, nil
}

// Issue signs a token for p that expires after ttl.
func Issue(ctx context.Context, ks KeySet, p Principal, ttl time.Duration, now time.Time) (string, error) {
	if p.ID == "" {
		return "", ErrMissingSubject
	}
	if p.SuiteID == "" {
		return "", ErrMissingSuite
	}
	if ttl <= 0 {
		return "", fmt.Errorf("token ttl must be positive, got %s", ttl)
	}
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			Subject:   p.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		SuiteID:  p.SuiteID,
		OfficeID: p.OfficeID,
		Roles:    p.Roles,
	}
	return ks.Sign(ctx, claims)
}
