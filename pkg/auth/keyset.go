package auth

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// MinSecretLength is the shortest shared secret NewHMACKeySet accepts.
const MinSecretLength = 32

// KeySet signs operator tokens and resolves verification keys by kid.
type KeySet interface {
	// Sign creates a signed token with the current active key.
	Sign(ctx context.Context, claims jwt.Claims) (string, error)
	// KeyFunc returns the key for verification based on the token header.
	KeyFunc() jwt.Keyfunc
}

// HMACKeySet signs with a single shared secret (HS256). It is what a
// deployment configures through auth_secret.
type HMACKeySet struct {
	kid    string
	secret []byte
}

// NewHMACKeySet wraps secret. Secrets shorter than MinSecretLength are
// rejected.
func NewHMACKeySet(kid string, secret []byte) (*HMACKeySet, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("auth secret must be at least %d bytes, got %d", MinSecretLength, len(secret))
	}
	if kid == "" {
		kid = "runway"
	}
	return &HMACKeySet{kid: kid, secret: append([]byte(nil), secret...)}, nil
}

func (ks *HMACKeySet) Sign(_ context.Context, claims jwt.Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	token.Header["kid"] = ks.kid
	return token.SignedString(ks.secret)
}

func (ks *HMACKeySet) KeyFunc() jwt.Keyfunc {
	return func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		if kid, _ := token.Header["kid"].(string); kid != ks.kid {
			return nil, fmt.Errorf("key not found: %s", kid)
		}
		return ks.secret, nil
	}
}

// Ed25519KeySet holds rotating Ed25519 keys in memory. Tokens signed with a
// retired key keep verifying until the key is evicted.
type Ed25519KeySet struct {
	mu         sync.RWMutex
	currentKID string
	keys       map[string]ed25519.PrivateKey
	order      []string
	maxKeys    int
}

// NewEd25519KeySet creates a key set with one active key.
func NewEd25519KeySet() (*Ed25519KeySet, error) {
	ks := &Ed25519KeySet{
		keys:    make(map[string]ed25519.PrivateKey),
		maxKeys: 4,
	}
	if err := ks.Rotate(); err != nil {
		return nil, err
	}
	return ks, nil
}

// Rotate makes a fresh key current and evicts the oldest beyond the limit.
func (ks *Ed25519KeySet) Rotate() error {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return fmt.Errorf("failed to generate key: %w", err)
	}

	ks.mu.Lock()
	defer ks.mu.Unlock()
	kid := fmt.Sprintf("key-%d-%d", time.Now().UnixNano(), len(ks.order))
	ks.keys[kid] = priv
	ks.order = append(ks.order, kid)
	ks.currentKID = kid
	for len(ks.order) > ks.maxKeys {
		delete(ks.keys, ks.order[0])
		ks.order = ks.order[1:]
	}
	return nil
}

func (ks *Ed25519KeySet) Sign(_ context.Context, claims jwt.Claims) (string, error) {
	ks.mu.RLock()
	key := ks.keys[ks.currentKID]
	kid := ks.currentKID
	ks.mu.RUnlock()

	if key == nil {
		return "", errors.New("no active key")
	}

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	token.Header["kid"] = kid
	return token.SignedString(key)
}

func (ks *Ed25519KeySet) KeyFunc() jwt.Keyfunc {
	return func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		kid, ok := token.Header["kid"].(string)
		if !ok {
			return nil, errors.New("missing kid in header")
		}

		ks.mu.RLock()
		defer ks.mu.RUnlock()
		key, exists := ks.keys[kid]
		if !exists {
			return nil, fmt.Errorf("key not found: %s", kid)
		}
		return key.Public(), nil
	}
}
