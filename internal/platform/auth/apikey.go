package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
)

// KeyDigest hashes a presented API key for storage and lookup. Looking keys
// up by digest instead of comparing raw keys row-by-row avoids the timing
// side channel of direct equality scans.
func KeyDigest(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// NewKey generates a random API key. Only its digest is ever persisted.
func NewKey() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return hex.EncodeToString(raw), nil
}

// UserStore resolves a user by the digest of their API key.
type UserStore interface {
	UserByKeyDigest(ctx context.Context, digest string) (User, bool, error)
}

// Authenticator resolves caller credentials. API keys are the primary path;
// a JWT verifier, when configured, accepts signed service tokens carrying
// sub and role claims.
type Authenticator struct {
	Users UserStore
	JWT   *JWTVerifier
}

// Authenticate resolves exactly one of apiKey or bearer. A missing
// credential, an unknown key, and an unverifiable token are all
// AuthenticationErrors.
func (a *Authenticator) Authenticate(ctx context.Context, apiKey, bearer string) (User, error) {
	switch {
	case apiKey != "":
		u, ok, err := a.Users.UserByKeyDigest(ctx, KeyDigest(apiKey))
		if err != nil {
			return User{}, err
		}
		if !ok {
			return User{}, &AuthenticationError{Reason: "invalid API key"}
		}
		return u, nil
	case bearer != "":
		if a.JWT == nil {
			return User{}, &AuthenticationError{Reason: "bearer tokens not accepted"}
		}
		return a.JWT.ParseUser(bearer)
	default:
		return User{}, &AuthenticationError{Reason: "credential required"}
	}
}
