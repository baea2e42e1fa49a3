package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWTVerifier accepts HS256 service tokens as an alternative to API keys.
// Tokens carry the caller identity in sub and the role in a role claim.
type JWTVerifier struct {
	secret []byte
}

func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret)}
}

func (v *JWTVerifier) ParseUser(tokenString string) (User, error) {
	claims := jwt.MapClaims{}
	tok, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, &AuthenticationError{Reason: "unexpected signing method"}
		}
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithLeeway(5*time.Second))
	if err != nil || !tok.Valid {
		return User{}, &AuthenticationError{Reason: "invalid token"}
	}

	sub, _ := claims["sub"].(string)
	roleClaim, _ := claims["role"].(string)
	if sub == "" || roleClaim == "" {
		return User{}, &AuthenticationError{Reason: "missing identity claims"}
	}
	role, err := ParseRole(roleClaim)
	if err != nil {
		return User{}, &AuthenticationError{Reason: "unknown role claim"}
	}
	return User{Email: sub, Role: role}, nil
}

// Sign mints a service token. Used by provisioning tooling and tests.
func (v *JWTVerifier) Sign(email string, role Role, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  email,
		"role": string(role),
		"iat":  now.Unix(),
		"exp":  now.Add(ttl).Unix(),
	})
	return tok.SignedString(v.secret)
}
