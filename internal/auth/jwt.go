// Package auth issues and validates session tokens and hashes passwords.
//
// ────────────────────────────────────────────────────────────────────
// LEARNING NOTE — what the token carries
// ────────────────────────────────────────────────────────────────────
// A session is an HS256 JWT (HEADER.PAYLOAD.SIGNATURE). The payload holds
// user_id and role plus the standard exp/iat claims. The signature is an
// HMAC over header and payload with the server secret, so the middleware
// can trust user_id and role without a database lookup per request.
//
// The role claim is only a routing hint for RequireRole. Anything that
// moves points re-reads state from the database inside its transaction.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the JWT claims embedded in each token.
type Claims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// TokenDuration is how long a session token stays valid.
const TokenDuration = 7 * 24 * time.Hour

// GenerateToken creates a signed JWT for the given user.
func GenerateToken(userID, role, secret string) (string, error) {
	return GenerateTokenAt(userID, role, secret, time.Now())
}

// GenerateTokenAt is GenerateToken with an explicit issue time; tests use
// it to mint already-expired tokens.
func GenerateTokenAt(userID, role, secret string, issuedAt time.Time) (string, error) {
	claims := Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(TokenDuration)),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ParseToken validates a JWT string and returns the embedded claims.
// It rejects bad signatures, expired tokens and any non-HMAC algorithm.
func ParseToken(tokenStr, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		// Guard against "alg:none" or RS256 tokens being passed to an HS256 server.
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.UserID == "" {
		return nil, errors.New("token has no user_id")
	}
	return claims, nil
}
