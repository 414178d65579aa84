// Package security provides JWT token utilities
package security

import (
	"errors"

	"github.com/golang-jwt/jwt/v4"
)

// ValidateJWT validates a JWT token and returns the claims
func ValidateJWT(tokenString, jwtSecret string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		return []byte(jwtSecret), nil
	})
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, errors.New("invalid token")
}

// OwnerFromClaims extracts the owner account id carried by a dashboard
// token. Token issuance belongs to the external auth service; this side
// only ever verifies.
func OwnerFromClaims(claims jwt.MapClaims) (string, bool) {
	if ownerID, ok := claims["ownerId"].(string); ok && ownerID != "" {
		return ownerID, true
	}
	if sub, ok := claims["sub"].(string); ok && sub != "" {
		return sub, true
	}
	return "", false
}
