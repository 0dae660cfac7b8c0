// Package security provides JWT token utilities
package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// AccountClaim is the JWT claim carrying the owning account id.
const AccountClaim = "accountId"

// ValidateJWT validates a JWT token and returns the claims
func ValidateJWT(tokenString, jwtSecret string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
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

// ValidateAccountToken validates a bearer token and returns the account id it is scoped to.
func ValidateAccountToken(tokenString, jwtSecret string) (string, error) {
	if jwtSecret == "" {
		return "", errors.New("jwt secret not configured")
	}
	claims, err := ValidateJWT(tokenString, jwtSecret)
	if err != nil {
		return "", err
	}
	accountID, ok := claims[AccountClaim].(string)
	if !ok || accountID == "" {
		return "", errors.New("token has no account claim")
	}
	return accountID, nil
}

// GenerateAccountToken signs a token scoped to accountID.
func GenerateAccountToken(accountID, jwtSecret string, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := jwt.MapClaims{
		AccountClaim: accountID,
		"iat":        now.Unix(),
		"exp":        now.Add(ttl).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(jwtSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign account token: %w", err)
	}
	return signed, nil
}
