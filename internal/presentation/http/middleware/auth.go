// Package middleware provides HTTP middleware for the presentation layer.
package middleware

import (
	"net/http"
	"strings"

	"github.com/AtRiskMedia/launchtrack-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/launchtrack-go/internal/infrastructure/security"
	"github.com/gin-gonic/gin"
)

const accountIDKey = "accountId"

// AccountAuthMiddleware validates the bearer token and scopes the request to its account.
func AccountAuthMiddleware(jwtSecret string, logger *logging.ChanneledLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}

		accountID, err := security.ValidateAccountToken(token, jwtSecret)
		if err != nil {
			logger.Auth().Warn("Rejected account token", "path", c.Request.URL.Path, "error", err.Error())
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			return
		}

		c.Set(accountIDKey, accountID)
		c.Next()
	}
}

// GetAccountID returns the account resolved by AccountAuthMiddleware.
func GetAccountID(c *gin.Context) (string, bool) {
	v, exists := c.Get(accountIDKey)
	if !exists {
		return "", false
	}
	accountID, ok := v.(string)
	return accountID, ok && accountID != ""
}

func bearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}
