package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/element-scan/holders-indexer/internal/logger"
)

// AuthConfig holds authentication configuration
type AuthConfig struct {
	APIKeys []string
}

// Auth returns a gin middleware validating API key credentials from the
// Authorization header ("APIKey <key>"). Routes behind it are write
// operations; reads stay open.
func Auth(cfg AuthConfig) gin.HandlerFunc {
	apiKeys := make(map[string]bool, len(cfg.APIKeys))
	for _, key := range cfg.APIKeys {
		if key != "" {
			apiKeys[key] = true
		}
	}

	return func(c *gin.Context) {
		err := authenticate(c.GetHeader("Authorization"), apiKeys)
		if err != nil {
			logger.Warn("Authentication failed",
				zap.Error(err),
				zap.String("path", c.Request.URL.Path),
				zap.String("client_ip", c.ClientIP()),
			)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{
					"code":    "unauthorized",
					"message": "Authentication failed",
				},
			})
			return
		}
		c.Next()
	}
}

func authenticate(authHeader string, apiKeys map[string]bool) error {
	if len(apiKeys) == 0 {
		return errors.New("no API keys configured")
	}
	if authHeader == "" {
		return errors.New("missing Authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "apikey") {
		return errors.New("invalid Authorization header format")
	}
	if !apiKeys[parts[1]] {
		return errors.New("invalid API key")
	}
	return nil
}
