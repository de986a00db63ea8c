package middleware

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// SetupCORS allows any origin to read the holder endpoints. The API is
// consumed by public dashboard frontends, so reads stay open; the only
// mutating route is key-protected.
// FIXME: In production, we should restrict this.
func SetupCORS() gin.HandlerFunc {
	config := cors.DefaultConfig()
	config.AllowAllOrigins = true
	config.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	config.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization"}
	config.MaxAge = time.Hour
	return cors.New(config)
}
