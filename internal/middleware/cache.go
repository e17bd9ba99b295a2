package middleware

import "github.com/gin-gonic/gin"

// NoStore marks responses as uncacheable. Session state changes every
// second, so intermediaries must never serve a stale copy.
func NoStore() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", "no-store")
		c.Next()
	}
}
