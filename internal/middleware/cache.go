package middleware

import (
	"github.com/gin-gonic/gin"
)

// NoStore forbids caching of the response. Exam pages carry per-attempt state
// and a freshly shuffled paper.
func NoStore() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", "no-store, max-age=0")
		c.Header("Pragma", "no-cache")
		c.Next()
	}
}
