package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/cbt-backend/internal/model"
	"github.com/stemsi/cbt-backend/internal/service"
)

const (
	// ContextKeyClaims is the Gin context key for JWT claims.
	ContextKeyClaims = "claims"

	// TokenCookie carries the JWT for browser form flows.
	TokenCookie = "cbt_token"
)

// Authenticate attaches the caller's claims to the context when a valid token
// is present. Requests without a token, or with an invalid one, continue as
// anonymous; entry points decide what anonymous callers may do.
func Authenticate(authService *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := extractToken(c)
		if tokenStr == "" {
			c.Next()
			return
		}

		claims, err := authService.ValidateToken(tokenStr)
		if err != nil {
			c.Set(ContextKeyTokenRejected, true)
			c.Next()
			return
		}

		c.Set(ContextKeyClaims, claims)
		c.Next()
	}
}

// ContextKeyTokenRejected is set when a token was supplied but failed validation.
const ContextKeyTokenRejected = "token_rejected"

// GetClaims retrieves the JWT claims from the Gin context.
func GetClaims(c *gin.Context) *service.Claims {
	val, exists := c.Get(ContextKeyClaims)
	if !exists {
		return nil
	}
	claims, ok := val.(*service.Claims)
	if !ok {
		return nil
	}
	return claims
}

// GetActor returns the caller as a service actor. Anonymous callers get the
// zero actor with the anonymous role.
func GetActor(c *gin.Context) service.Actor {
	claims := GetClaims(c)
	if claims == nil {
		return service.Actor{Role: model.RoleAnonymous}
	}
	return claims.Actor()
}

func extractToken(c *gin.Context) string {
	if authHeader := c.GetHeader("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return parts[1]
		}
	}

	// WebSocket and EventSource clients cannot send headers.
	if tokenStr := c.Query("token"); tokenStr != "" {
		return tokenStr
	}

	if cookie, err := c.Cookie(TokenCookie); err == nil {
		return cookie
	}
	return ""
}
