package middleware

import (
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/cbt-backend/internal/access"
	"github.com/stemsi/cbt-backend/internal/response"
)

// LoginPath is where anonymous browser callers are sent.
const LoginPath = "/login"

// RequireCapability guards an entry point with one access check: anonymous
// callers are sent to the login page, authenticated callers lacking the
// capability are refused.
func RequireCapability(checker *access.Checker, capability access.Capability) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := GetActor(c)

		switch checker.Check(actor.Role, capability) {
		case access.Allow:
			c.Next()
		case access.RedirectLogin:
			abortLogin(c)
		default:
			response.AbortFail(c, http.StatusForbidden, response.ErrPermissionDenied)
		}
	}
}

func abortLogin(c *gin.Context) {
	if response.IsFormRequest(c) {
		target := LoginPath + "?next=" + url.QueryEscape(c.Request.URL.RequestURI())
		response.AbortRedirect(c, target, "login_required")
		return
	}

	code := response.ErrTokenRequired
	if c.GetBool(ContextKeyTokenRejected) {
		code = response.ErrTokenInvalid
	}
	response.AbortFail(c, http.StatusUnauthorized, code)
}
