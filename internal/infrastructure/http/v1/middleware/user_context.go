package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	appctx "costledger/internal/core/context"
)

// HeaderUserID carries the acting user, set by the authenticating gateway.
const HeaderUserID = "X-User-ID"

// UserContext puts the acting user into the request context so transitions
// and audit rows can record who triggered them. Requests without the header
// run as an anonymous user.
func UserContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := strings.TrimSpace(c.GetHeader(HeaderUserID))
		ctx := appctx.WithUser(c.Request.Context(), &appctx.UserContext{
			UserID: userID,
			Source: "http",
		})
		c.Request = c.Request.WithContext(ctx)
		c.Set("user_id", userID)
		c.Next()
	}
}
