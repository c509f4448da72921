// Package middleware provides HTTP middleware components.
package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"costledger/internal/core/apperror"
	"costledger/pkg/logger"
)

// Recovery turns a panic into a 500 response. The stack is logged with the
// route and the document parameters; the client only sees the request id.
// An idempotency key held by the request is released so it can be resent.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
				panic(rec)
			}

			ctx := c.Request.Context()
			logger.Error(ctx, "panic recovered",
				"panic", rec,
				"method", c.Request.Method,
				"route", c.FullPath(),
				"document_type", c.Param("type"),
				"document_id", c.Param("id"),
				"action", c.Param("action"),
				"stack", string(debug.Stack()),
			)

			requestID := c.GetString("request_id")
			_ = c.Error(apperror.NewInternal(fmt.Errorf("panic: %v", rec)).
				WithDetail("request_id", requestID))

			if key, store, ok := idempotencyOf(c); ok {
				if err := store.ReleaseKey(ctx, key); err != nil {
					logger.Warn(ctx, "release idempotency key after panic", "key", key, "error", err)
				}
			}

			if c.Writer.Written() {
				c.Abort()
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"code":    apperror.CodeInternal,
				"message": "Internal server error",
				"details": map[string]any{"request_id": requestID},
			})
		}()
		c.Next()
	}
}
