package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"costledger/internal/core/apperror"
	"costledger/internal/infrastructure/http/v1/handlers"
	"costledger/internal/infrastructure/storage/postgres"
	"costledger/pkg/logger"
)

// ErrorHandler middleware transforms errors into consistent JSON responses.
// Hides internal errors from clients while logging full details.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		err := c.Errors.Last().Err

		// Handler already wrote a response.
		if c.Writer.Written() {
			return
		}

		status := http.StatusInternalServerError
		var body gin.H

		if appErr, ok := apperror.AsAppError(err); ok {
			if appErr.Err != nil {
				logger.Error(c.Request.Context(), "request error",
					"code", appErr.Code,
					"cause", appErr.Err,
				)
			}
			status = appErr.HTTPStatus
			body = gin.H{
				"code":    appErr.Code,
				"message": appErr.Message,
				"details": appErr.Details,
			}
		} else {
			logger.Error(c.Request.Context(), "unhandled error", "error", err)
			body = gin.H{
				"code":    apperror.CodeInternal,
				"message": "Internal server error",
				"details": map[string]any{"request_id": c.GetString("request_id")},
			}
		}

		settleIdempotency(c, err, status, body)
		c.JSON(status, body)
	}
}

// settleIdempotency records the error response for replay. Retryable errors
// release the key so the client may resend with the same key.
func settleIdempotency(c *gin.Context, err error, status int, body gin.H) {
	key, s, ok := idempotencyOf(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	if apperror.IsRetryable(err) {
		err = s.ReleaseKey(ctx, key)
	} else {
		err = s.FailKey(ctx, key, status, "application/json", body)
	}
	if err != nil {
		logger.Warn(ctx, "settle idempotency key", "key", key, "error", err)
	}
}

// idempotencyOf returns the key acquired for this request and its store.
func idempotencyOf(c *gin.Context) (string, *postgres.IdempotencyStore, bool) {
	key := c.GetString(handlers.CtxIdempotencyKey)
	if key == "" {
		return "", nil, false
	}
	v, ok := c.Get(handlers.CtxIdempotencyStore)
	if !ok {
		return "", nil, false
	}
	s, ok := v.(*postgres.IdempotencyStore)
	if !ok || s == nil {
		return "", nil, false
	}
	return key, s, true
}
