package middleware

import (
	"errors"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/storefront/server/internal/shared/logger"
	"github.com/storefront/server/internal/shared/response"
)

// Recovery returns a middleware that turns handler panics into a 500 with the
// standard error body. Open transactions are rolled back by the tx runner as
// the panic unwinds through it. If log is nil, a default logger is used.
func Recovery(log *logger.Logger) gin.HandlerFunc {
	if log == nil {
		log = logger.New(nil)
	}

	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			// The client went away; net/http handles this sentinel itself.
			if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
				panic(rec)
			}

			log.Error("panic recovered",
				"panic", rec,
				"method", c.Request.Method,
				"route", c.FullPath(),
				"request_id", GetRequestID(c),
				"stack", string(debug.Stack()),
			)

			if c.Writer.Written() {
				c.Abort()
				return
			}
			response.Abort(c, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		}()

		c.Next()
	}
}
