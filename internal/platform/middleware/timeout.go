package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// ErrRequestTimeout is the cancellation cause of a request that ran past its
// deadline.
var ErrRequestTimeout = errors.New("request deadline exceeded")

// RequestTimeout bounds every request context with timeout. Handlers are
// expected to honour ctx; once one returns after the deadline has fired and
// nothing has been written yet, the client gets a 504. Paths listed in skip
// run without a deadline and a non-positive timeout disables the middleware.
func RequestTimeout(timeout time.Duration, skip ...string) echo.MiddlewareFunc {
	skipped := make(map[string]struct{}, len(skip))
	for _, p := range skip {
		skipped[p] = struct{}{}
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if timeout <= 0 {
				return next(c)
			}
			if _, ok := skipped[c.Request().URL.Path]; ok {
				return next(c)
			}

			ctx, cancel := context.WithTimeoutCause(c.Request().Context(), timeout, ErrRequestTimeout)
			defer cancel()
			c.SetRequest(c.Request().WithContext(ctx))

			err := next(c)
			if !errors.Is(context.Cause(ctx), ErrRequestTimeout) || c.Response().Committed {
				return err
			}
			return c.JSON(http.StatusGatewayTimeout,
				errorBody("timeout", "request processing exceeded the allowed time limit"))
		}
	}
}
