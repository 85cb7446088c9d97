package middleware

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Logger emits one access log line per request and stores a request scoped
// child logger in the request context, retrievable with zerolog.Ctx.
func Logger(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			rid, _ := c.Get("request_id").(string)

			reqLog := logger.With().Str("request_id", rid).Logger()
			c.SetRequest(c.Request().WithContext(reqLog.WithContext(c.Request().Context())))

			err := next(c)
			if err != nil {
				// resolve the error now so Status reflects what the client got
				c.Error(err)
			}

			req, res := c.Request(), c.Response()
			var evt *zerolog.Event
			switch {
			case res.Status >= http.StatusInternalServerError:
				evt = reqLog.Error().Err(err)
			case res.Status >= http.StatusBadRequest:
				evt = reqLog.Warn()
			default:
				evt = reqLog.Info()
			}
			evt.Str("method", req.Method).
				Str("path", req.URL.Path).
				Str("route", c.Path()).
				Int("status", res.Status).
				Int64("bytes_in", req.ContentLength).
				Int64("bytes_out", res.Size).
				Dur("latency", time.Since(start)).
				Str("remote_ip", c.RealIP()).
				Msg("request")
			return nil
		}
	}
}
