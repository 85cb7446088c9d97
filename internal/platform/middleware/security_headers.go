package middleware

import (
	"github.com/labstack/echo/v4"
)

// ContentSecurityPolicy denies everything except the inline stylesheet the
// archived HTML reports carry.
const ContentSecurityPolicy = "default-src 'none'; style-src 'unsafe-inline'; frame-ancestors 'none'"

const hstsValue = "max-age=31536000; includeSubDomains"

var baseHeaders = [][2]string{
	{"X-Content-Type-Options", "nosniff"},
	{"X-Frame-Options", "DENY"},
	{"X-XSS-Protection", "0"},
	{"Content-Security-Policy", ContentSecurityPolicy},
	{"Referrer-Policy", "no-referrer"},
	{"Permissions-Policy", "camera=(), microphone=(), geolocation=()"},
	// exports are computed per request
	{"Cache-Control", "no-store"},
}

// SecurityHeaders sets hardening headers before the handler runs so they are
// present on error responses too. HSTS is only sent when hsts is true, since
// a development server on plain HTTP would otherwise poison the browser.
func SecurityHeaders(hsts bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			for _, kv := range baseHeaders {
				h.Set(kv[0], kv[1])
			}
			if hsts {
				h.Set("Strict-Transport-Security", hstsValue)
			}
			return next(c)
		}
	}
}
