package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// Scopes granted to export clients.
const (
	ScopeExportRead  = "export:read"
	ScopeExportWrite = "export:write"
)

// RequiredScope maps an HTTP method to the scope it needs: safe methods read,
// everything else writes.
func RequiredScope(method string) string {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return ScopeExportRead
	}
	return ScopeExportWrite
}

// RequireScopes rejects requests whose token does not grant the scope
// RequiredScope picks for the request method. Mount it after JWTMiddleware.
func RequireScopes(skipper func(c echo.Context) bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if skipper != nil && skipper(c) {
				return next(c)
			}
			required := RequiredScope(c.Request().Method)
			for _, scope := range ScopesFromContext(c.Request().Context()) {
				if matchScope(scope, required) {
					return next(c)
				}
			}
			return echo.NewHTTPError(http.StatusForbidden,
				fmt.Sprintf("required scope: %s", required))
		}
	}
}

// matchScope checks if a granted scope covers the required one. "export:*"
// and "*" are wildcards, and a write grant implies read.
func matchScope(granted, required string) bool {
	if granted == required || granted == "*" {
		return true
	}
	gRes, gOp, ok := strings.Cut(granted, ":")
	if !ok {
		return false
	}
	rRes, rOp, ok := strings.Cut(required, ":")
	if !ok || gRes != rRes {
		return false
	}
	return gOp == "*" || gOp == rOp || (gOp == "write" && rOp == "read")
}
