package auth

import (
	"context"
	"net/http"
	"slices"
	"strings"

	"github.com/labstack/echo/v4"
)

const (
	RoleAdmin   = "admin"
	RoleBilling = "billing"
)

// HasRole reports whether the caller holds any of roles. RoleAdmin satisfies
// every check.
func HasRole(ctx context.Context, roles ...string) bool {
	held := RolesFromContext(ctx)
	if slices.Contains(held, RoleAdmin) {
		return true
	}
	for _, r := range roles {
		if slices.Contains(held, r) {
			return true
		}
	}
	return false
}

// RequireRole rejects callers that hold none of roles with 403 FORBIDDEN.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	msg := "requires role " + strings.Join(roles, " or ")
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !HasRole(c.Request().Context(), roles...) {
				return echo.NewHTTPError(http.StatusForbidden,
					map[string]string{"code": "FORBIDDEN", "message": msg})
			}
			return next(c)
		}
	}
}
