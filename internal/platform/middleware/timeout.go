package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// RequestTimeout puts a deadline on each request context. Handlers and the
// store layer observe it through ctx; if it fires first the client gets 504
// with the same {code, message} body the domain handlers use. Paths listed in
// skip get no deadline.
func RequestTimeout(timeout time.Duration, skip ...string) echo.MiddlewareFunc {
	exempt := make(map[string]bool, len(skip))
	for _, p := range skip {
		exempt[p] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if timeout <= 0 || exempt[c.Request().URL.Path] {
				return next(c)
			}

			ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
			defer cancel()
			c.SetRequest(c.Request().WithContext(ctx))

			err := next(c)
			if errors.Is(ctx.Err(), context.DeadlineExceeded) && !c.Response().Committed {
				return echo.NewHTTPError(http.StatusGatewayTimeout,
					map[string]string{"code": "TIMEOUT", "message": "request processing exceeded the allowed time limit"})
			}
			return err
		}
	}
}
