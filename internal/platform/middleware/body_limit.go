package middleware

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

// BodyLimit rejects request bodies larger than limit bytes. A declared
// Content-Length over the limit is refused up front with 413; otherwise the
// body is capped so a lying or absent Content-Length fails on read.
func BodyLimit(limit int64) echo.MiddlewareFunc {
	msg := fmt.Sprintf("request body exceeds %d bytes", limit)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if limit <= 0 || req.Body == nil || req.Body == http.NoBody {
				return next(c)
			}
			if req.ContentLength > limit {
				return echo.NewHTTPError(http.StatusRequestEntityTooLarge,
					map[string]string{"code": "PAYLOAD_TOO_LARGE", "message": msg})
			}
			req.Body = http.MaxBytesReader(c.Response(), req.Body, limit)
			return next(c)
		}
	}
}
