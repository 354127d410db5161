package reporting

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/medledger/medledger/internal/platform/auth"
	"github.com/medledger/medledger/internal/platform/clock"
)

const dateLayout = "2006-01-02"

type Handler struct {
	svc      *Service
	clock    clock.Clock
	location *time.Location
}

// NewHandler serves reports for dates interpreted in loc (nil means UTC).
func NewHandler(svc *Service, c clock.Clock, loc *time.Location) *Handler {
	if c == nil {
		c = clock.System()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Handler{svc: svc, clock: c, location: loc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/reports", auth.RequireRole(auth.RoleAdmin, auth.RoleBilling))
	g.GET("/financial", h.Financial)
}

// ParseWindow turns YYYY-MM-DD dates into the inclusive window from the start
// of the first day to the last instant of the second, in loc.
func ParseWindow(startDate, endDate string, loc *time.Location) (time.Time, time.Time, error) {
	start, err := time.ParseInLocation(dateLayout, startDate, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := time.ParseInLocation(dateLayout, endDate, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, end.AddDate(0, 0, 1).Add(-time.Nanosecond), nil
}

// Financial returns the composite report. Without parameters it covers the
// current month up to today.
func (h *Handler) Financial(c echo.Context) error {
	startDate, endDate := c.QueryParam("start"), c.QueryParam("end")
	today := h.clock.Now().In(h.location)
	if startDate == "" {
		startDate = time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, h.location).Format(dateLayout)
	}
	if endDate == "" {
		endDate = today.Format(dateLayout)
	}

	start, end, err := ParseWindow(startDate, endDate, h.location)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "start and end must be YYYY-MM-DD")
	}
	report, err := h.svc.Generate(c.Request().Context(), start, end)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, report)
}
