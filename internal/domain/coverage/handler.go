package coverage

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medledger/medledger/internal/platform/auth"
	"github.com/medledger/medledger/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole(auth.RoleAdmin, auth.RoleBilling))
	g.GET("/services", h.ListServices)
	g.GET("/services/:id", h.GetService)
	g.GET("/coverage-rules", h.ListRules)
	g.GET("/coverage-rules/:id", h.GetRule)
	g.POST("/coverage/calculate", h.Calculate)

	admin := api.Group("", auth.RequireRole(auth.RoleAdmin))
	admin.POST("/services", h.CreateService)
	admin.POST("/coverage-rules", h.CreateRule)
	admin.POST("/coverage-rules/:id/deactivate", h.DeactivateRule)
}

func httpError(err error) error { return NewHTTPError(codes, err) }

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

// -- Catalog --

func (h *Handler) CreateService(c echo.Context) error {
	var svc BillableService
	if err := c.Bind(&svc); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreateService(c.Request().Context(), &svc); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, svc)
}

func (h *Handler) GetService(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	svc, err := h.svc.GetService(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, svc)
}

func (h *Handler) ListServices(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListServices(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewPage(items, total, pg))
}

// -- Rules --

func (h *Handler) CreateRule(c echo.Context) error {
	var in RuleInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	rule, err := h.svc.CreateRule(c.Request().Context(), in)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, rule)
}

func (h *Handler) GetRule(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	rule, err := h.svc.GetRule(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, rule)
}

func (h *Handler) ListRules(c echo.Context) error {
	insuranceID, err := uuid.Parse(c.QueryParam("insurance_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "insurance_id is required")
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListRules(c.Request().Context(), insuranceID, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewPage(items, total, pg))
}

func (h *Handler) DeactivateRule(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeactivateRule(c.Request().Context(), id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

type calculateRequest struct {
	InsuranceID *uuid.UUID  `json:"insurance_id,omitempty"`
	Lines       []LineInput `json:"lines"`
}

func (h *Handler) Calculate(c echo.Context) error {
	var req calculateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	calc, err := h.svc.Calculate(c.Request().Context(), req.InsuranceID, req.Lines)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, calc)
}
