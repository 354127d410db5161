package billing

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medledger/medledger/internal/platform/auth"
	"github.com/medledger/medledger/pkg/pagination"
)

const dateLayout = "2006-01-02"

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole(auth.RoleAdmin, auth.RoleBilling))

	g.POST("/invoices", h.CreateInvoice)
	g.GET("/invoices", h.ListInvoices)
	g.GET("/invoices/:id", h.GetInvoice)
	g.GET("/invoices/:id/line-items", h.ListLineItems)
	g.POST("/invoices/:id/payments", h.RecordPayment)
	g.GET("/invoices/:id/payments", h.ListPayments)
	g.POST("/invoices/:id/cancel", h.Cancel)
	g.POST("/invoices/:id/exonerations", h.Exonerate)
	g.GET("/invoices/:id/exonerations", h.ListExonerations)
	g.POST("/exonerations/:id/print", h.MarkPrinted)
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

// parseQuery reads patient_id, status (comma separated), from and to
// (YYYY-MM-DD, to inclusive) plus paging.
func parseQuery(c echo.Context) (InvoiceQuery, pagination.Params, error) {
	pg := pagination.FromContext(c)
	q := InvoiceQuery{Limit: pg.Limit, Offset: pg.Offset}

	if v := c.QueryParam("patient_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return q, pg, echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
		}
		q.PatientID = &id
	}
	if v := c.QueryParam("status"); v != "" {
		for _, s := range strings.Split(v, ",") {
			q.Statuses = append(q.Statuses, Status(strings.ToUpper(strings.TrimSpace(s))))
		}
	}
	if v := c.QueryParam("from"); v != "" {
		t, err := time.Parse(dateLayout, v)
		if err != nil {
			return q, pg, echo.NewHTTPError(http.StatusBadRequest, "from must be YYYY-MM-DD")
		}
		q.CreatedFrom = &t
	}
	if v := c.QueryParam("to"); v != "" {
		t, err := time.Parse(dateLayout, v)
		if err != nil {
			return q, pg, echo.NewHTTPError(http.StatusBadRequest, "to must be YYYY-MM-DD")
		}
		end := t.AddDate(0, 0, 1)
		q.CreatedTo = &end
	}
	return q, pg, nil
}

// -- Invoices --

func (h *Handler) CreateInvoice(c echo.Context) error {
	var in CreateInvoiceInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	inv, err := h.svc.CreateInvoice(c.Request().Context(), in)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, inv)
}

func (h *Handler) GetInvoice(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	inv, err := h.svc.GetInvoice(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, inv)
}

func (h *Handler) ListInvoices(c echo.Context) error {
	q, pg, err := parseQuery(c)
	if err != nil {
		return err
	}
	items, total, err := h.svc.ListInvoices(c.Request().Context(), q)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewPage(items, total, pg))
}

func (h *Handler) ListLineItems(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	items, err := h.svc.LineItems(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, items)
}

// -- Ledger --

type paymentResponse struct {
	Invoice *Invoice `json:"invoice"`
	Payment *Payment `json:"payment"`
}

func (h *Handler) RecordPayment(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var in PaymentInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	inv, p, err := h.svc.RecordPayment(c.Request().Context(), id, in)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, paymentResponse{Invoice: inv, Payment: p})
}

func (h *Handler) ListPayments(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	items, err := h.svc.ListPayments(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) Cancel(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	inv, err := h.svc.Cancel(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, inv)
}

type exonerationResponse struct {
	Invoice     *Invoice     `json:"invoice"`
	Exoneration *Exoneration `json:"exoneration"`
}

func (h *Handler) Exonerate(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var in ExonerationInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	inv, ex, err := h.svc.Exonerate(c.Request().Context(), id, in)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, exonerationResponse{Invoice: inv, Exoneration: ex})
}

func (h *Handler) ListExonerations(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	items, err := h.svc.ListExonerations(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) MarkPrinted(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	ex, err := h.svc.MarkExonerationPrinted(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, ex)
}
