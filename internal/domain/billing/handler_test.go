package billing

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medledger/medledger/pkg/pagination"
)

func newTestHandler() (*Handler, *testEnv, *echo.Echo) {
	env := newTestEnv()
	return NewHandler(env.svc), env, echo.New()
}

func jsonRequest(method, body string) *http.Request {
	req := httptest.NewRequest(method, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

func errCode(t *testing.T, err error) (int, string) {
	t.Helper()
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T (%v)", err, err)
	}
	msg, _ := httpErr.Message.(map[string]string)
	return httpErr.Code, msg["code"]
}

func TestHandler_CreateInvoice(t *testing.T) {
	h, env, e := newTestHandler()
	svc := env.service("120")
	body := `{"patient_id":"` + uuid.New().String() + `","lines":[{"service_id":"` + svc.String() + `","quantity":2}]}`
	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, body), rec)

	if err := h.CreateInvoice(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var inv Invoice
	if err := json.Unmarshal(rec.Body.Bytes(), &inv); err != nil {
		t.Fatal(err)
	}
	if !inv.TotalAmount.Equal(d("240")) || inv.Status != StatusPending {
		t.Errorf("unexpected invoice %+v", inv.Snapshot())
	}
}

func TestHandler_CreateInvoice_UnknownService(t *testing.T) {
	h, _, e := newTestHandler()
	body := `{"patient_id":"` + uuid.New().String() + `","lines":[{"service_id":"` + uuid.New().String() + `","quantity":1}]}`
	c := e.NewContext(jsonRequest(http.MethodPost, body), httptest.NewRecorder())

	status, code := errCode(t, h.CreateInvoice(c))
	if status != http.StatusNotFound || code != "SERVICE_NOT_FOUND" {
		t.Errorf("expected 404 SERVICE_NOT_FOUND, got %d %s", status, code)
	}
}

func TestHandler_RecordPayment(t *testing.T) {
	h, env, e := newTestHandler()
	inv := env.invoice(t, "100")

	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, `{"amount":"60","method":"cash"}`), rec)
	c.SetParamNames("id")
	c.SetParamValues(inv.ID.String())
	if err := h.RecordPayment(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var resp paymentResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Invoice.Status != StatusPartial || !resp.Payment.Amount.Equal(d("60")) {
		t.Errorf("unexpected response %+v / %+v", resp.Invoice.Snapshot(), resp.Payment)
	}
}

func TestHandler_RecordPayment_Errors(t *testing.T) {
	h, env, e := newTestHandler()
	inv := env.invoice(t, "100")

	tests := []struct {
		name   string
		id     string
		body   string
		status int
		code   string
	}{
		{"overpay", inv.ID.String(), `{"amount":"500"}`, http.StatusUnprocessableEntity, "INVALID_PAYMENT_AMOUNT"},
		{"zero", inv.ID.String(), `{"amount":"0"}`, http.StatusUnprocessableEntity, "INVALID_PAYMENT_AMOUNT"},
		{"missing invoice", uuid.New().String(), `{"amount":"5"}`, http.StatusNotFound, "INVOICE_NOT_FOUND"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := e.NewContext(jsonRequest(http.MethodPost, tt.body), httptest.NewRecorder())
			c.SetParamNames("id")
			c.SetParamValues(tt.id)
			status, code := errCode(t, h.RecordPayment(c))
			if status != tt.status || code != tt.code {
				t.Errorf("expected %d %s, got %d %s", tt.status, tt.code, status, code)
			}
		})
	}
}

func TestHandler_Cancel_Terminal(t *testing.T) {
	h, env, e := newTestHandler()
	inv := env.invoice(t, "100")
	if _, err := env.svc.Cancel(userCtx(), inv.ID); err != nil {
		t.Fatal(err)
	}

	c := e.NewContext(httptest.NewRequest(http.MethodPost, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(inv.ID.String())
	status, code := errCode(t, h.Cancel(c))
	if status != http.StatusConflict || code != "INVALID_STATE_TRANSITION" {
		t.Errorf("expected 409 INVALID_STATE_TRANSITION, got %d %s", status, code)
	}
}

func TestHandler_ExonerateAndPrint(t *testing.T) {
	h, env, e := newTestHandler()
	inv := env.invoice(t, "100")

	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, `{"amount":"100","reason":"charity","authorized_by":"director"}`), rec)
	c.SetParamNames("id")
	c.SetParamValues(inv.ID.String())
	if err := h.Exonerate(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var resp exonerationResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Invoice.Status != StatusExonerated || resp.Exoneration.AuthorizedBy != "director" {
		t.Fatalf("unexpected response %+v", resp.Invoice.Snapshot())
	}

	for i := 0; i < 2; i++ {
		rec = httptest.NewRecorder()
		c = e.NewContext(httptest.NewRequest(http.MethodPost, "/", nil), rec)
		c.SetParamNames("id")
		c.SetParamValues(resp.Exoneration.ID.String())
		if err := h.MarkPrinted(c); err != nil {
			t.Fatalf("print %d: %v", i, err)
		}
		if rec.Code != http.StatusOK {
			t.Errorf("print %d: expected 200, got %d", i, rec.Code)
		}
	}
}

func TestHandler_ListInvoices_Filters(t *testing.T) {
	h, env, e := newTestHandler()
	open := env.invoice(t, "100")
	closed := env.invoice(t, "50")
	if _, err := env.svc.Cancel(userCtx(), closed.ID); err != nil {
		t.Fatal(err)
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/?status=pending,partial&from=2024-03-01&to=2024-03-01", nil)
	c := e.NewContext(req, rec)
	if err := h.ListInvoices(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var resp pagination.Page[*Invoice]
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Total != 1 || len(resp.Data) != 1 || resp.Data[0].ID != open.ID {
		t.Errorf("expected only the open invoice, got total=%d", resp.Total)
	}
}

func TestHandler_ListInvoices_BadParams(t *testing.T) {
	h, _, e := newTestHandler()
	for _, q := range []string{"?patient_id=nope", "?from=03/01/2024", "?to=yesterday"} {
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/"+q, nil), httptest.NewRecorder())
		err := h.ListInvoices(c)
		if httpErr, ok := err.(*echo.HTTPError); !ok || httpErr.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %v", q, err)
		}
	}

	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/?status=DRAFT", nil), httptest.NewRecorder())
	status, code := errCode(t, h.ListInvoices(c))
	if status != http.StatusBadRequest || code != "INVALID_QUERY" {
		t.Errorf("expected 400 INVALID_QUERY, got %d %s", status, code)
	}
}

func TestHandler_InvalidID(t *testing.T) {
	h, _, e := newTestHandler()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("not-a-uuid")
	if httpErr, ok := h.GetInvoice(c).(*echo.HTTPError); !ok || httpErr.Code != http.StatusBadRequest {
		t.Fatal("expected 400 for malformed id")
	}
}
