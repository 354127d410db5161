package billing

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/medledger/medledger/internal/domain/coverage"
)

var (
	ErrInvalidPaymentAmount      = errors.New("invalid payment amount")
	ErrInvalidStateTransition    = errors.New("invalid invoice state transition")
	ErrExonerationExceedsPending = errors.New("exoneration amount must be positive and not exceed the pending amount")
	ErrInvalidExoneration        = errors.New("invalid exoneration")
	ErrInvoiceNotFound           = errors.New("invoice not found")
	ErrExonerationNotFound       = errors.New("exoneration not found")
	ErrConcurrentUpdate          = errors.New("invoice was modified concurrently")
	ErrInvalidInvoice            = errors.New("invalid invoice")
	ErrInvalidQuery              = errors.New("invalid invoice query")
)

var codes = append([]coverage.CodedError{
	{Err: ErrInvalidPaymentAmount, Code: "INVALID_PAYMENT_AMOUNT", Status: http.StatusUnprocessableEntity},
	{Err: ErrInvalidStateTransition, Code: "INVALID_STATE_TRANSITION", Status: http.StatusConflict},
	{Err: ErrExonerationExceedsPending, Code: "EXONERATION_EXCEEDS_PENDING", Status: http.StatusUnprocessableEntity},
	{Err: ErrInvalidExoneration, Code: "INVALID_EXONERATION", Status: http.StatusBadRequest},
	{Err: ErrInvoiceNotFound, Code: "INVOICE_NOT_FOUND", Status: http.StatusNotFound},
	{Err: ErrExonerationNotFound, Code: "EXONERATION_NOT_FOUND", Status: http.StatusNotFound},
	{Err: ErrConcurrentUpdate, Code: "CONCURRENT_UPDATE", Status: http.StatusConflict},
	{Err: ErrInvalidInvoice, Code: "INVALID_INVOICE", Status: http.StatusBadRequest},
	{Err: ErrInvalidQuery, Code: "INVALID_QUERY", Status: http.StatusBadRequest},
}, coverage.Codes()...)

// ErrorCode maps a billing or coverage error to its stable boundary code.
func ErrorCode(err error) string {
	if c, ok := coverage.Lookup(codes, err); ok {
		return c.Code
	}
	return "INTERNAL"
}

// IsRejection reports whether err is a ledger rule refusing an operation, as
// opposed to a lookup or infrastructure failure.
func IsRejection(err error) bool {
	return errors.Is(err, ErrInvalidPaymentAmount) ||
		errors.Is(err, ErrInvalidStateTransition) ||
		errors.Is(err, ErrExonerationExceedsPending) ||
		errors.Is(err, ErrInvalidExoneration)
}

func httpError(err error) *echo.HTTPError { return coverage.NewHTTPError(codes, err) }
