package coverage

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

// CodedError pairs a sentinel error with its stable boundary code and HTTP
// status.
type CodedError struct {
	Err    error
	Code   string
	Status int
}

var codes = []CodedError{
	{ErrServiceNotFound, "SERVICE_NOT_FOUND", http.StatusNotFound},
	{ErrRuleNotFound, "COVERAGE_RULE_NOT_FOUND", http.StatusNotFound},
	{ErrCoverageRuleConflict, "COVERAGE_RULE_CONFLICT", http.StatusConflict},
	{ErrInvalidCoverage, "INVALID_COVERAGE", http.StatusBadRequest},
	{ErrUnitPriceRequired, "UNIT_PRICE_REQUIRED", http.StatusBadRequest},
	{ErrInvalidLineItem, "INVALID_LINE_ITEM", http.StatusBadRequest},
	{ErrInvalidService, "INVALID_SERVICE", http.StatusBadRequest},
}

// Lookup finds the first table entry matching err.
func Lookup(table []CodedError, err error) (CodedError, bool) {
	for _, c := range table {
		if errors.Is(err, c.Err) {
			return c, true
		}
	}
	return CodedError{}, false
}

// ErrorCode returns the boundary code for a coverage error, or "INTERNAL".
func ErrorCode(err error) string {
	if c, ok := Lookup(codes, err); ok {
		return c.Code
	}
	return "INTERNAL"
}

// Codes returns the coverage error table for callers composing their own.
func Codes() []CodedError { return codes }

// NewHTTPError renders err as {code, message} with the mapped status.
// Unmapped errors become 500 INTERNAL without leaking their text.
func NewHTTPError(table []CodedError, err error) *echo.HTTPError {
	if c, ok := Lookup(table, err); ok {
		return echo.NewHTTPError(c.Status, map[string]string{"code": c.Code, "message": err.Error()})
	}
	return echo.NewHTTPError(http.StatusInternalServerError,
		map[string]string{"code": "INTERNAL", "message": "internal error"}).SetInternal(err)
}
