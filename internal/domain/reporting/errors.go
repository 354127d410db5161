package reporting

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/medledger/medledger/internal/domain/coverage"
)

var ErrInvalidPeriod = errors.New("invalid report period")

var codes = []coverage.CodedError{
	{Err: ErrInvalidPeriod, Code: "INVALID_PERIOD", Status: http.StatusBadRequest},
}

func httpError(err error) *echo.HTTPError { return coverage.NewHTTPError(codes, err) }
