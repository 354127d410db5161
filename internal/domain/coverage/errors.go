package coverage

import "errors"

var (
	ErrServiceNotFound      = errors.New("service not found")
	ErrCoverageRuleConflict = errors.New("more than one active coverage rule for insurance and service")
	ErrRuleNotFound         = errors.New("coverage rule not found")
	ErrInvalidCoverage      = errors.New("invalid coverage input")
	ErrUnitPriceRequired    = errors.New("unit price is required for dynamic-priced services")
	ErrInvalidLineItem      = errors.New("invalid line item")
	ErrInvalidService       = errors.New("invalid service")
)
