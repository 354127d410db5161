package coverage

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PriceType says where a service's price comes from at billing time.
type PriceType string

const (
	// PriceFixed services bill at the catalog base price unless overridden.
	PriceFixed PriceType = "FIXED"
	// PriceDynamic services have their price supplied when billed.
	PriceDynamic PriceType = "DYNAMIC"
)

func (p PriceType) Valid() bool {
	return p == PriceFixed || p == PriceDynamic
}

// BillableService maps to the service table (the clinic's price catalog).
type BillableService struct {
	ID        uuid.UUID       `db:"id" json:"id"`
	Name      string          `db:"name" json:"name"`
	BasePrice decimal.Decimal `db:"base_price" json:"base_price"`
	PriceType PriceType       `db:"price_type" json:"price_type"`
	Active    bool            `db:"active" json:"active"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}

// Rule maps to the coverage_rule table. CoveragePercent is the only stored
// representation of coverage.
type Rule struct {
	ID              uuid.UUID       `db:"id" json:"id"`
	InsuranceID     uuid.UUID       `db:"insurance_id" json:"insurance_id"`
	ServiceID       uuid.UUID       `db:"service_id" json:"service_id"`
	CoveragePercent decimal.Decimal `db:"coverage_percent" json:"coverage_percent"`
	IsActive        bool            `db:"is_active" json:"is_active"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
}

// RuleInput is what the entry boundary accepts. Exactly one of
// CoveragePercent or DiscountAmount must be set; a discount is converted to a
// percent once and never stored.
type RuleInput struct {
	InsuranceID     uuid.UUID        `json:"insurance_id"`
	ServiceID       uuid.UUID        `json:"service_id"`
	CoveragePercent *decimal.Decimal `json:"coverage_percent,omitempty"`
	DiscountAmount  *decimal.Decimal `json:"discount_amount,omitempty"`
}

// LineInput is one requested invoice line. UnitPrice may be omitted for
// FIXED services, in which case the catalog base price is used.
type LineInput struct {
	ServiceID uuid.UUID        `json:"service_id"`
	Quantity  int              `json:"quantity"`
	UnitPrice *decimal.Decimal `json:"unit_price,omitempty"`
}

// LineBreakdown is the insurer/patient split of one line.
type LineBreakdown struct {
	ServiceID       uuid.UUID       `json:"service_id"`
	ServiceName     string          `json:"service_name"`
	Quantity        int             `json:"quantity"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	BaseAmount      decimal.Decimal `json:"base_amount"`
	CoveragePercent decimal.Decimal `json:"coverage_percent"`
	InsuranceCovers decimal.Decimal `json:"insurance_covers"`
	PatientPays     decimal.Decimal `json:"patient_pays"`
}

// Calculation is the full split for a set of lines. It is also the
// snapshot stored on an invoice at billing time.
type Calculation struct {
	InsuranceID          *uuid.UUID      `json:"insurance_id,omitempty"`
	Lines                []LineBreakdown `json:"lines"`
	TotalBase            decimal.Decimal `json:"total_base"`
	TotalInsuranceCovers decimal.Decimal `json:"total_insurance_covers"`
	TotalPatientPays     decimal.Decimal `json:"total_patient_pays"`
}
