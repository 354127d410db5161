package coverage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/medledger/medledger/pkg/money"
)

// SplitLine splits unitPrice × quantity between insurer and patient.
// insuranceCovers is rounded half-up to cents and patientPays takes the
// remainder, so the two always add back to the base amount.
func SplitLine(unitPrice decimal.Decimal, quantity int, percent decimal.Decimal) (base, covers, pays decimal.Decimal) {
	base = unitPrice.Mul(decimal.NewFromInt(int64(quantity)))
	covers = money.PercentOf(base, money.ClampPercent(percent))
	pays = base.Sub(covers)
	return base, covers, pays
}

// PercentFromDiscount converts a money discount on basePrice into the
// equivalent coverage percent, capped to [0, 100].
func PercentFromDiscount(discount, basePrice decimal.Decimal) decimal.Decimal {
	if !basePrice.IsPositive() || !discount.IsPositive() {
		return decimal.Zero
	}
	return money.ClampPercent(discount.Div(basePrice).Mul(money.Hundred))
}

// ResolvePercent turns a RuleInput into the single stored percent. Both input
// styles pass through the same clamp and rounding so they can never diverge.
func ResolvePercent(in RuleInput, basePrice decimal.Decimal) (decimal.Decimal, error) {
	switch {
	case in.CoveragePercent != nil && in.DiscountAmount != nil:
		return decimal.Zero, fmt.Errorf("%w: give either coverage_percent or discount_amount, not both", ErrInvalidCoverage)
	case in.CoveragePercent != nil:
		return money.ClampPercent(*in.CoveragePercent).Round(2), nil
	case in.DiscountAmount != nil:
		return PercentFromDiscount(*in.DiscountAmount, basePrice).Round(2), nil
	default:
		return decimal.Zero, fmt.Errorf("%w: coverage_percent or discount_amount is required", ErrInvalidCoverage)
	}
}

// PricedLine is a line whose service, price and coverage are already known.
type PricedLine struct {
	Service         *BillableService
	Quantity        int
	UnitPrice       decimal.Decimal
	CoveragePercent decimal.Decimal
}

// Split computes the breakdown and totals for already-priced lines. It does
// no lookups.
func Split(insuranceID *uuid.UUID, lines []PricedLine) *Calculation {
	calc := &Calculation{
		InsuranceID:          insuranceID,
		Lines:                make([]LineBreakdown, 0, len(lines)),
		TotalBase:            decimal.Zero,
		TotalInsuranceCovers: decimal.Zero,
		TotalPatientPays:     decimal.Zero,
	}
	for _, l := range lines {
		pct := money.ClampPercent(l.CoveragePercent)
		base, covers, pays := SplitLine(l.UnitPrice, l.Quantity, pct)
		calc.Lines = append(calc.Lines, LineBreakdown{
			ServiceID:       l.Service.ID,
			ServiceName:     l.Service.Name,
			Quantity:        l.Quantity,
			UnitPrice:       l.UnitPrice,
			BaseAmount:      base,
			CoveragePercent: pct,
			InsuranceCovers: covers,
			PatientPays:     pays,
		})
		calc.TotalBase = calc.TotalBase.Add(base)
		calc.TotalInsuranceCovers = calc.TotalInsuranceCovers.Add(covers)
		calc.TotalPatientPays = calc.TotalPatientPays.Add(pays)
	}
	return calc
}

// Calculator resolves services and active coverage rules and then splits.
type Calculator struct {
	services ServiceRepository
	rules    RuleRepository
}

func NewCalculator(services ServiceRepository, rules RuleRepository) *Calculator {
	return &Calculator{services: services, rules: rules}
}

// Calculate prices every line and splits it. Any unresolvable service or
// conflicting rule fails the whole calculation; no partial result is
// returned.
func (c *Calculator) Calculate(ctx context.Context, insuranceID *uuid.UUID, lines []LineInput) (*Calculation, error) {
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: at least one line is required", ErrInvalidLineItem)
	}
	if insuranceID != nil && *insuranceID == uuid.Nil {
		insuranceID = nil
	}

	priced := make([]PricedLine, 0, len(lines))
	for i, in := range lines {
		if in.Quantity <= 0 {
			return nil, fmt.Errorf("%w: line %d quantity must be positive", ErrInvalidLineItem, i+1)
		}
		svc, err := c.services.GetByID(ctx, in.ServiceID)
		if err != nil {
			if errors.Is(err, ErrServiceNotFound) {
				return nil, fmt.Errorf("line %d: %w: %s", i+1, ErrServiceNotFound, in.ServiceID)
			}
			return nil, fmt.Errorf("line %d: resolve service: %w", i+1, err)
		}

		unitPrice, err := unitPriceFor(svc, in.UnitPrice)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}

		pct := decimal.Zero
		if insuranceID != nil {
			pct, err = c.activePercent(ctx, *insuranceID, svc.ID)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", i+1, err)
			}
		}

		priced = append(priced, PricedLine{
			Service:         svc,
			Quantity:        in.Quantity,
			UnitPrice:       unitPrice,
			CoveragePercent: pct,
		})
	}
	return Split(insuranceID, priced), nil
}

func (c *Calculator) activePercent(ctx context.Context, insuranceID, serviceID uuid.UUID) (decimal.Decimal, error) {
	rules, err := c.rules.ListActive(ctx, insuranceID, serviceID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("lookup coverage rule: %w", err)
	}
	switch len(rules) {
	case 0:
		return decimal.Zero, nil
	case 1:
		return money.ClampPercent(rules[0].CoveragePercent), nil
	default:
		return decimal.Zero, fmt.Errorf("%w: insurance %s service %s has %d active rules",
			ErrCoverageRuleConflict, insuranceID, serviceID, len(rules))
	}
}

func unitPriceFor(svc *BillableService, requested *decimal.Decimal) (decimal.Decimal, error) {
	if requested != nil {
		if requested.IsNegative() {
			return decimal.Zero, fmt.Errorf("%w: unit price cannot be negative", ErrInvalidLineItem)
		}
		if !money.IsCents(*requested) {
			return decimal.Zero, fmt.Errorf("%w: unit price %s has sub-cent precision", ErrInvalidLineItem, requested)
		}
		return *requested, nil
	}
	if svc.PriceType == PriceDynamic {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrUnitPriceRequired, svc.Name)
	}
	return svc.BasePrice, nil
}
