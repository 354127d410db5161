package reporting

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/medledger/medledger/internal/domain/billing"
	"github.com/medledger/medledger/pkg/money"
)

const day = 24 * time.Hour

// AgingReport buckets outstanding balances by age in days. Total always
// equals the sum of the four buckets.
type AgingReport struct {
	Current    decimal.Decimal `json:"current"`
	Days31to60 decimal.Decimal `json:"days31to60"`
	Days61to90 decimal.Decimal `json:"days61to90"`
	Over90     decimal.Decimal `json:"over90"`
	Total      decimal.Decimal `json:"total"`
	Invoices   int             `json:"invoices"`
}

// AgeDays is the number of whole days from since to now, never negative.
func AgeDays(since, now time.Time) int {
	if !now.After(since) {
		return 0
	}
	return int(now.Sub(since) / day)
}

// BuildAging buckets the pending amount of every PENDING or PARTIAL invoice
// in invoices; other statuses are ignored.
func BuildAging(invoices []*billing.Invoice, now time.Time) AgingReport {
	r := AgingReport{
		Current:    decimal.Zero,
		Days31to60: decimal.Zero,
		Days61to90: decimal.Zero,
		Over90:     decimal.Zero,
	}
	for _, inv := range invoices {
		if !inv.Status.Open() {
			continue
		}
		amount := inv.PendingAmount
		switch age := AgeDays(inv.CreatedAt, now); {
		case age <= 30:
			r.Current = r.Current.Add(amount)
		case age <= 60:
			r.Days31to60 = r.Days31to60.Add(amount)
		case age <= 90:
			r.Days61to90 = r.Days61to90.Add(amount)
		default:
			r.Over90 = r.Over90.Add(amount)
		}
		r.Invoices++
	}
	r.Current = money.Round(r.Current)
	r.Days31to60 = money.Round(r.Days31to60)
	r.Days61to90 = money.Round(r.Days61to90)
	r.Over90 = money.Round(r.Over90)
	r.Total = money.Sum(r.Current, r.Days31to60, r.Days61to90, r.Over90)
	return r
}
