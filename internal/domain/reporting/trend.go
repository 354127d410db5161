package reporting

import "github.com/medledger/medledger/pkg/money"

type Trend string

const (
	TrendUp     Trend = "up"
	TrendDown   Trend = "down"
	TrendStable Trend = "stable"
)

// trendDeadBand is the percent change either side of zero that still counts
// as stable.
const trendDeadBand = 2.0

type TrendData struct {
	Current       float64 `json:"current"`
	Previous      float64 `json:"previous"`
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"changePercent"`
	Trend         Trend   `json:"trend"`
}

// GrowthRate compares two values. ChangePercent is 0 when previous is not
// positive.
func GrowthRate(current, previous float64) TrendData {
	change := current - previous
	pct := 0.0
	if previous > 0 {
		pct = change / previous * 100
	}
	t := TrendStable
	switch {
	case pct > trendDeadBand:
		t = TrendUp
	case pct < -trendDeadBand:
		t = TrendDown
	}
	return TrendData{
		Current:       money.RoundRate(current),
		Previous:      money.RoundRate(previous),
		Change:        money.RoundRate(change),
		ChangePercent: money.RoundRate(pct),
		Trend:         t,
	}
}
