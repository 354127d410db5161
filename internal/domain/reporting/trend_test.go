package reporting

import "testing"

func TestGrowthRate(t *testing.T) {
	tests := []struct {
		name              string
		current, previous float64
		wantPct           float64
		wantTrend         Trend
	}{
		{"up", 1200, 1000, 20, TrendUp},
		{"down", 800, 1000, -20, TrendDown},
		{"inside dead band up", 1020, 1000, 2, TrendStable},
		{"inside dead band down", 980, 1000, -2, TrendStable},
		{"just above band", 1021, 1000, 2.1, TrendUp},
		{"no previous", 500, 0, 0, TrendStable},
		{"negative previous", 10, -5, 0, TrendStable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := GrowthRate(tt.current, tt.previous)
			if got.ChangePercent != tt.wantPct {
				t.Errorf("expected %v%%, got %v%%", tt.wantPct, got.ChangePercent)
			}
			if got.Trend != tt.wantTrend {
				t.Errorf("expected %s, got %s", tt.wantTrend, got.Trend)
			}
			if got.Change != tt.current-tt.previous {
				t.Errorf("expected change %v, got %v", tt.current-tt.previous, got.Change)
			}
		})
	}
}
