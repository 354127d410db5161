package reporting

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/medledger/medledger/internal/domain/billing"
	"github.com/medledger/medledger/internal/platform/cache"
)

// DefaultCacheTTL is used when SetCache is given a non-positive TTL.
const DefaultCacheTTL = 5 * time.Minute

// Metrics receives report generation stats. *telemetry.Metrics satisfies it.
type Metrics interface {
	ReportGenerated(d time.Duration, excluded int)
	ReportCache(hit bool)
}

type nopMetrics struct{}

func (nopMetrics) ReportGenerated(time.Duration, int) {}
func (nopMetrics) ReportCache(bool)                   {}

// Service fetches report datasets, runs the aggregator and caches the
// result under the report group.
type Service struct {
	store   Store
	agg     *Aggregator
	cache   cache.Store
	ttl     time.Duration
	metrics Metrics
	logger  zerolog.Logger
}

func NewService(store Store, agg *Aggregator, logger zerolog.Logger) *Service {
	return &Service{
		store:   store,
		agg:     agg,
		cache:   cache.Nop{},
		ttl:     DefaultCacheTTL,
		metrics: nopMetrics{},
		logger:  logger.With().Str("component", "reporting").Logger(),
	}
}

func (s *Service) SetCache(c cache.Store, ttl time.Duration) {
	if c != nil {
		s.cache = c
	}
	if ttl > 0 {
		s.ttl = ttl
	}
}

func (s *Service) SetMetrics(m Metrics) {
	if m != nil {
		s.metrics = m
	}
}

// CacheKey is the cache key for the window [start, end].
func CacheKey(start, end time.Time) string {
	return fmt.Sprintf("%s%s:%s", cache.ReportGroup, start.UTC().Format(time.RFC3339Nano), end.UTC().Format(time.RFC3339Nano))
}

// Generate builds the financial report for the inclusive window
// [start, end], serving it from cache when possible.
func (s *Service) Generate(ctx context.Context, start, end time.Time) (*Report, error) {
	if start.IsZero() || end.IsZero() || end.Before(start) {
		return nil, fmt.Errorf("%w: start must not be after end", ErrInvalidPeriod)
	}

	key := CacheKey(start, end)
	if raw, ok := s.cache.Get(key); ok {
		var r Report
		if err := json.Unmarshal(raw, &r); err == nil {
			s.metrics.ReportCache(true)
			return &r, nil
		}
		s.logger.Warn().Str("key", key).Msg("dropping undecodable cached report")
	}
	s.metrics.ReportCache(false)

	// A ledger write landing while this report is built must not be masked
	// by caching the older figures.
	gen := s.cache.Generation()
	began := time.Now()
	in, err := s.fetch(ctx, start, end)
	if err != nil {
		return nil, err
	}
	report := s.agg.Aggregate(in)
	elapsed := time.Since(began)
	s.metrics.ReportGenerated(elapsed, report.DataQuality.Excluded())

	if raw, err := json.Marshal(report); err != nil {
		s.logger.Error().Err(err).Msg("report not cached")
	} else if !s.cache.SetIfGeneration(key, raw, s.ttl, gen) {
		s.logger.Debug().Str("key", key).Msg("report group invalidated during generation, not cached")
	}

	s.logger.Info().
		Time("start", start).
		Time("end", end).
		Dur("elapsed", elapsed).
		Int("invoices", report.Period.TotalInvoices).
		Int("excluded", report.DataQuality.Excluded()).
		Msg("financial report generated")
	return report, nil
}

// fetch loads the history, window and previous-window datasets concurrently.
// History invoices are unbounded for the global figures; history
// appointments stop at end.
func (s *Service) fetch(ctx context.Context, start, end time.Time) (Input, error) {
	prevStart, prevEnd := PreviousPeriod(start, end)
	in := Input{Start: start, End: end, PreviousStart: prevStart, PreviousEnd: prevEnd}

	window := halfOpen(start, end)
	previous := halfOpen(prevStart, prevEnd)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		in.History.Invoices, err = s.store.Invoices(ctx, billing.InvoiceQuery{})
		return wrap("history invoices", err)
	})
	g.Go(func() (err error) {
		in.History.Appointments, err = s.store.Appointments(ctx, Range{To: window.To})
		return wrap("history appointments", err)
	})
	g.Go(func() (err error) {
		in.Window.Invoices, err = s.store.Invoices(ctx, billing.InvoiceQuery{CreatedFrom: window.From, CreatedTo: window.To})
		return wrap("window invoices", err)
	})
	g.Go(func() (err error) {
		in.Window.Exonerations, err = s.store.Exonerations(ctx, window)
		return wrap("exonerations", err)
	})
	g.Go(func() (err error) {
		in.Window.Appointments, err = s.store.Appointments(ctx, window)
		return wrap("window appointments", err)
	})
	g.Go(func() (err error) {
		in.Window.Patients, err = s.store.Patients(ctx, window)
		return wrap("window patients", err)
	})
	g.Go(func() (err error) {
		in.Previous.Invoices, err = s.store.Invoices(ctx, billing.InvoiceQuery{CreatedFrom: previous.From, CreatedTo: previous.To})
		return wrap("previous invoices", err)
	})
	g.Go(func() (err error) {
		in.Previous.Appointments, err = s.store.Appointments(ctx, previous)
		return wrap("previous appointments", err)
	})
	return in, g.Wait()
}

// halfOpen turns the inclusive [start, end] into [start, end+1ns).
func halfOpen(start, end time.Time) Range {
	to := end.Add(time.Nanosecond)
	return Range{From: &start, To: &to}
}

func wrap(what string, err error) error {
	if err != nil {
		return fmt.Errorf("fetch %s: %w", what, err)
	}
	return nil
}
