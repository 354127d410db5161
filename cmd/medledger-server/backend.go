package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/medledger/medledger/internal/config"
	"github.com/medledger/medledger/internal/domain/billing"
	"github.com/medledger/medledger/internal/domain/coverage"
	"github.com/medledger/medledger/internal/domain/reporting"
	"github.com/medledger/medledger/internal/platform/audit"
	"github.com/medledger/medledger/internal/platform/cache"
	"github.com/medledger/medledger/internal/platform/clock"
	"github.com/medledger/medledger/internal/platform/db"
	"github.com/medledger/medledger/internal/platform/sqlite"
	"github.com/medledger/medledger/internal/platform/telemetry"
)

// backend is one storage driver's set of repositories.
type backend struct {
	services     coverage.ServiceRepository
	rules        coverage.RuleRepository
	invoices     billing.InvoiceRepository
	payments     billing.PaymentRepository
	exonerations billing.ExonerationRepository
	store        reporting.Store
	audit        audit.Sink
	probe        db.Probe
	close        func()
}

func openBackend(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*backend, error) {
	switch cfg.DatabaseDriver {
	case config.DriverSQLite:
		sdb, err := sqlite.Open(cfg.SQLitePath, logger)
		if err != nil {
			return nil, err
		}
		return &backend{
			services:     sdb.Services(),
			rules:        sdb.Rules(),
			invoices:     sdb.Invoices(),
			payments:     sdb.Payments(),
			exonerations: sdb.Exonerations(),
			store:        sdb.ReportStore(),
			audit:        sdb.AuditSink(),
			probe:        db.Probe{Driver: config.DriverSQLite, Ping: sdb.Ping},
			close:        func() { sdb.Close() },
		}, nil

	case config.DriverPostgres:
		pool, err := db.NewPool(ctx, db.PoolConfig{
			URL:      cfg.DatabaseURL,
			MaxConns: cfg.DBMaxConns,
			MinConns: cfg.DBMinConns,
			Timezone: cfg.Timezone,
		})
		if err != nil {
			return nil, err
		}
		logger.Info().Msg("connected to database")
		return &backend{
			services:     coverage.NewServiceRepoPG(pool),
			rules:        coverage.NewRuleRepoPG(pool),
			invoices:     billing.NewInvoiceRepoPG(pool),
			payments:     billing.NewPaymentRepoPG(pool),
			exonerations: billing.NewExonerationRepoPG(pool),
			store:        reporting.NewStorePG(pool),
			audit:        audit.NewPGSink(pool),
			probe:        db.PoolProbe(pool),
			close:        pool.Close,
		}, nil
	}
	return nil, fmt.Errorf("unsupported database driver %q", cfg.DatabaseDriver)
}

// app holds the wired domain services shared by serve and report.
type app struct {
	coverage *coverage.Service
	billing  *billing.Service
	reports  *reporting.Service
	cache    *cache.Memory
	clock    clock.Clock
	location *time.Location
}

func newApp(cfg *config.Config, be *backend, metrics *telemetry.Metrics, logger zerolog.Logger) (*app, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	clk := clock.System()
	reportCache := cache.NewMemory(clk)

	covSvc := coverage.NewService(be.services, be.rules, logger)

	billSvc := billing.NewService(be.invoices, be.payments, be.exonerations, covSvc, logger)
	billSvc.SetAudit(audit.Multi{audit.NewLogSink(logger), be.audit})
	billSvc.SetMetrics(metrics)
	billSvc.SetCache(reportCache)
	billSvc.SetClock(clk)

	reportSvc := reporting.NewService(be.store, reporting.NewAggregator(clk, loc, logger), logger)
	reportSvc.SetCache(reportCache, cfg.ReportCacheTTL)
	reportSvc.SetMetrics(metrics)

	return &app{
		coverage: covSvc,
		billing:  billSvc,
		reports:  reportSvc,
		cache:    reportCache,
		clock:    clk,
		location: loc,
	}, nil
}
