package coverage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Service manages the price catalog and coverage rules and previews splits.
type Service struct {
	services ServiceRepository
	rules    RuleRepository
	calc     *Calculator
	logger   zerolog.Logger
}

func NewService(services ServiceRepository, rules RuleRepository, logger zerolog.Logger) *Service {
	return &Service{
		services: services,
		rules:    rules,
		calc:     NewCalculator(services, rules),
		logger:   logger.With().Str("component", "coverage").Logger(),
	}
}

// Calculator exposes the shared calculator so invoicing can price lines
// through the same path as the preview endpoint.
func (s *Service) Calculator() *Calculator { return s.calc }

// -- Catalog --

func (s *Service) CreateService(ctx context.Context, svc *BillableService) error {
	svc.Name = strings.TrimSpace(svc.Name)
	if svc.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidService)
	}
	if svc.PriceType == "" {
		svc.PriceType = PriceFixed
	}
	if !svc.PriceType.Valid() {
		return fmt.Errorf("%w: invalid price_type %q", ErrInvalidService, svc.PriceType)
	}
	if svc.BasePrice.IsNegative() {
		return fmt.Errorf("%w: base_price cannot be negative", ErrInvalidService)
	}
	svc.BasePrice = svc.BasePrice.Round(2)
	svc.Active = true
	return s.services.Create(ctx, svc)
}

func (s *Service) GetService(ctx context.Context, id uuid.UUID) (*BillableService, error) {
	return s.services.GetByID(ctx, id)
}

func (s *Service) ListServices(ctx context.Context, limit, offset int) ([]*BillableService, int, error) {
	return s.services.List(ctx, limit, offset)
}

// -- Coverage rules --

// CreateRule stores a rule given either as a percent or as a discount on the
// service's base price. Both forms are reduced to the same clamped percent.
func (s *Service) CreateRule(ctx context.Context, in RuleInput) (*Rule, error) {
	if in.InsuranceID == uuid.Nil {
		return nil, fmt.Errorf("%w: insurance_id is required", ErrInvalidCoverage)
	}
	svc, err := s.services.GetByID(ctx, in.ServiceID)
	if err != nil {
		return nil, err
	}
	pct, err := ResolvePercent(in, svc.BasePrice)
	if err != nil {
		return nil, err
	}

	existing, err := s.rules.ListActive(ctx, in.InsuranceID, in.ServiceID)
	if err != nil {
		return nil, fmt.Errorf("lookup coverage rule: %w", err)
	}
	if len(existing) > 0 {
		return nil, fmt.Errorf("%w: insurance %s service %s already has an active rule",
			ErrCoverageRuleConflict, in.InsuranceID, in.ServiceID)
	}

	rule := &Rule{
		InsuranceID:     in.InsuranceID,
		ServiceID:       in.ServiceID,
		CoveragePercent: pct,
		IsActive:        true,
	}
	if err := s.rules.Create(ctx, rule); err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("rule_id", rule.ID.String()).
		Str("insurance_id", rule.InsuranceID.String()).
		Str("service_id", rule.ServiceID.String()).
		Str("coverage_percent", rule.CoveragePercent.StringFixed(2)).
		Msg("coverage rule created")
	return rule, nil
}

func (s *Service) GetRule(ctx context.Context, id uuid.UUID) (*Rule, error) {
	return s.rules.GetByID(ctx, id)
}

func (s *Service) DeactivateRule(ctx context.Context, id uuid.UUID) error {
	if err := s.rules.Deactivate(ctx, id); err != nil {
		return err
	}
	s.logger.Info().Str("rule_id", id.String()).Msg("coverage rule deactivated")
	return nil
}

func (s *Service) ListRules(ctx context.Context, insuranceID uuid.UUID, limit, offset int) ([]*Rule, int, error) {
	return s.rules.ListByInsurance(ctx, insuranceID, limit, offset)
}

// Calculate previews the split without persisting anything.
func (s *Service) Calculate(ctx context.Context, insuranceID *uuid.UUID, lines []LineInput) (*Calculation, error) {
	calc, err := s.calc.Calculate(ctx, insuranceID, lines)
	if errors.Is(err, ErrCoverageRuleConflict) {
		s.logger.Error().Err(err).Msg("conflicting active coverage rules")
	}
	return calc, err
}
