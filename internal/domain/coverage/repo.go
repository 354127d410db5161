package coverage

import (
	"context"

	"github.com/google/uuid"
)

type ServiceRepository interface {
	Create(ctx context.Context, s *BillableService) error
	// GetByID returns ErrServiceNotFound when no row matches.
	GetByID(ctx context.Context, id uuid.UUID) (*BillableService, error)
	List(ctx context.Context, limit, offset int) ([]*BillableService, int, error)
}

type RuleRepository interface {
	// Create returns ErrCoverageRuleConflict if an active rule already exists
	// for the pair.
	Create(ctx context.Context, r *Rule) error
	GetByID(ctx context.Context, id uuid.UUID) (*Rule, error)
	Deactivate(ctx context.Context, id uuid.UUID) error
	// ListActive returns every active rule for the pair. More than one is a
	// data-integrity fault the caller must surface.
	ListActive(ctx context.Context, insuranceID, serviceID uuid.UUID) ([]*Rule, error)
	ListByInsurance(ctx context.Context, insuranceID uuid.UUID, limit, offset int) ([]*Rule, int, error)
}
