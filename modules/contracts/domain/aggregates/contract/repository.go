package contract

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, c *Contract) (*Contract, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Contract, error)
	// GetByIDForUpdate takes a row lock on the contract, serializing
	// concurrent state transitions for the same contract.
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*Contract, error)
	GetByTemplate(ctx context.Context, templateID uuid.UUID) ([]*Contract, error)
	Update(ctx context.Context, c *Contract) error
	// CountActiveByFlow reports in-flight contracts referencing a flow.
	CountActiveByFlow(ctx context.Context, flowID uuid.UUID) (int64, error)
}
