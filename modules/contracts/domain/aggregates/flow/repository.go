package flow

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, f *Flow) (*Flow, error)
	Update(ctx context.Context, f *Flow) (*Flow, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Flow, error)
	GetByTemplate(ctx context.Context, templateID uuid.UUID) ([]*Flow, error)
	GetDefault(ctx context.Context, templateID uuid.UUID) (*Flow, error)
	// SetDefault clears any previously-default flow for the template in the
	// same transaction before marking the new one.
	SetDefault(ctx context.Context, templateID, flowID uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error
}
