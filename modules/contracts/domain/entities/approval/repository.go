package approval

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	// CreateBatch inserts all instances for a contract in one shot; the
	// caller's transaction guarantees all-or-nothing visibility.
	CreateBatch(ctx context.Context, instances []*Instance) error
	GetByContract(ctx context.Context, contractID uuid.UUID) ([]*Instance, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Instance, error)
	Update(ctx context.Context, instance *Instance) error
	ExistsForContract(ctx context.Context, contractID uuid.UUID) (bool, error)
}

// EligibilityResolver is the authorization collaborator: it decides
// whether the acting user may decide or sign the given step snapshot.
type EligibilityResolver interface {
	EligibleApprover(ctx context.Context, instance *Instance, actingUserID uuid.UUID) (bool, error)
}
