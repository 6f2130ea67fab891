package persistence

import (
	"context"

	"github.com/google/uuid"

	"github.com/iota-uz/contracts/modules/contracts/domain/aggregates/flow"
	"github.com/iota-uz/contracts/modules/contracts/domain/entities/approval"
	"github.com/iota-uz/contracts/pkg/composables"
)

// EligibilityResolver answers whether a user may act on a step. Employee
// designations match the user directly; role, position and department
// designations resolve through contract_approver_groups.
type EligibilityResolver struct{}

func NewEligibilityResolver() approval.EligibilityResolver {
	return &EligibilityResolver{}
}

func (r *EligibilityResolver) EligibleApprover(ctx context.Context, instance *approval.Instance, actingUserID uuid.UUID) (bool, error) {
	if instance.ApproverKind == flow.ApproverEmployee {
		return instance.ApproverRef == actingUserID, nil
	}

	tx, err := composables.UseTx(ctx)
	if err != nil {
		return false, err
	}
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return false, err
	}

	var eligible bool
	if err := tx.QueryRow(ctx, `
SELECT EXISTS(
	SELECT 1
	FROM contract_approver_groups
	WHERE tenant_id = $1 AND user_id = $2 AND group_kind = $3 AND group_ref = $4
)`, pgUUID(tenantID), pgUUID(actingUserID), instance.ApproverKind, pgUUID(instance.ApproverRef)).Scan(&eligible); err != nil {
		return false, err
	}
	return eligible, nil
}
