package persistence

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/iota-uz/contracts/modules/contracts/domain/entities/approval"
	"github.com/iota-uz/contracts/pkg/composables"
)

type ApprovalRepository struct{}

func NewApprovalRepository() approval.Repository {
	return &ApprovalRepository{}
}

const approvalColumns = `tenant_id, id, contract_id, step_id, step_order, required, terminal,
	approver_kind, approver_ref, action, signature_placeholder,
	status, is_current, approver_id, comment, signed_by, signed_at, decided_at,
	created_at, updated_at`

func (r *ApprovalRepository) CreateBatch(ctx context.Context, instances []*approval.Instance) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return err
	}

	for _, inst := range instances {
		inst.TenantID = tenantID
		if err := tx.QueryRow(ctx, `
INSERT INTO contract_approvals (
	tenant_id,
	id,
	contract_id,
	step_id,
	step_order,
	required,
	terminal,
	approver_kind,
	approver_ref,
	action,
	signature_placeholder,
	status,
	is_current
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
RETURNING created_at, updated_at
`,
			pgUUID(tenantID),
			pgUUID(inst.ID),
			pgUUID(inst.ContractID),
			pgUUID(inst.StepID),
			inst.Order,
			inst.Required,
			inst.Terminal,
			inst.ApproverKind,
			pgUUID(inst.ApproverRef),
			inst.Action,
			pgNullableText(inst.SignaturePlaceholder),
			inst.Status,
			inst.IsCurrent,
		).Scan(&inst.CreatedAt, &inst.UpdatedAt); err != nil {
			return err
		}
	}
	return nil
}

func (r *ApprovalRepository) GetByContract(ctx context.Context, contractID uuid.UUID) ([]*approval.Instance, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
SELECT `+approvalColumns+`
FROM contract_approvals
WHERE tenant_id = $1 AND contract_id = $2
ORDER BY step_order
`, pgUUID(tenantID), pgUUID(contractID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*approval.Instance
	for rows.Next() {
		inst, err := scanApproval(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, rows.Err()
}

func (r *ApprovalRepository) GetByID(ctx context.Context, id uuid.UUID) (*approval.Instance, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}

	return scanApproval(tx.QueryRow(ctx, `
SELECT `+approvalColumns+`
FROM contract_approvals
WHERE tenant_id = $1 AND id = $2
`, pgUUID(tenantID), pgUUID(id)))
}

func (r *ApprovalRepository) Update(ctx context.Context, inst *approval.Instance) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `
UPDATE contract_approvals
SET status = $3,
	is_current = $4,
	approver_id = $5,
	comment = $6,
	signed_by = $7,
	signed_at = $8,
	decided_at = $9,
	updated_at = now()
WHERE tenant_id = $1 AND id = $2
`,
		pgUUID(tenantID),
		pgUUID(inst.ID),
		inst.Status,
		inst.IsCurrent,
		pgNullableUUID(inst.ApproverID),
		pgNullableText(inst.Comment),
		pgNullableUUID(inst.SignedBy),
		pgNullableTime(inst.SignedAt),
		pgNullableTime(inst.DecidedAt),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *ApprovalRepository) ExistsForContract(ctx context.Context, contractID uuid.UUID) (bool, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return false, err
	}
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return false, err
	}

	var exists bool
	if err := tx.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM contract_approvals WHERE tenant_id = $1 AND contract_id = $2)`,
		pgUUID(tenantID), pgUUID(contractID)).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func scanApproval(row pgx.Row) (*approval.Instance, error) {
	var inst approval.Instance
	if err := row.Scan(
		&inst.TenantID,
		&inst.ID,
		&inst.ContractID,
		&inst.StepID,
		&inst.Order,
		&inst.Required,
		&inst.Terminal,
		&inst.ApproverKind,
		&inst.ApproverRef,
		&inst.Action,
		&inst.SignaturePlaceholder,
		&inst.Status,
		&inst.IsCurrent,
		&inst.ApproverID,
		&inst.Comment,
		&inst.SignedBy,
		&inst.SignedAt,
		&inst.DecidedAt,
		&inst.CreatedAt,
		&inst.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &inst, nil
}
