package persistence

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/iota-uz/contracts/modules/contracts/domain/aggregates/flow"
	"github.com/iota-uz/contracts/pkg/composables"
)

type FlowRepository struct{}

func NewFlowRepository() flow.Repository {
	return &FlowRepository{}
}

func (r *FlowRepository) Create(ctx context.Context, f *flow.Flow) (*flow.Flow, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}

	out := *f
	out.TenantID = tenantID
	if err := tx.QueryRow(ctx, `
INSERT INTO contract_flows (tenant_id, template_id, name, description, is_default, allow_override)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id, created_at, updated_at
`, pgUUID(tenantID), pgUUID(f.TemplateID), f.Name, f.Description, f.IsDefault, f.AllowOverride).
		Scan(&out.ID, &out.CreatedAt, &out.UpdatedAt); err != nil {
		return nil, err
	}

	steps, err := r.insertSteps(ctx, tenantID, out.ID, f.Steps)
	if err != nil {
		return nil, err
	}
	out.Steps = steps
	return &out, nil
}

func (r *FlowRepository) Update(ctx context.Context, f *flow.Flow) (*flow.Flow, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}

	out := *f
	out.TenantID = tenantID
	if err := tx.QueryRow(ctx, `
UPDATE contract_flows
SET name = $3, description = $4, allow_override = $5, updated_at = now()
WHERE tenant_id = $1 AND id = $2
RETURNING template_id, is_default, created_at, updated_at
`, pgUUID(tenantID), pgUUID(f.ID), f.Name, f.Description, f.AllowOverride).
		Scan(&out.TemplateID, &out.IsDefault, &out.CreatedAt, &out.UpdatedAt); err != nil {
		return nil, err
	}

	// Steps are replaced wholesale. Running contracts are unaffected since
	// they operate on frozen per-contract snapshots.
	if _, err := tx.Exec(ctx, `DELETE FROM contract_flow_steps WHERE tenant_id = $1 AND flow_id = $2`,
		pgUUID(tenantID), pgUUID(f.ID)); err != nil {
		return nil, err
	}
	steps, err := r.insertSteps(ctx, tenantID, f.ID, f.Steps)
	if err != nil {
		return nil, err
	}
	out.Steps = steps
	return &out, nil
}

func (r *FlowRepository) insertSteps(ctx context.Context, tenantID, flowID uuid.UUID, steps []flow.Step) ([]flow.Step, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]flow.Step, 0, len(steps))
	for _, s := range steps {
		row := s
		row.TenantID = tenantID
		row.FlowID = flowID
		if err := tx.QueryRow(ctx, `
INSERT INTO contract_flow_steps (
	tenant_id,
	flow_id,
	step_order,
	required,
	terminal,
	approver_kind,
	approver_ref,
	action,
	signature_placeholder
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING id
`,
			pgUUID(tenantID),
			pgUUID(flowID),
			s.Order,
			s.Required,
			s.Terminal,
			s.ApproverKind,
			pgUUID(s.ApproverRef),
			s.Action,
			pgNullableText(s.SignaturePlaceholder),
		).Scan(&row.ID); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, nil
}

func (r *FlowRepository) GetByID(ctx context.Context, id uuid.UUID) (*flow.Flow, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}

	f, err := scanFlow(tx.QueryRow(ctx, `
SELECT tenant_id, id, template_id, name, description, is_default, allow_override, created_at, updated_at
FROM contract_flows
WHERE tenant_id = $1 AND id = $2
`, pgUUID(tenantID), pgUUID(id)))
	if err != nil {
		return nil, err
	}
	if f.Steps, err = r.loadSteps(ctx, tenantID, f.ID); err != nil {
		return nil, err
	}
	return f, nil
}

func (r *FlowRepository) GetByTemplate(ctx context.Context, templateID uuid.UUID) ([]*flow.Flow, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
SELECT tenant_id, id, template_id, name, description, is_default, allow_override, created_at, updated_at
FROM contract_flows
WHERE tenant_id = $1 AND template_id = $2
ORDER BY created_at
`, pgUUID(tenantID), pgUUID(templateID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*flow.Flow
	for rows.Next() {
		f, err := scanFlow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, f := range out {
		if f.Steps, err = r.loadSteps(ctx, tenantID, f.ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *FlowRepository) GetDefault(ctx context.Context, templateID uuid.UUID) (*flow.Flow, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}

	f, err := scanFlow(tx.QueryRow(ctx, `
SELECT tenant_id, id, template_id, name, description, is_default, allow_override, created_at, updated_at
FROM contract_flows
WHERE tenant_id = $1 AND template_id = $2 AND is_default = true
`, pgUUID(tenantID), pgUUID(templateID)))
	if err != nil {
		return nil, err
	}
	if f.Steps, err = r.loadSteps(ctx, tenantID, f.ID); err != nil {
		return nil, err
	}
	return f, nil
}

func (r *FlowRepository) SetDefault(ctx context.Context, templateID, flowID uuid.UUID) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `
UPDATE contract_flows SET is_default = false, updated_at = now()
WHERE tenant_id = $1 AND template_id = $2 AND is_default = true
`, pgUUID(tenantID), pgUUID(templateID)); err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, `
UPDATE contract_flows SET is_default = true, updated_at = now()
WHERE tenant_id = $1 AND template_id = $2 AND id = $3
`, pgUUID(tenantID), pgUUID(templateID), pgUUID(flowID))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *FlowRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `DELETE FROM contract_flow_steps WHERE tenant_id = $1 AND flow_id = $2`,
		pgUUID(tenantID), pgUUID(id)); err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, `DELETE FROM contract_flows WHERE tenant_id = $1 AND id = $2`,
		pgUUID(tenantID), pgUUID(id))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *FlowRepository) loadSteps(ctx context.Context, tenantID, flowID uuid.UUID) ([]flow.Step, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
SELECT tenant_id, id, flow_id, step_order, required, terminal, approver_kind, approver_ref, action, signature_placeholder
FROM contract_flow_steps
WHERE tenant_id = $1 AND flow_id = $2
ORDER BY step_order
`, pgUUID(tenantID), pgUUID(flowID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []flow.Step
	for rows.Next() {
		var s flow.Step
		if err := rows.Scan(
			&s.TenantID,
			&s.ID,
			&s.FlowID,
			&s.Order,
			&s.Required,
			&s.Terminal,
			&s.ApproverKind,
			&s.ApproverRef,
			&s.Action,
			&s.SignaturePlaceholder,
		); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanFlow(row pgx.Row) (*flow.Flow, error) {
	var f flow.Flow
	if err := row.Scan(
		&f.TenantID,
		&f.ID,
		&f.TemplateID,
		&f.Name,
		&f.Description,
		&f.IsDefault,
		&f.AllowOverride,
		&f.CreatedAt,
		&f.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &f, nil
}
