package persistence

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/iota-uz/contracts/modules/contracts/domain/aggregates/contract"
	"github.com/iota-uz/contracts/pkg/composables"
)

type ContractRepository struct{}

func NewContractRepository() contract.Repository {
	return &ContractRepository{}
}

const contractColumns = `tenant_id, id, template_id, title, number, value::text, status, flow_id, author_id, document_path, created_at, updated_at`

func (r *ContractRepository) Create(ctx context.Context, c *contract.Contract) (*contract.Contract, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}

	out := *c
	out.TenantID = tenantID
	if err := tx.QueryRow(ctx, `
INSERT INTO contracts (tenant_id, template_id, title, number, value, status, author_id)
VALUES ($1, $2, $3, $4, $5::numeric, $6, $7)
RETURNING id, created_at, updated_at
`,
		pgUUID(tenantID),
		pgUUID(c.TemplateID),
		c.Title,
		c.Number,
		c.Value.String(),
		c.Status,
		pgUUID(c.AuthorID),
	).Scan(&out.ID, &out.CreatedAt, &out.UpdatedAt); err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *ContractRepository) GetByID(ctx context.Context, id uuid.UUID) (*contract.Contract, error) {
	return r.getOne(ctx, id, "")
}

func (r *ContractRepository) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*contract.Contract, error) {
	return r.getOne(ctx, id, "FOR UPDATE")
}

func (r *ContractRepository) getOne(ctx context.Context, id uuid.UUID, locking string) (*contract.Contract, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}

	return scanContract(tx.QueryRow(ctx, `
SELECT `+contractColumns+`
FROM contracts
WHERE tenant_id = $1 AND id = $2 `+locking,
		pgUUID(tenantID), pgUUID(id)))
}

func (r *ContractRepository) GetByTemplate(ctx context.Context, templateID uuid.UUID) ([]*contract.Contract, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
SELECT `+contractColumns+`
FROM contracts
WHERE tenant_id = $1 AND template_id = $2
ORDER BY created_at DESC
`, pgUUID(tenantID), pgUUID(templateID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*contract.Contract
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *ContractRepository) Update(ctx context.Context, c *contract.Contract) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `
UPDATE contracts
SET title = $3,
	number = $4,
	value = $5::numeric,
	status = $6,
	flow_id = $7,
	document_path = $8,
	updated_at = now()
WHERE tenant_id = $1 AND id = $2
`,
		pgUUID(tenantID),
		pgUUID(c.ID),
		c.Title,
		c.Number,
		c.Value.String(),
		c.Status,
		pgNullableUUID(c.FlowID),
		pgNullableText(c.DocumentPath),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *ContractRepository) CountActiveByFlow(ctx context.Context, flowID uuid.UUID) (int64, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return 0, err
	}
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return 0, err
	}

	var n int64
	if err := tx.QueryRow(ctx, `
SELECT COUNT(*)
FROM contracts
WHERE tenant_id = $1 AND flow_id = $2 AND status = $3
`, pgUUID(tenantID), pgUUID(flowID), contract.StatusPendingApproval).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func scanContract(row pgx.Row) (*contract.Contract, error) {
	var (
		c     contract.Contract
		value string
	)
	if err := row.Scan(
		&c.TenantID,
		&c.ID,
		&c.TemplateID,
		&c.Title,
		&c.Number,
		&value,
		&c.Status,
		&c.FlowID,
		&c.AuthorID,
		&c.DocumentPath,
		&c.CreatedAt,
		&c.UpdatedAt,
	); err != nil {
		return nil, err
	}
	v, err := decimal.NewFromString(value)
	if err != nil {
		return nil, err
	}
	c.Value = v
	return &c, nil
}
