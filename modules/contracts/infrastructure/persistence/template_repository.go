package persistence

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/iota-uz/contracts/modules/contracts/domain/entities/template"
	"github.com/iota-uz/contracts/pkg/composables"
)

type TemplateRepository struct{}

func NewTemplateRepository() template.Repository {
	return &TemplateRepository{}
}

func (r *TemplateRepository) Create(ctx context.Context, t *template.Template) (*template.Template, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}

	variables := "[]"
	if t.Variables != nil {
		b, err := json.Marshal(t.Variables)
		if err != nil {
			return nil, err
		}
		variables = string(b)
	}

	out := *t
	out.TenantID = tenantID
	if err := tx.QueryRow(ctx, `
INSERT INTO contract_templates (tenant_id, name, body, variables)
VALUES ($1, $2, $3, $4::jsonb)
RETURNING id, created_at, updated_at
`, pgUUID(tenantID), t.Name, t.Body, variables).
		Scan(&out.ID, &out.CreatedAt, &out.UpdatedAt); err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *TemplateRepository) GetByID(ctx context.Context, id uuid.UUID) (*template.Template, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}

	var (
		t         template.Template
		variables []byte
	)
	if err := tx.QueryRow(ctx, `
SELECT tenant_id, id, name, body, variables, created_at, updated_at
FROM contract_templates
WHERE tenant_id = $1 AND id = $2
`, pgUUID(tenantID), pgUUID(id)).Scan(
		&t.TenantID,
		&t.ID,
		&t.Name,
		&t.Body,
		&variables,
		&t.CreatedAt,
		&t.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if len(variables) > 0 {
		if err := json.Unmarshal(variables, &t.Variables); err != nil {
			return nil, err
		}
	}
	return &t, nil
}
