package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/iota-uz/contracts/modules/contracts/domain/entities/template"
	"github.com/iota-uz/contracts/pkg/composables"
	"github.com/iota-uz/contracts/pkg/eventbus"
	"github.com/iota-uz/contracts/pkg/serrors"
)

type TemplateService struct {
	templates template.Repository
	publisher eventbus.EventBus
}

func NewTemplateService(templates template.Repository, publisher eventbus.EventBus) *TemplateService {
	return &TemplateService{templates: templates, publisher: publisher}
}

func (s *TemplateService) Create(ctx context.Context, t *template.Template) (*template.Template, error) {
	if t.Name == "" {
		return nil, serrors.NewFieldRequiredError("name", "Templates.Errors.NameRequired")
	}
	if t.Body == "" {
		return nil, serrors.NewFieldRequiredError("body", "Templates.Errors.BodyRequired")
	}
	created, err := composables.InTenantTxResult(ctx, func(txCtx context.Context) (*template.Template, error) {
		return s.templates.Create(txCtx, t)
	})
	if err != nil {
		return nil, err
	}
	s.publisher.Publish("contract_template.created", created)
	return created, nil
}

func (s *TemplateService) GetByID(ctx context.Context, id uuid.UUID) (*template.Template, error) {
	t, err := composables.InTenantTxResult(ctx, func(txCtx context.Context) (*template.Template, error) {
		return s.templates.GetByID(txCtx, id)
	})
	if err != nil {
		return nil, notFound(err, ErrTemplateNotFound)
	}
	return t, nil
}
