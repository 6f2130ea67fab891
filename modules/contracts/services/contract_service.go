package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/iota-uz/contracts/modules/contracts/domain/aggregates/contract"
	"github.com/iota-uz/contracts/modules/contracts/domain/entities/template"
	"github.com/iota-uz/contracts/pkg/composables"
	"github.com/iota-uz/contracts/pkg/eventbus"
)

type ContractService struct {
	contracts contract.Repository
	templates template.Repository
	publisher eventbus.EventBus
}

func NewContractService(contracts contract.Repository, templates template.Repository, publisher eventbus.EventBus) *ContractService {
	return &ContractService{
		contracts: contracts,
		templates: templates,
		publisher: publisher,
	}
}

func (s *ContractService) Create(ctx context.Context, c *contract.Contract) (*contract.Contract, error) {
	userID, err := composables.UseUserID(ctx)
	if err != nil {
		return nil, err
	}
	created, err := composables.InTenantTxResult(ctx, func(txCtx context.Context) (*contract.Contract, error) {
		if _, err := s.templates.GetByID(txCtx, c.TemplateID); err != nil {
			return nil, notFound(err, ErrTemplateNotFound)
		}
		c.Status = contract.StatusDraft
		c.AuthorID = userID
		return s.contracts.Create(txCtx, c)
	})
	if err != nil {
		return nil, err
	}
	s.publisher.Publish("contract.created", created)
	return created, nil
}

func (s *ContractService) GetByID(ctx context.Context, id uuid.UUID) (*contract.Contract, error) {
	c, err := composables.InTenantTxResult(ctx, func(txCtx context.Context) (*contract.Contract, error) {
		return s.contracts.GetByID(txCtx, id)
	})
	if err != nil {
		return nil, notFound(err, ErrContractNotFound)
	}
	return c, nil
}

func (s *ContractService) GetByTemplate(ctx context.Context, templateID uuid.UUID) ([]*contract.Contract, error) {
	return composables.InTenantTxResult(ctx, func(txCtx context.Context) ([]*contract.Contract, error) {
		return s.contracts.GetByTemplate(txCtx, templateID)
	})
}

// Activate moves an approved contract into force.
func (s *ContractService) Activate(ctx context.Context, id uuid.UUID) (*contract.Contract, error) {
	c, err := composables.InTenantTxResult(ctx, func(txCtx context.Context) (*contract.Contract, error) {
		c, err := s.contracts.GetByIDForUpdate(txCtx, id)
		if err != nil {
			return nil, notFound(err, ErrContractNotFound)
		}
		if c.Status != contract.StatusApproved {
			return nil, ErrInvalidState
		}
		c.Status = contract.StatusActive
		if err := s.contracts.Update(txCtx, c); err != nil {
			return nil, err
		}
		return c, nil
	})
	if err != nil {
		return nil, err
	}
	s.publisher.Publish("contract.activated", c)
	return c, nil
}

// Terminate ends an active contract early.
func (s *ContractService) Terminate(ctx context.Context, id uuid.UUID) (*contract.Contract, error) {
	c, err := composables.InTenantTxResult(ctx, func(txCtx context.Context) (*contract.Contract, error) {
		c, err := s.contracts.GetByIDForUpdate(txCtx, id)
		if err != nil {
			return nil, notFound(err, ErrContractNotFound)
		}
		if c.Status != contract.StatusActive {
			return nil, ErrInvalidState
		}
		c.Status = contract.StatusTerminated
		if err := s.contracts.Update(txCtx, c); err != nil {
			return nil, err
		}
		return c, nil
	})
	if err != nil {
		return nil, err
	}
	s.publisher.Publish("contract.terminated", c)
	return c, nil
}
