package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/iota-uz/contracts/modules/contracts/domain/aggregates/contract"
	"github.com/iota-uz/contracts/modules/contracts/domain/aggregates/flow"
	"github.com/iota-uz/contracts/pkg/composables"
	"github.com/iota-uz/contracts/pkg/eventbus"
)

type FlowService struct {
	flows     flow.Repository
	contracts contract.Repository
	publisher eventbus.EventBus
}

func NewFlowService(flows flow.Repository, contracts contract.Repository, publisher eventbus.EventBus) *FlowService {
	return &FlowService{
		flows:     flows,
		contracts: contracts,
		publisher: publisher,
	}
}

func (s *FlowService) Create(ctx context.Context, f *flow.Flow) (*flow.Flow, error) {
	if err := validateFlowSteps(f.Steps); err != nil {
		return nil, err
	}
	created, err := composables.InTenantTxResult(ctx, func(txCtx context.Context) (*flow.Flow, error) {
		created, err := s.flows.Create(txCtx, f)
		if err != nil {
			return nil, err
		}
		if f.IsDefault {
			if err := s.flows.SetDefault(txCtx, created.TemplateID, created.ID); err != nil {
				return nil, err
			}
			created.IsDefault = true
		}
		return created, nil
	})
	if err != nil {
		return nil, err
	}
	s.publisher.Publish("contract_flow.created", created)
	return created, nil
}

// Update replaces the flow definition. In-flight contracts are untouched:
// they run on per-contract snapshots taken at submit time.
func (s *FlowService) Update(ctx context.Context, f *flow.Flow) (*flow.Flow, error) {
	if err := validateFlowSteps(f.Steps); err != nil {
		return nil, err
	}
	updated, err := composables.InTenantTxResult(ctx, func(txCtx context.Context) (*flow.Flow, error) {
		return s.flows.Update(txCtx, f)
	})
	if err != nil {
		return nil, notFound(err, ErrFlowNotFound)
	}
	s.publisher.Publish("contract_flow.updated", updated)
	return updated, nil
}

func (s *FlowService) GetByID(ctx context.Context, id uuid.UUID) (*flow.Flow, error) {
	f, err := composables.InTenantTxResult(ctx, func(txCtx context.Context) (*flow.Flow, error) {
		return s.flows.GetByID(txCtx, id)
	})
	if err != nil {
		return nil, notFound(err, ErrFlowNotFound)
	}
	return f, nil
}

func (s *FlowService) GetByTemplate(ctx context.Context, templateID uuid.UUID) ([]*flow.Flow, error) {
	return composables.InTenantTxResult(ctx, func(txCtx context.Context) ([]*flow.Flow, error) {
		return s.flows.GetByTemplate(txCtx, templateID)
	})
}

func (s *FlowService) GetDefault(ctx context.Context, templateID uuid.UUID) (*flow.Flow, error) {
	f, err := composables.InTenantTxResult(ctx, func(txCtx context.Context) (*flow.Flow, error) {
		return s.flows.GetDefault(txCtx, templateID)
	})
	if err != nil {
		return nil, notFound(err, ErrNoFlowDefined)
	}
	return f, nil
}

func (s *FlowService) SetDefault(ctx context.Context, templateID, flowID uuid.UUID) error {
	err := composables.InTenantTx(ctx, func(txCtx context.Context) error {
		return s.flows.SetDefault(txCtx, templateID, flowID)
	})
	if err != nil {
		return notFound(err, ErrFlowNotFound)
	}
	s.publisher.Publish("contract_flow.default_changed", flowID)
	return nil
}

// Delete refuses while contracts are pending on the flow. Finished
// contracts keep their snapshots and are unaffected.
func (s *FlowService) Delete(ctx context.Context, id uuid.UUID) error {
	err := composables.InTenantTx(ctx, func(txCtx context.Context) error {
		n, err := s.contracts.CountActiveByFlow(txCtx, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return ErrFlowInUse
		}
		return s.flows.Delete(txCtx, id)
	})
	if err != nil {
		return notFound(err, ErrFlowNotFound)
	}
	s.publisher.Publish("contract_flow.deleted", id)
	return nil
}

func validateFlowSteps(steps []flow.Step) error {
	if len(steps) == 0 {
		return invalidFlow("a flow needs at least one step")
	}
	for i, s := range steps {
		if s.Order != int32(i+1) {
			return invalidFlow("step orders must be dense starting at 1, got %d at position %d", s.Order, i)
		}
		if !flow.IsValidApproverKind(s.ApproverKind) {
			return invalidFlow("unknown approver kind %q at step %d", s.ApproverKind, s.Order)
		}
		if s.ApproverRef == uuid.Nil {
			return invalidFlow("approver reference is required at step %d", s.Order)
		}
		if !flow.IsValidAction(s.Action) {
			return invalidFlow("unknown action %q at step %d", s.Action, s.Order)
		}
		if s.SignaturePlaceholder != nil && !flow.ActionRequiresSignature(s.Action) {
			return invalidFlow("step %d has a signature placeholder but action %q takes no signature", s.Order, s.Action)
		}
		if s.Terminal && i != len(steps)-1 {
			return invalidFlow("only the last step may be terminal, step %d is not last", s.Order)
		}
	}
	if !steps[len(steps)-1].Terminal {
		return invalidFlow("the last step must be terminal")
	}
	return nil
}
