package handlers

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/contracts/modules/contracts/domain/aggregates/contract"
	"github.com/iota-uz/contracts/modules/contracts/domain/aggregates/flow"
	"github.com/iota-uz/contracts/modules/contracts/domain/entities/approval"
	"github.com/iota-uz/contracts/modules/contracts/domain/events"
	"github.com/iota-uz/contracts/modules/contracts/services"
	"github.com/iota-uz/contracts/pkg/application"
	"github.com/iota-uz/contracts/pkg/composables"
	"github.com/iota-uz/contracts/pkg/outbox"
)

// Messenger delivers step transition notices to users. Implementations
// wrap whatever channel the deployment uses (mail, chat, sms).
type Messenger interface {
	SendApprovalNotice(ctx context.Context, userID uuid.UUID, ev *events.TransitionEventV1) error
	SendRejectionNotice(ctx context.Context, userID uuid.UUID, ev *events.TransitionEventV1) error
}

// TransitionNotifier subscribes to contract transition events and fans
// them out to the people involved: the author and the most recent prior
// signer, minus the actor.
type progressReader interface {
	GetProgress(ctx context.Context, contractID uuid.UUID) (*services.Progress, error)
}

type TransitionNotifier struct {
	pool      *pgxpool.Pool
	approvals progressReader
	messenger Messenger
	log       *logrus.Logger
}

func RegisterTransitionNotifier(app application.Application, messenger Messenger) {
	n := &TransitionNotifier{
		pool:      app.DB(),
		approvals: app.Service(services.ApprovalService{}).(*services.ApprovalService),
		messenger: messenger,
		log:       app.Logger(),
	}
	app.EventPublisher().Subscribe(n.onTransitionV1)
}

func (n *TransitionNotifier) onTransitionV1(meta *outbox.Meta, ev *events.TransitionEventV1) error {
	if n == nil || n.messenger == nil || meta == nil || ev == nil {
		return nil
	}

	ctx := composables.WithPool(context.Background(), n.pool)
	ctx = composables.WithTenantID(ctx, ev.TenantID)
	recipients, err := n.recipients(ctx, ev)
	if err != nil {
		return err
	}

	// Delivery is best effort per recipient; one failed channel must not
	// block the rest or requeue the event.
	for _, userID := range recipients {
		var sendErr error
		if ev.NewStatus == approval.StatusRejected {
			sendErr = n.messenger.SendRejectionNotice(ctx, userID, ev)
		} else {
			sendErr = n.messenger.SendApprovalNotice(ctx, userID, ev)
		}
		if sendErr != nil {
			n.log.WithError(sendErr).WithFields(logrus.Fields{
				"contract_id": ev.ContractID,
				"user_id":     userID,
			}).Warn("notifier: failed to deliver transition notice")
		}
	}
	return nil
}

func (n *TransitionNotifier) recipients(ctx context.Context, ev *events.TransitionEventV1) ([]uuid.UUID, error) {
	progress, err := n.approvals.GetProgress(ctx, ev.ContractID)
	if err != nil {
		return nil, err
	}

	seen := map[uuid.UUID]struct{}{ev.DecidedBy: {}}
	var out []uuid.UUID
	add := func(id uuid.UUID) {
		if id == uuid.Nil {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}

	add(progress.Contract.AuthorID)
	if signer := lastSignerBefore(progress.Steps, ev); signer != nil {
		add(*signer)
	}

	// On final approval also tell the next actor there is nothing left to
	// do; on an intermediate approval tell the newly active approver when
	// the step names a specific employee.
	if progress.Contract.Status == contract.StatusPendingApproval && progress.Current != nil &&
		progress.Current.ApproverKind == flow.ApproverEmployee {
		add(progress.Current.ApproverRef)
	}
	return out, nil
}

// lastSignerBefore picks the most recent signer whose signature landed
// strictly before the decision, falling back to the most recent signer
// overall when none did.
func lastSignerBefore(steps []*approval.Instance, ev *events.TransitionEventV1) *uuid.UUID {
	var before, overall *approval.Instance
	for _, step := range steps {
		if step.SignedBy == nil || step.SignedAt == nil {
			continue
		}
		if overall == nil || step.SignedAt.After(*overall.SignedAt) {
			overall = step
		}
		if step.SignedAt.Before(ev.DecidedAt) && (before == nil || step.SignedAt.After(*before.SignedAt)) {
			before = step
		}
	}
	if before != nil {
		return before.SignedBy
	}
	if overall != nil {
		return overall.SignedBy
	}
	return nil
}
