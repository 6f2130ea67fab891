package handlers

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/contracts/modules/contracts/domain/aggregates/contract"
	"github.com/iota-uz/contracts/modules/contracts/domain/entities/approval"
	"github.com/iota-uz/contracts/modules/contracts/domain/events"
	"github.com/iota-uz/contracts/modules/contracts/services"
	"github.com/iota-uz/contracts/pkg/outbox"
)

type stubProgress struct {
	progress *services.Progress
}

func (s *stubProgress) GetProgress(ctx context.Context, contractID uuid.UUID) (*services.Progress, error) {
	return s.progress, nil
}

type recordingMessenger struct {
	approvals  []uuid.UUID
	rejections []uuid.UUID
	fail       bool
}

func (m *recordingMessenger) SendApprovalNotice(ctx context.Context, userID uuid.UUID, ev *events.TransitionEventV1) error {
	m.approvals = append(m.approvals, userID)
	if m.fail {
		return errors.New("channel down")
	}
	return nil
}

func (m *recordingMessenger) SendRejectionNotice(ctx context.Context, userID uuid.UUID, ev *events.TransitionEventV1) error {
	m.rejections = append(m.rejections, userID)
	return nil
}

func newNotifier(reader progressReader, messenger Messenger) *TransitionNotifier {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return &TransitionNotifier{approvals: reader, messenger: messenger, log: log}
}

func signedInstance(order int32, signer uuid.UUID, at time.Time) *approval.Instance {
	return &approval.Instance{
		ID:       uuid.New(),
		Order:    order,
		Status:   approval.StatusApproved,
		SignedBy: &signer,
		SignedAt: &at,
	}
}

func TestTransitionNotifier_NotifiesAuthorAndLastSigner(t *testing.T) {
	author := uuid.New()
	earlySigner := uuid.New()
	lateSigner := uuid.New()
	actor := uuid.New()
	decidedAt := time.Now()

	progress := &services.Progress{
		Contract: &contract.Contract{ID: uuid.New(), AuthorID: author, Status: contract.StatusApproved},
		Steps: []*approval.Instance{
			signedInstance(1, earlySigner, decidedAt.Add(-2*time.Hour)),
			signedInstance(2, lateSigner, decidedAt.Add(-time.Hour)),
			{ID: uuid.New(), Order: 3, Status: approval.StatusApproved},
		},
	}
	messenger := &recordingMessenger{}
	n := newNotifier(&stubProgress{progress: progress}, messenger)

	err := n.onTransitionV1(&outbox.Meta{}, &events.TransitionEventV1{
		ContractID: progress.Contract.ID,
		StepOrder:  3,
		NewStatus:  approval.StatusApproved,
		DecidedBy:  actor,
		DecidedAt:  decidedAt,
	})
	require.NoError(t, err)
	require.ElementsMatch(t, []uuid.UUID{author, lateSigner}, messenger.approvals)
	require.Empty(t, messenger.rejections)
}

func TestTransitionNotifier_ExcludesActorAndDeduplicates(t *testing.T) {
	author := uuid.New()

	// The author also signed step 1 and is the actor on step 2.
	progress := &services.Progress{
		Contract: &contract.Contract{ID: uuid.New(), AuthorID: author, Status: contract.StatusApproved},
		Steps:    []*approval.Instance{signedInstance(1, author, time.Now().Add(-time.Hour))},
	}
	messenger := &recordingMessenger{}
	n := newNotifier(&stubProgress{progress: progress}, messenger)

	err := n.onTransitionV1(&outbox.Meta{}, &events.TransitionEventV1{
		ContractID: progress.Contract.ID,
		StepOrder:  2,
		NewStatus:  approval.StatusApproved,
		DecidedBy:  author,
	})
	require.NoError(t, err)
	require.Empty(t, messenger.approvals)
}

func TestTransitionNotifier_RejectionUsesRejectionNotice(t *testing.T) {
	author := uuid.New()
	progress := &services.Progress{
		Contract: &contract.Contract{ID: uuid.New(), AuthorID: author, Status: contract.StatusRejected},
		Steps:    []*approval.Instance{{ID: uuid.New(), Order: 1, Status: approval.StatusRejected}},
	}
	messenger := &recordingMessenger{}
	n := newNotifier(&stubProgress{progress: progress}, messenger)

	err := n.onTransitionV1(&outbox.Meta{}, &events.TransitionEventV1{
		ContractID: progress.Contract.ID,
		StepOrder:  1,
		NewStatus:  approval.StatusRejected,
		DecidedBy:  uuid.New(),
	})
	require.NoError(t, err)
	require.Equal(t, []uuid.UUID{author}, messenger.rejections)
}

func TestTransitionNotifier_DeliveryFailureDoesNotError(t *testing.T) {
	progress := &services.Progress{
		Contract: &contract.Contract{ID: uuid.New(), AuthorID: uuid.New(), Status: contract.StatusApproved},
		Steps:    []*approval.Instance{{ID: uuid.New(), Order: 1, Status: approval.StatusApproved}},
	}
	messenger := &recordingMessenger{fail: true}
	n := newNotifier(&stubProgress{progress: progress}, messenger)

	err := n.onTransitionV1(&outbox.Meta{}, &events.TransitionEventV1{
		ContractID: progress.Contract.ID,
		StepOrder:  1,
		NewStatus:  approval.StatusApproved,
		DecidedBy:  uuid.New(),
	})
	require.NoError(t, err)
	require.Len(t, messenger.approvals, 1)
}
