package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/contracts/modules/contracts/domain/aggregates/contract"
	"github.com/iota-uz/contracts/modules/contracts/domain/aggregates/flow"
	"github.com/iota-uz/contracts/modules/contracts/domain/entities/approval"
	"github.com/iota-uz/contracts/modules/contracts/domain/events"
	"github.com/iota-uz/contracts/modules/contracts/infrastructure/docs"
)

var pngBytes = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0x00, 0x00, 0x00, 0x0D}

func TestApprovalService_SubmitSnapshotsFlow(t *testing.T) {
	f := newFixture(t)
	c, fl := f.seedWorkflow(t)
	ctx, _ := testContext(t)

	p, err := f.svc.Submit(ctx, c.ID, nil, map[string]string{"title": "Supply Agreement 2026"})
	require.NoError(t, err)

	require.Equal(t, contract.StatusPendingApproval, p.Contract.Status)
	require.NotNil(t, p.Contract.FlowID)
	require.Equal(t, fl.ID, *p.Contract.FlowID)
	require.Len(t, p.Steps, 2)
	require.NotNil(t, p.Current)
	require.Equal(t, int32(1), p.Current.Order)
	require.Equal(t, approval.StatusPending, p.Steps[1].Status)

	require.NotNil(t, p.Contract.DocumentPath)
	data, err := f.storage.Read(*p.Contract.DocumentPath)
	require.NoError(t, err)
	require.Contains(t, string(data), "# Supply Agreement 2026")
	require.Contains(t, string(data), "{{CEO_SIGN}}")

	require.Equal(t, []string{events.TopicContractSubmittedV1, events.TopicContractDocumentReadyV1}, f.outbox.topics())
}

func TestApprovalService_SubmitRequiresDraft(t *testing.T) {
	f := newFixture(t)
	c, _ := f.seedWorkflow(t)
	ctx, _ := testContext(t)

	_, err := f.svc.Submit(ctx, c.ID, nil, map[string]string{"title": "x"})
	require.NoError(t, err)

	_, err = f.svc.Submit(ctx, c.ID, nil, map[string]string{"title": "x"})
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestApprovalService_SubmitRenderFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	c, _ := f.seedWorkflow(t)
	ctx, _, rec := testContextTx(t)

	// Required variable "title" omitted, so rendering fails after the
	// instances were already inserted.
	_, err := f.svc.Submit(ctx, c.ID, nil, map[string]string{})
	var missing *docs.MissingVariablesError
	require.ErrorAs(t, err, &missing)
	require.Equal(t, []string{"title"}, missing.Names)

	// The whole submit ran in one savepoint that was rolled back, so the
	// instance inserts never reach the outer commit.
	require.Equal(t, 1, rec.begins)
	require.Equal(t, 1, rec.rollbacks)
	require.Zero(t, rec.commits)
}

func TestApprovalService_DecideGapInStepChainIsBroken(t *testing.T) {
	f := newFixture(t)
	c, _ := f.seedWorkflow(t)
	ctx, _ := testContext(t)

	p, err := f.svc.Submit(ctx, c.ID, nil, map[string]string{"title": "x"})
	require.NoError(t, err)

	// Corrupt the chain: the second step jumps from order 2 to order 4.
	for _, inst := range f.approvals.items {
		if inst.ContractID == c.ID && inst.Order == 2 {
			inst.Order = 4
		}
	}

	_, err = f.svc.Decide(ctx, c.ID, p.Current.ID, true, nil)
	require.ErrorIs(t, err, ErrWorkflowBroken)
}

func TestApprovalService_SubmitNoFlowDefined(t *testing.T) {
	f := newFixture(t)
	c, fl := f.seedWorkflow(t)
	delete(f.flows.items, fl.ID)
	ctx, _ := testContext(t)

	_, err := f.svc.Submit(ctx, c.ID, nil, map[string]string{"title": "x"})
	require.ErrorIs(t, err, ErrNoFlowDefined)
}

func TestApprovalService_SubmitOverrideNotAllowed(t *testing.T) {
	f := newFixture(t)
	c, fl := f.seedWorkflow(t)
	f.flows.items[fl.ID].AllowOverride = false

	other, err := f.flows.Create(context.Background(), &flow.Flow{
		TemplateID: c.TemplateID,
		Name:       "Alternate",
		Steps: []flow.Step{{
			Order:        1,
			Required:     true,
			Terminal:     true,
			ApproverKind: flow.ApproverEmployee,
			ApproverRef:  uuid.New(),
			Action:       flow.ActionApproveOnly,
		}},
	})
	require.NoError(t, err)

	ctx, _ := testContext(t)
	_, err = f.svc.Submit(ctx, c.ID, &other.ID, map[string]string{"title": "x"})
	require.ErrorIs(t, err, ErrFlowOverrideNotAllowed)
}

func TestApprovalService_FlowEditDoesNotAffectRunningContract(t *testing.T) {
	f := newFixture(t)
	c, fl := f.seedWorkflow(t)
	ctx, _ := testContext(t)

	p, err := f.svc.Submit(ctx, c.ID, nil, map[string]string{"title": "x"})
	require.NoError(t, err)

	// Gut the flow definition after submit.
	f.flows.items[fl.ID].Steps = nil

	p2, err := f.svc.Decide(ctx, c.ID, p.Current.ID, true, nil)
	require.NoError(t, err)
	require.Len(t, p2.Steps, 2)
	require.NotNil(t, p2.Current)
	require.Equal(t, int32(2), p2.Current.Order)
}

func TestApprovalService_DecideApprovesAndAdvances(t *testing.T) {
	f := newFixture(t)
	c, _ := f.seedWorkflow(t)
	ctx, userID := testContext(t)

	p, err := f.svc.Submit(ctx, c.ID, nil, map[string]string{"title": "x"})
	require.NoError(t, err)

	p, err = f.svc.Decide(ctx, c.ID, p.Current.ID, true, strptr("looks fine"))
	require.NoError(t, err)

	require.Equal(t, contract.StatusPendingApproval, p.Contract.Status)
	require.Equal(t, approval.StatusApproved, p.Steps[0].Status)
	require.Equal(t, userID, *p.Steps[0].ApproverID)
	require.False(t, p.Steps[0].IsCurrent)
	require.NotNil(t, p.Current)
	require.Equal(t, int32(2), p.Current.Order)

	topics := f.outbox.topics()
	require.Equal(t, events.TopicContractTransitionV1, topics[len(topics)-1])
}

func TestApprovalService_TerminalApprovalApprovesContract(t *testing.T) {
	f := newFixture(t)
	c, _ := f.seedWorkflow(t)
	ctx, _ := testContext(t)

	p, err := f.svc.Submit(ctx, c.ID, nil, map[string]string{"title": "x"})
	require.NoError(t, err)
	p, err = f.svc.Decide(ctx, c.ID, p.Current.ID, true, nil)
	require.NoError(t, err)

	// Terminal step wants a signature before the approval.
	_, err = f.svc.RecordSignature(ctx, c.ID, p.Current.ID, pngBytes, "Jane Roe")
	require.NoError(t, err)

	p, err = f.svc.Decide(ctx, c.ID, p.Current.ID, true, nil)
	require.NoError(t, err)
	require.Equal(t, contract.StatusApproved, p.Contract.Status)
	require.Nil(t, p.Current)

	data, err := f.storage.Read(*p.Contract.DocumentPath)
	require.NoError(t, err)
	require.Contains(t, string(data), "> Approved on ")
}

func TestApprovalService_RejectLeavesLaterStepsPending(t *testing.T) {
	f := newFixture(t)
	c, _ := f.seedWorkflow(t)
	ctx, _ := testContext(t)

	p, err := f.svc.Submit(ctx, c.ID, nil, map[string]string{"title": "x"})
	require.NoError(t, err)

	p, err = f.svc.Decide(ctx, c.ID, p.Current.ID, false, strptr("pricing is stale"))
	require.NoError(t, err)

	require.Equal(t, contract.StatusRejected, p.Contract.Status)
	require.Equal(t, approval.StatusRejected, p.Steps[0].Status)
	require.Equal(t, approval.StatusPending, p.Steps[1].Status)
	require.Nil(t, p.Current)

	data, err := f.storage.Read(*p.Contract.DocumentPath)
	require.NoError(t, err)
	require.Contains(t, string(data), "> Rejected at step 1: pricing is stale")
}

func TestApprovalService_DecideStepNotCurrent(t *testing.T) {
	f := newFixture(t)
	c, _ := f.seedWorkflow(t)
	ctx, _ := testContext(t)

	p, err := f.svc.Submit(ctx, c.ID, nil, map[string]string{"title": "x"})
	require.NoError(t, err)

	_, err = f.svc.Decide(ctx, c.ID, p.Steps[1].ID, true, nil)
	require.ErrorIs(t, err, ErrStepNotCurrent)
}

func TestApprovalService_SignThenApproveRequiresSignature(t *testing.T) {
	f := newFixture(t)
	c, _ := f.seedWorkflow(t)
	ctx, _ := testContext(t)

	p, err := f.svc.Submit(ctx, c.ID, nil, map[string]string{"title": "x"})
	require.NoError(t, err)
	p, err = f.svc.Decide(ctx, c.ID, p.Current.ID, true, nil)
	require.NoError(t, err)

	_, err = f.svc.Decide(ctx, c.ID, p.Current.ID, true, nil)
	require.ErrorIs(t, err, ErrSignatureRequired)
}

func TestApprovalService_DecideNotAuthorized(t *testing.T) {
	f := newFixture(t)
	c, _ := f.seedWorkflow(t)
	ctx, _ := testContext(t)

	p, err := f.svc.Submit(ctx, c.ID, nil, map[string]string{"title": "x"})
	require.NoError(t, err)

	f.eligibility.allow = false
	_, err = f.svc.Decide(ctx, c.ID, p.Current.ID, true, nil)
	require.ErrorIs(t, err, ErrNotAuthorized)
}

func TestApprovalService_SignOnlyStepApprovesOnSignature(t *testing.T) {
	f := newFixture(t)
	c, fl := f.seedWorkflow(t)
	fl.Steps[1].Action = flow.ActionSignOnly
	f.flows.items[fl.ID].Steps[1].Action = flow.ActionSignOnly
	ctx, userID := testContext(t)

	p, err := f.svc.Submit(ctx, c.ID, nil, map[string]string{"title": "x"})
	require.NoError(t, err)
	p, err = f.svc.Decide(ctx, c.ID, p.Current.ID, true, nil)
	require.NoError(t, err)

	// Approving a sign-only step without a signature is refused.
	_, err = f.svc.Decide(ctx, c.ID, p.Current.ID, true, nil)
	require.ErrorIs(t, err, ErrSignatureRequired)

	p, err = f.svc.RecordSignature(ctx, c.ID, p.Current.ID, pngBytes, "Jane Roe")
	require.NoError(t, err)

	require.Equal(t, contract.StatusApproved, p.Contract.Status)
	require.Equal(t, approval.StatusApproved, p.Steps[1].Status)
	require.Equal(t, userID, *p.Steps[1].SignedBy)

	data, err := f.storage.Read(*p.Contract.DocumentPath)
	require.NoError(t, err)
	require.NotContains(t, string(data), "{{CEO_SIGN}}")
	require.Contains(t, string(data), "signatures/ceo_sign.png")
}

func TestApprovalService_SignatureNotExpectedOnPlainStep(t *testing.T) {
	f := newFixture(t)
	c, _ := f.seedWorkflow(t)
	ctx, _ := testContext(t)

	p, err := f.svc.Submit(ctx, c.ID, nil, map[string]string{"title": "x"})
	require.NoError(t, err)

	_, err = f.svc.RecordSignature(ctx, c.ID, p.Current.ID, pngBytes, "Jane Roe")
	require.ErrorIs(t, err, ErrSignatureNotExpected)
}

func TestApprovalService_DuplicateSignatureRefused(t *testing.T) {
	f := newFixture(t)
	c, _ := f.seedWorkflow(t)
	ctx, _ := testContext(t)

	p, err := f.svc.Submit(ctx, c.ID, nil, map[string]string{"title": "x"})
	require.NoError(t, err)
	p, err = f.svc.Decide(ctx, c.ID, p.Current.ID, true, nil)
	require.NoError(t, err)

	p, err = f.svc.RecordSignature(ctx, c.ID, p.Current.ID, pngBytes, "Jane Roe")
	require.NoError(t, err)

	_, err = f.svc.RecordSignature(ctx, c.ID, p.Current.ID, pngBytes, "Jane Roe")
	require.ErrorIs(t, err, ErrAlreadySigned)
}

func TestApprovalService_GetProgress(t *testing.T) {
	f := newFixture(t)
	c, _ := f.seedWorkflow(t)
	ctx, _ := testContext(t)

	_, err := f.svc.Submit(ctx, c.ID, nil, map[string]string{"title": "x"})
	require.NoError(t, err)

	p, err := f.svc.GetProgress(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, p.Steps, 2)
	require.NotNil(t, p.Current)
	require.Equal(t, int32(1), p.Current.Order)
}

func TestApprovalService_GetProgressUnknownContract(t *testing.T) {
	f := newFixture(t)
	ctx, _ := testContext(t)

	_, err := f.svc.GetProgress(ctx, uuid.New())
	require.ErrorIs(t, err, ErrContractNotFound)
}
