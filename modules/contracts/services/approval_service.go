package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/contracts/modules/contracts/domain/aggregates/contract"
	"github.com/iota-uz/contracts/modules/contracts/domain/aggregates/flow"
	"github.com/iota-uz/contracts/modules/contracts/domain/entities/approval"
	"github.com/iota-uz/contracts/modules/contracts/domain/entities/template"
	"github.com/iota-uz/contracts/modules/contracts/domain/events"
	"github.com/iota-uz/contracts/modules/contracts/infrastructure/docs"
	infraoutbox "github.com/iota-uz/contracts/modules/contracts/infrastructure/outbox"
	"github.com/iota-uz/contracts/pkg/composables"
	"github.com/iota-uz/contracts/pkg/outbox"
)

// Progress is the read model of a contract's approval state.
type Progress struct {
	Contract *contract.Contract   `json:"contract"`
	Steps    []*approval.Instance `json:"steps"`
	// Current is nil once the contract has left pending approval.
	Current *approval.Instance `json:"current,omitempty"`
}

// ApprovalService drives the contract approval state machine. All state
// transitions run under a row lock on the contract, so concurrent
// decisions on the same contract serialize.
type ApprovalService struct {
	contracts   contract.Repository
	approvals   approval.Repository
	flows       flow.Repository
	templates   template.Repository
	eligibility approval.EligibilityResolver
	publisher   outbox.Publisher
	renderer    *docs.Renderer
	embedder    *docs.Embedder
	log         *logrus.Logger
}

func NewApprovalService(
	contracts contract.Repository,
	approvals approval.Repository,
	flows flow.Repository,
	templates template.Repository,
	eligibility approval.EligibilityResolver,
	publisher outbox.Publisher,
	renderer *docs.Renderer,
	embedder *docs.Embedder,
	log *logrus.Logger,
) *ApprovalService {
	return &ApprovalService{
		contracts:   contracts,
		approvals:   approvals,
		flows:       flows,
		templates:   templates,
		eligibility: eligibility,
		publisher:   publisher,
		renderer:    renderer,
		embedder:    embedder,
		log:         log,
	}
}

// Submit moves a draft contract into approval. The flow's steps are
// snapshotted into per-contract instances and the working document is
// rendered from the template; flow edits after this point never affect
// the running approval.
func (s *ApprovalService) Submit(ctx context.Context, contractID uuid.UUID, flowID *uuid.UUID, values map[string]string) (*Progress, error) {
	userID, err := composables.UseUserID(ctx)
	if err != nil {
		return nil, err
	}
	return composables.InTenantTxResult(ctx, func(txCtx context.Context) (*Progress, error) {
		c, err := s.contracts.GetByIDForUpdate(txCtx, contractID)
		if err != nil {
			return nil, notFound(err, ErrContractNotFound)
		}
		if c.Status != contract.StatusDraft {
			return nil, ErrInvalidState
		}
		exists, err := s.approvals.ExistsForContract(txCtx, contractID)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, ErrInvalidState
		}

		f, err := s.resolveFlow(txCtx, c, flowID)
		if err != nil {
			return nil, err
		}
		if err := validateFlowSteps(f.Steps); err != nil {
			return nil, err
		}

		instances := make([]*approval.Instance, 0, len(f.Steps))
		for _, step := range f.Steps {
			instances = append(instances, approval.FromStep(c.ID, step))
		}
		if err := s.approvals.CreateBatch(txCtx, instances); err != nil {
			return nil, err
		}

		tpl, err := s.templates.GetByID(txCtx, c.TemplateID)
		if err != nil {
			return nil, notFound(err, ErrTemplateNotFound)
		}
		path, err := s.renderer.Render(txCtx, tpl, c, values)
		if err != nil {
			return nil, err
		}
		s.warnPlaceholderMismatch(c, tpl, instances)

		now := time.Now().UTC()
		c.Status = contract.StatusPendingApproval
		c.FlowID = &f.ID
		c.DocumentPath = &path
		if err := s.contracts.Update(txCtx, c); err != nil {
			return nil, err
		}

		if err := s.enqueue(txCtx, events.TopicContractSubmittedV1, events.SubmittedEventV1{
			EventID:      uuid.New(),
			EventVersion: events.EventVersionV1,
			TenantID:     c.TenantID,
			ContractID:   c.ID,
			FlowID:       f.ID,
			StepCount:    len(instances),
			SubmittedBy:  userID,
			SubmittedAt:  now,
		}); err != nil {
			return nil, err
		}
		if err := s.enqueue(txCtx, events.TopicContractDocumentReadyV1, events.DocumentReadyEventV1{
			EventID:      uuid.New(),
			EventVersion: events.EventVersionV1,
			TenantID:     c.TenantID,
			ContractID:   c.ID,
			DocumentPath: path,
			RenderedAt:   now,
		}); err != nil {
			return nil, err
		}

		return buildProgress(c, instances), nil
	})
}

// Decide records an approve or reject on the active step.
func (s *ApprovalService) Decide(ctx context.Context, contractID, instanceID uuid.UUID, approve bool, comment *string) (*Progress, error) {
	userID, err := composables.UseUserID(ctx)
	if err != nil {
		return nil, err
	}
	return composables.InTenantTxResult(ctx, func(txCtx context.Context) (*Progress, error) {
		c, instances, inst, err := s.loadCurrent(txCtx, contractID, instanceID, userID)
		if err != nil {
			return nil, err
		}

		now := time.Now().UTC()
		if approve {
			switch inst.Action {
			case flow.ActionSignOnly:
				// The signature is the decision on these steps.
				return nil, ErrSignatureRequired
			case flow.ActionSignThenApprove:
				if !inst.Signed() {
					return nil, ErrSignatureRequired
				}
			}
			if err := s.approveInstance(txCtx, c, instances, inst, userID, comment, now); err != nil {
				return nil, err
			}
		} else {
			inst.Status = approval.StatusRejected
			inst.IsCurrent = false
			inst.ApproverID = &userID
			inst.Comment = comment
			inst.DecidedAt = &now
			if err := s.approvals.Update(txCtx, inst); err != nil {
				return nil, err
			}
			// Later instances intentionally keep their pending status for
			// the audit trail.
			c.Status = contract.StatusRejected
			if err := s.contracts.Update(txCtx, c); err != nil {
				return nil, err
			}
			s.annotateRejection(c, inst, comment)
		}

		if err := s.enqueueTransition(txCtx, c, inst, now); err != nil {
			return nil, err
		}
		return buildProgress(c, instances), nil
	})
}

// RecordSignature attaches a signature image to the active step and,
// for sign-only steps, treats it as the approval itself.
func (s *ApprovalService) RecordSignature(ctx context.Context, contractID, instanceID uuid.UUID, image []byte, signerName string) (*Progress, error) {
	userID, err := composables.UseUserID(ctx)
	if err != nil {
		return nil, err
	}
	return composables.InTenantTxResult(ctx, func(txCtx context.Context) (*Progress, error) {
		c, instances, inst, err := s.loadCurrent(txCtx, contractID, instanceID, userID)
		if err != nil {
			return nil, err
		}
		if !flow.ActionRequiresSignature(inst.Action) {
			return nil, ErrSignatureNotExpected
		}
		if inst.Signed() {
			return nil, ErrAlreadySigned
		}
		if c.DocumentPath == nil {
			return nil, fmt.Errorf("%w: contract %s has no rendered document", ErrWorkflowBroken, c.ID)
		}

		now := time.Now().UTC()
		token := signatureToken(inst)
		if err := s.embedder.EmbedImage(txCtx, *c.DocumentPath, token, image, signerName, now); err != nil {
			return nil, err
		}

		inst.SignedBy = &userID
		inst.SignedAt = &now

		if inst.Action == flow.ActionSignOnly {
			if err := s.approveInstance(txCtx, c, instances, inst, userID, nil, now); err != nil {
				return nil, err
			}
			if err := s.enqueueTransition(txCtx, c, inst, now); err != nil {
				return nil, err
			}
		} else if err := s.approvals.Update(txCtx, inst); err != nil {
			return nil, err
		}

		return buildProgress(c, instances), nil
	})
}

// GetProgress returns the contract together with its full step trail.
func (s *ApprovalService) GetProgress(ctx context.Context, contractID uuid.UUID) (*Progress, error) {
	return composables.InTenantTxResult(ctx, func(txCtx context.Context) (*Progress, error) {
		c, err := s.contracts.GetByID(txCtx, contractID)
		if err != nil {
			return nil, notFound(err, ErrContractNotFound)
		}
		instances, err := s.approvals.GetByContract(txCtx, contractID)
		if err != nil {
			return nil, err
		}
		return buildProgress(c, instances), nil
	})
}

func (s *ApprovalService) resolveFlow(ctx context.Context, c *contract.Contract, flowID *uuid.UUID) (*flow.Flow, error) {
	if flowID == nil {
		f, err := s.flows.GetDefault(ctx, c.TemplateID)
		if err != nil {
			return nil, notFound(err, ErrNoFlowDefined)
		}
		return f, nil
	}

	f, err := s.flows.GetByID(ctx, *flowID)
	if err != nil {
		return nil, notFound(err, ErrFlowNotFound)
	}
	if f.TemplateID != c.TemplateID {
		return nil, invalidFlow("flow %s belongs to a different template", f.ID)
	}
	if !f.IsDefault {
		def, err := s.flows.GetDefault(ctx, c.TemplateID)
		if err != nil {
			if !errors.Is(err, pgx.ErrNoRows) {
				return nil, err
			}
		} else if !def.AllowOverride {
			return nil, ErrFlowOverrideNotAllowed
		}
	}
	return f, nil
}

// loadCurrent fetches the locked contract and validates that the given
// instance is the active step and the user may act on it.
func (s *ApprovalService) loadCurrent(ctx context.Context, contractID, instanceID, userID uuid.UUID) (*contract.Contract, []*approval.Instance, *approval.Instance, error) {
	c, err := s.contracts.GetByIDForUpdate(ctx, contractID)
	if err != nil {
		return nil, nil, nil, notFound(err, ErrContractNotFound)
	}
	if c.Status != contract.StatusPendingApproval {
		return nil, nil, nil, ErrInvalidState
	}

	instances, err := s.approvals.GetByContract(ctx, contractID)
	if err != nil {
		return nil, nil, nil, err
	}
	var inst *approval.Instance
	for _, i := range instances {
		if i.ID == instanceID {
			inst = i
			break
		}
	}
	if inst == nil {
		return nil, nil, nil, ErrApprovalNotFound
	}
	if !inst.IsCurrent || inst.Status != approval.StatusPending {
		return nil, nil, nil, ErrStepNotCurrent
	}

	eligible, err := s.eligibility.EligibleApprover(ctx, inst, userID)
	if err != nil {
		return nil, nil, nil, err
	}
	if !eligible {
		return nil, nil, nil, ErrNotAuthorized
	}
	return c, instances, inst, nil
}

func (s *ApprovalService) approveInstance(ctx context.Context, c *contract.Contract, instances []*approval.Instance, inst *approval.Instance, userID uuid.UUID, comment *string, now time.Time) error {
	inst.Status = approval.StatusApproved
	inst.IsCurrent = false
	inst.ApproverID = &userID
	inst.Comment = comment
	inst.DecidedAt = &now
	if err := s.approvals.Update(ctx, inst); err != nil {
		return err
	}

	if inst.Terminal {
		c.Status = contract.StatusApproved
		s.annotateApproval(c, now)
	} else {
		next := nextPending(instances, inst.Order)
		if next == nil || next.Order != inst.Order+1 {
			s.log.WithFields(logrus.Fields{
				"contract_id": c.ID,
				"step_order":  inst.Order,
			}).Error("approvals: step chain has a gap")
			return fmt.Errorf("%w: no pending step with order %d on contract %s", ErrWorkflowBroken, inst.Order+1, c.ID)
		}
		next.IsCurrent = true
		if err := s.approvals.Update(ctx, next); err != nil {
			return err
		}
	}
	return s.contracts.Update(ctx, c)
}

// warnPlaceholderMismatch flags steps whose signature placeholder never
// appears in the template body. Submission still proceeds; the signature
// falls back to the configured document position when recorded.
func (s *ApprovalService) warnPlaceholderMismatch(c *contract.Contract, tpl *template.Template, instances []*approval.Instance) {
	tokens := map[string]bool{}
	for _, tok := range docs.SignatureTokens(tpl.Body) {
		tokens[tok] = true
	}
	for _, inst := range instances {
		if inst.SignaturePlaceholder == nil || *inst.SignaturePlaceholder == "" {
			continue
		}
		if !tokens[*inst.SignaturePlaceholder] {
			s.log.WithFields(logrus.Fields{
				"contract_id": c.ID,
				"step_order":  inst.Order,
				"placeholder": *inst.SignaturePlaceholder,
			}).Warn("approvals: signature placeholder not present in template")
		}
	}
}

// annotateApproval stamps the final approval on the document.
// Annotation failure must not roll back the decision.
func (s *ApprovalService) annotateApproval(c *contract.Contract, now time.Time) {
	if c.DocumentPath == nil {
		return
	}
	stamp := "Approved on " + now.Format("2006-01-02 15:04 MST")
	if err := s.embedder.AppendAnnotation(*c.DocumentPath, stamp); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"contract_id": c.ID,
			"path":        *c.DocumentPath,
		}).Warn("approvals: failed to annotate document")
	}
}

// annotateRejection copies the rejection comment into the document.
// Document annotation failure must not roll back the decision.
func (s *ApprovalService) annotateRejection(c *contract.Contract, inst *approval.Instance, comment *string) {
	if comment == nil || c.DocumentPath == nil {
		return
	}
	if err := s.embedder.AppendAnnotation(*c.DocumentPath, "Rejected at step "+fmt.Sprint(inst.Order)+": "+*comment); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"contract_id": c.ID,
			"path":        *c.DocumentPath,
		}).Warn("approvals: failed to annotate document")
	}
}

func (s *ApprovalService) enqueueTransition(ctx context.Context, c *contract.Contract, inst *approval.Instance, now time.Time) error {
	var decidedBy uuid.UUID
	if inst.ApproverID != nil {
		decidedBy = *inst.ApproverID
	} else if inst.SignedBy != nil {
		decidedBy = *inst.SignedBy
	}
	return s.enqueue(ctx, events.TopicContractTransitionV1, events.TransitionEventV1{
		EventID:        uuid.New(),
		EventVersion:   events.EventVersionV1,
		TenantID:       c.TenantID,
		ContractID:     c.ID,
		InstanceID:     inst.ID,
		StepOrder:      inst.Order,
		NewStatus:      inst.Status,
		ContractStatus: c.Status,
		DecidedBy:      decidedBy,
		DecidedAt:      now,
		Comment:        inst.Comment,
		SignedBy:       inst.SignedBy,
	})
}

func (s *ApprovalService) enqueue(ctx context.Context, topic string, payload any) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	var eventID uuid.UUID
	switch ev := payload.(type) {
	case events.SubmittedEventV1:
		eventID = ev.EventID
	case events.TransitionEventV1:
		eventID = ev.EventID
	case events.DocumentReadyEventV1:
		eventID = ev.EventID
	default:
		return fmt.Errorf("approvals: unsupported event payload %T", payload)
	}
	_, err = s.publisher.Enqueue(ctx, tx, infraoutbox.Table, outbox.Message{
		TenantID: tenantID,
		Topic:    topic,
		EventID:  eventID,
		Payload:  body,
	})
	return err
}

func signatureToken(inst *approval.Instance) string {
	if inst.SignaturePlaceholder != nil && *inst.SignaturePlaceholder != "" {
		return *inst.SignaturePlaceholder
	}
	return fmt.Sprintf("SIGNATURE_%d", inst.Order)
}

func nextPending(instances []*approval.Instance, after int32) *approval.Instance {
	var next *approval.Instance
	for _, i := range instances {
		if i.Status != approval.StatusPending || i.Order <= after {
			continue
		}
		if next == nil || i.Order < next.Order {
			next = i
		}
	}
	return next
}

func buildProgress(c *contract.Contract, instances []*approval.Instance) *Progress {
	p := &Progress{Contract: c, Steps: instances}
	if c.Status == contract.StatusPendingApproval {
		for _, i := range instances {
			if i.IsCurrent {
				p.Current = i
				break
			}
		}
	}
	return p
}
