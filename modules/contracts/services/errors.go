package services

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/iota-uz/contracts/pkg/serrors"
)

var (
	ErrContractNotFound = serrors.NewError("CONTRACT_NOT_FOUND", "contract not found", "Contracts.Errors.NotFound")
	ErrTemplateNotFound = serrors.NewError("TEMPLATE_NOT_FOUND", "contract template not found", "Templates.Errors.NotFound")
	ErrFlowNotFound     = serrors.NewError("FLOW_NOT_FOUND", "approval flow not found", "Flows.Errors.NotFound")
	ErrApprovalNotFound = serrors.NewError("APPROVAL_NOT_FOUND", "approval step not found", "Approvals.Errors.NotFound")

	// ErrNoFlowDefined means submit cannot proceed: no flow was given and
	// the template has no default.
	ErrNoFlowDefined          = serrors.NewError("FLOW_NOT_DEFINED", "no approval flow defined for template", "Flows.Errors.NotDefined")
	ErrFlowInvalid            = serrors.NewError("FLOW_INVALID", "approval flow definition is invalid", "Flows.Errors.Invalid")
	ErrFlowInUse              = serrors.NewError("FLOW_IN_USE", "approval flow has contracts in flight", "Flows.Errors.InUse")
	ErrFlowOverrideNotAllowed = serrors.NewError("FLOW_OVERRIDE_NOT_ALLOWED", "template default flow does not allow overrides", "Flows.Errors.OverrideNotAllowed")

	ErrInvalidState         = serrors.NewError("CONTRACT_INVALID_STATE", "contract state does not permit this operation", "Contracts.Errors.InvalidState")
	ErrStepNotCurrent       = serrors.NewError("APPROVAL_STEP_NOT_CURRENT", "approval step is not the active one", "Approvals.Errors.StepNotCurrent")
	ErrSignatureRequired    = serrors.NewError("APPROVAL_SIGNATURE_REQUIRED", "a signature must be recorded before approving", "Approvals.Errors.SignatureRequired")
	ErrSignatureNotExpected = serrors.NewError("APPROVAL_SIGNATURE_NOT_EXPECTED", "this step does not take a signature", "Approvals.Errors.SignatureNotExpected")
	ErrAlreadySigned        = serrors.NewError("APPROVAL_ALREADY_SIGNED", "a signature is already recorded for this step", "Approvals.Errors.AlreadySigned")
	ErrNotAuthorized        = serrors.NewError("APPROVAL_NOT_AUTHORIZED", "user is not an eligible approver for this step", "Approvals.Errors.NotAuthorized")

	// ErrWorkflowBroken indicates corrupted runtime state, e.g. a
	// non-terminal step approved with no successor to activate.
	ErrWorkflowBroken = serrors.NewError("WORKFLOW_BROKEN", "approval workflow state is inconsistent", "Approvals.Errors.WorkflowBroken")
)

func notFound(err error, sentinel error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return sentinel
	}
	return err
}

func invalidFlow(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrFlowInvalid, fmt.Sprintf(format, args...))
}
