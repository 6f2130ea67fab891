package flow

import (
	"time"

	"github.com/google/uuid"
)

// Approver designation kinds. Anything other than a specific employee is
// resolved to an actual approver at decision time by the eligibility
// collaborator.
const (
	ApproverEmployee   = "employee"
	ApproverRole       = "role"
	ApproverPosition   = "position"
	ApproverDepartment = "department"
)

// Step action kinds.
const (
	ActionApproveOnly     = "approve_only"
	ActionSignOnly        = "sign_only"
	ActionSignThenApprove = "sign_then_approve"
)

func IsValidApproverKind(kind string) bool {
	switch kind {
	case ApproverEmployee, ApproverRole, ApproverPosition, ApproverDepartment:
		return true
	}
	return false
}

func IsValidAction(action string) bool {
	switch action {
	case ActionApproveOnly, ActionSignOnly, ActionSignThenApprove:
		return true
	}
	return false
}

// ActionRequiresSignature reports whether a step with this action binds a
// signature placeholder into the rendered document.
func ActionRequiresSignature(action string) bool {
	return action == ActionSignOnly || action == ActionSignThenApprove
}

// Step is one position in a flow: who must act, what action kind is
// required, and whether approving it finalizes the contract.
type Step struct {
	TenantID             uuid.UUID `json:"tenant_id"`
	ID                   uuid.UUID `json:"id"`
	FlowID               uuid.UUID `json:"flow_id"`
	Order                int32     `json:"order"`
	Required             bool      `json:"required"`
	Terminal             bool      `json:"terminal"`
	ApproverKind         string    `json:"approver_kind"`
	ApproverRef          uuid.UUID `json:"approver_ref"`
	Action               string    `json:"action"`
	SignaturePlaceholder *string   `json:"signature_placeholder,omitempty"`
}

// Flow is a reusable, named ordered list of approval step definitions
// bound to a contract template.
type Flow struct {
	TenantID      uuid.UUID `json:"tenant_id"`
	ID            uuid.UUID `json:"id"`
	TemplateID    uuid.UUID `json:"template_id"`
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	IsDefault     bool      `json:"is_default"`
	AllowOverride bool      `json:"allow_override"`
	Steps         []Step    `json:"steps"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// TerminalStep returns the step marked terminal, or nil.
func (f *Flow) TerminalStep() *Step {
	for i := range f.Steps {
		if f.Steps[i].Terminal {
			return &f.Steps[i]
		}
	}
	return nil
}
