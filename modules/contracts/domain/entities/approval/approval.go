package approval

import (
	"time"

	"github.com/google/uuid"

	"github.com/iota-uz/contracts/modules/contracts/domain/aggregates/flow"
)

const (
	StatusPending   = "pending"
	StatusApproved  = "approved"
	StatusRejected  = "rejected"
	StatusSkipped   = "skipped"
	StatusCancelled = "cancelled"
)

// Instance is the per-contract, per-step runtime record: a frozen copy of
// the originating step definition plus the mutable decision state. Later
// edits to the flow template never alter these snapshot fields.
type Instance struct {
	TenantID   uuid.UUID `json:"tenant_id"`
	ID         uuid.UUID `json:"id"`
	ContractID uuid.UUID `json:"contract_id"`
	// StepID references the originating step definition for traceability
	// only; the fields below are the authoritative snapshot.
	StepID uuid.UUID `json:"step_id"`

	Order                int32     `json:"order"`
	Required             bool      `json:"required"`
	Terminal             bool      `json:"terminal"`
	ApproverKind         string    `json:"approver_kind"`
	ApproverRef          uuid.UUID `json:"approver_ref"`
	Action               string    `json:"action"`
	SignaturePlaceholder *string   `json:"signature_placeholder,omitempty"`

	Status     string     `json:"status"`
	IsCurrent  bool       `json:"is_current"`
	ApproverID *uuid.UUID `json:"approver_id,omitempty"`
	Comment    *string    `json:"comment,omitempty"`
	SignedBy   *uuid.UUID `json:"signed_by,omitempty"`
	SignedAt   *time.Time `json:"signed_at,omitempty"`
	DecidedAt  *time.Time `json:"decided_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// FromStep snapshots a step definition into a pending instance bound to
// the contract.
func FromStep(contractID uuid.UUID, s flow.Step) *Instance {
	var placeholder *string
	if s.SignaturePlaceholder != nil {
		v := *s.SignaturePlaceholder
		placeholder = &v
	}
	return &Instance{
		TenantID:             s.TenantID,
		ID:                   uuid.New(),
		ContractID:           contractID,
		StepID:               s.ID,
		Order:                s.Order,
		Required:             s.Required,
		Terminal:             s.Terminal,
		ApproverKind:         s.ApproverKind,
		ApproverRef:          s.ApproverRef,
		Action:               s.Action,
		SignaturePlaceholder: placeholder,
		Status:               StatusPending,
		IsCurrent:            s.Order == 1,
	}
}

// Signed reports whether a signature has been recorded for the instance.
func (i *Instance) Signed() bool {
	return i.SignedBy != nil
}
