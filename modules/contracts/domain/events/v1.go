package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	TopicContractSubmittedV1     = "contracts.submitted.v1"
	TopicContractTransitionV1    = "contracts.transition.v1"
	TopicContractDocumentReadyV1 = "contracts.document_ready.v1"
	EventVersionV1               = 1
)

// SubmittedEventV1 is emitted when a contract enters its approval flow.
type SubmittedEventV1 struct {
	EventID      uuid.UUID `json:"event_id"`
	EventVersion int       `json:"event_version"`
	TenantID     uuid.UUID `json:"tenant_id"`
	ContractID   uuid.UUID `json:"contract_id"`
	FlowID       uuid.UUID `json:"flow_id"`
	StepCount    int       `json:"step_count"`
	SubmittedBy  uuid.UUID `json:"submitted_by"`
	SubmittedAt  time.Time `json:"submitted_at"`
}

// TransitionEventV1 is emitted on every approval step decision, including
// signatures recorded on sign-only steps.
type TransitionEventV1 struct {
	EventID        uuid.UUID  `json:"event_id"`
	EventVersion   int        `json:"event_version"`
	TenantID       uuid.UUID  `json:"tenant_id"`
	ContractID     uuid.UUID  `json:"contract_id"`
	InstanceID     uuid.UUID  `json:"instance_id"`
	StepOrder      int32      `json:"step_order"`
	NewStatus      string     `json:"new_status"`
	ContractStatus string     `json:"contract_status"`
	DecidedBy      uuid.UUID  `json:"decided_by"`
	DecidedAt      time.Time  `json:"decided_at"`
	Comment        *string    `json:"comment,omitempty"`
	SignedBy       *uuid.UUID `json:"signed_by,omitempty"`
}

// DocumentReadyEventV1 is emitted after a contract document has been
// rendered from its template.
type DocumentReadyEventV1 struct {
	EventID      uuid.UUID `json:"event_id"`
	EventVersion int       `json:"event_version"`
	TenantID     uuid.UUID `json:"tenant_id"`
	ContractID   uuid.UUID `json:"contract_id"`
	DocumentPath string    `json:"document_path"`
	RenderedAt   time.Time `json:"rendered_at"`
}
