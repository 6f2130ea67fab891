package contract

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	StatusDraft           = "draft"
	StatusPendingApproval = "pending_approval"
	StatusApproved        = "approved"
	StatusRejected        = "rejected"
	StatusActive          = "active"
	StatusExpired         = "expired"
	StatusTerminated      = "terminated"
)

// Contract is the subject the approval state machine mutates. FlowID is
// nil until the contract is submitted for approval.
type Contract struct {
	TenantID     uuid.UUID       `json:"tenant_id"`
	ID           uuid.UUID       `json:"id"`
	TemplateID   uuid.UUID       `json:"template_id"`
	Title        string          `json:"title"`
	Number       string          `json:"number"`
	Value        decimal.Decimal `json:"value"`
	Status       string          `json:"status"`
	FlowID       *uuid.UUID      `json:"flow_id,omitempty"`
	AuthorID     uuid.UUID       `json:"author_id"`
	DocumentPath *string         `json:"document_path,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}
