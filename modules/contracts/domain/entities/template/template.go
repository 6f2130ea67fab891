package template

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Variable is a named substitution slot (${name}) in a template body.
type Variable struct {
	Name     string `json:"name"`
	Required bool   `json:"required"`
}

// Template is the authored source a contract document is rendered from.
// The body carries ${name} variable slots and {{TOKEN}} signature slots.
type Template struct {
	TenantID  uuid.UUID  `json:"tenant_id"`
	ID        uuid.UUID  `json:"id"`
	Name      string     `json:"name"`
	Body      string     `json:"body"`
	Variables []Variable `json:"variables"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

type Repository interface {
	Create(ctx context.Context, t *Template) (*Template, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Template, error)
}
