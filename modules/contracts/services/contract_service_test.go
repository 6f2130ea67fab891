package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/contracts/modules/contracts/domain/aggregates/contract"
	"github.com/iota-uz/contracts/modules/contracts/domain/entities/template"
)

func TestContractService_CreateRequiresTemplate(t *testing.T) {
	svc := NewContractService(newMemContracts(), newMemTemplates(), &stubPublisher{})
	ctx, _ := testContext(t)

	_, err := svc.Create(ctx, &contract.Contract{TemplateID: uuid.New(), Title: "X"})
	require.ErrorIs(t, err, ErrTemplateNotFound)
}

func TestContractService_CreateStartsAsDraft(t *testing.T) {
	templates := newMemTemplates()
	svc := NewContractService(newMemContracts(), templates, &stubPublisher{})
	ctx, userID := testContext(t)

	tpl, err := templates.Create(context.Background(), &template.Template{Name: "NDA", Body: "text"})
	require.NoError(t, err)

	created, err := svc.Create(ctx, &contract.Contract{
		TemplateID: tpl.ID,
		Title:      "NDA with Acme",
		Number:     "C-1",
		Status:     contract.StatusActive, // ignored
	})
	require.NoError(t, err)
	require.Equal(t, contract.StatusDraft, created.Status)
	require.Equal(t, userID, created.AuthorID)
}

func TestContractService_ActivateRequiresApproved(t *testing.T) {
	contracts := newMemContracts()
	templates := newMemTemplates()
	svc := NewContractService(contracts, templates, &stubPublisher{})
	ctx, _ := testContext(t)

	c, err := contracts.Create(context.Background(), &contract.Contract{Status: contract.StatusDraft})
	require.NoError(t, err)

	_, err = svc.Activate(ctx, c.ID)
	require.ErrorIs(t, err, ErrInvalidState)

	c.Status = contract.StatusApproved
	require.NoError(t, contracts.Update(context.Background(), c))

	activated, err := svc.Activate(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, contract.StatusActive, activated.Status)
}

func TestContractService_TerminateRequiresActive(t *testing.T) {
	contracts := newMemContracts()
	svc := NewContractService(contracts, newMemTemplates(), &stubPublisher{})
	ctx, _ := testContext(t)

	c, err := contracts.Create(context.Background(), &contract.Contract{Status: contract.StatusActive})
	require.NoError(t, err)

	terminated, err := svc.Terminate(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, contract.StatusTerminated, terminated.Status)

	_, err = svc.Terminate(ctx, c.ID)
	require.ErrorIs(t, err, ErrInvalidState)
}
