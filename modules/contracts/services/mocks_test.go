package services

import (
	"context"
	"io"
	"sort"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/contracts/modules/contracts/domain/aggregates/contract"
	"github.com/iota-uz/contracts/modules/contracts/domain/aggregates/flow"
	"github.com/iota-uz/contracts/modules/contracts/domain/entities/approval"
	"github.com/iota-uz/contracts/modules/contracts/domain/entities/template"
	"github.com/iota-uz/contracts/modules/contracts/infrastructure/docs"
	"github.com/iota-uz/contracts/pkg/composables"
	"github.com/iota-uz/contracts/pkg/outbox"
	"github.com/iota-uz/contracts/pkg/repo"
)

// stubTx satisfies pgx.Tx for context plumbing; the in-memory repos
// below never touch the database. Savepoints hand back children that
// share the parent's counters.
type stubTx struct {
	pgx.Tx
	rec *txRecorder
}

type txRecorder struct {
	begins    int
	commits   int
	rollbacks int
}

func (s stubTx) Begin(ctx context.Context) (pgx.Tx, error) {
	s.rec.begins++
	return stubTx{rec: s.rec}, nil
}

func (s stubTx) Commit(ctx context.Context) error {
	s.rec.commits++
	return nil
}

func (s stubTx) Rollback(ctx context.Context) error {
	s.rec.rollbacks++
	return nil
}

func testContext(tb testing.TB) (context.Context, uuid.UUID) {
	ctx, userID, _ := testContextTx(tb)
	return ctx, userID
}

func testContextTx(tb testing.TB) (context.Context, uuid.UUID, *txRecorder) {
	tb.Helper()
	userID := uuid.New()
	rec := &txRecorder{}
	ctx := composables.WithTx(context.Background(), stubTx{rec: rec})
	ctx = composables.WithTenantID(ctx, uuid.New())
	ctx = composables.WithUserID(ctx, userID)
	return ctx, userID, rec
}

func discardLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

type stubPublisher struct {
	topics []string
}

func (s *stubPublisher) Publish(args ...interface{}) {
	if len(args) > 0 {
		if topic, ok := args[0].(string); ok {
			s.topics = append(s.topics, topic)
		}
	}
}
func (s *stubPublisher) Subscribe(handler interface{})   {}
func (s *stubPublisher) Unsubscribe(handler interface{}) {}
func (s *stubPublisher) Clear()                          {}
func (s *stubPublisher) SubscribersCount() int           { return 0 }

type memContracts struct {
	items map[uuid.UUID]*contract.Contract
}

func newMemContracts() *memContracts {
	return &memContracts{items: map[uuid.UUID]*contract.Contract{}}
}

func (m *memContracts) Create(ctx context.Context, c *contract.Contract) (*contract.Contract, error) {
	out := *c
	if out.ID == uuid.Nil {
		out.ID = uuid.New()
	}
	m.items[out.ID] = &out
	return &out, nil
}

func (m *memContracts) GetByID(ctx context.Context, id uuid.UUID) (*contract.Contract, error) {
	c, ok := m.items[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	out := *c
	return &out, nil
}

func (m *memContracts) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*contract.Contract, error) {
	return m.GetByID(ctx, id)
}

func (m *memContracts) GetByTemplate(ctx context.Context, templateID uuid.UUID) ([]*contract.Contract, error) {
	var out []*contract.Contract
	for _, c := range m.items {
		if c.TemplateID == templateID {
			cc := *c
			out = append(out, &cc)
		}
	}
	return out, nil
}

func (m *memContracts) Update(ctx context.Context, c *contract.Contract) error {
	if _, ok := m.items[c.ID]; !ok {
		return pgx.ErrNoRows
	}
	out := *c
	m.items[c.ID] = &out
	return nil
}

func (m *memContracts) CountActiveByFlow(ctx context.Context, flowID uuid.UUID) (int64, error) {
	var n int64
	for _, c := range m.items {
		if c.FlowID != nil && *c.FlowID == flowID && c.Status == contract.StatusPendingApproval {
			n++
		}
	}
	return n, nil
}

type memApprovals struct {
	items map[uuid.UUID]*approval.Instance
}

func newMemApprovals() *memApprovals {
	return &memApprovals{items: map[uuid.UUID]*approval.Instance{}}
}

func (m *memApprovals) CreateBatch(ctx context.Context, instances []*approval.Instance) error {
	for _, i := range instances {
		out := *i
		m.items[out.ID] = &out
	}
	return nil
}

func (m *memApprovals) GetByContract(ctx context.Context, contractID uuid.UUID) ([]*approval.Instance, error) {
	var out []*approval.Instance
	for _, i := range m.items {
		if i.ContractID == contractID {
			ii := *i
			out = append(out, &ii)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Order < out[b].Order })
	return out, nil
}

func (m *memApprovals) GetByID(ctx context.Context, id uuid.UUID) (*approval.Instance, error) {
	i, ok := m.items[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	out := *i
	return &out, nil
}

func (m *memApprovals) Update(ctx context.Context, instance *approval.Instance) error {
	if _, ok := m.items[instance.ID]; !ok {
		return pgx.ErrNoRows
	}
	out := *instance
	m.items[instance.ID] = &out
	return nil
}

func (m *memApprovals) ExistsForContract(ctx context.Context, contractID uuid.UUID) (bool, error) {
	for _, i := range m.items {
		if i.ContractID == contractID {
			return true, nil
		}
	}
	return false, nil
}

type memFlows struct {
	items map[uuid.UUID]*flow.Flow
}

func newMemFlows() *memFlows {
	return &memFlows{items: map[uuid.UUID]*flow.Flow{}}
}

func (m *memFlows) put(f *flow.Flow) {
	out := *f
	out.Steps = append([]flow.Step(nil), f.Steps...)
	m.items[out.ID] = &out
}

func (m *memFlows) Create(ctx context.Context, f *flow.Flow) (*flow.Flow, error) {
	out := *f
	if out.ID == uuid.Nil {
		out.ID = uuid.New()
	}
	out.Steps = append([]flow.Step(nil), f.Steps...)
	for i := range out.Steps {
		if out.Steps[i].ID == uuid.Nil {
			out.Steps[i].ID = uuid.New()
		}
		out.Steps[i].FlowID = out.ID
	}
	m.items[out.ID] = &out
	copied := out
	return &copied, nil
}

func (m *memFlows) Update(ctx context.Context, f *flow.Flow) (*flow.Flow, error) {
	if _, ok := m.items[f.ID]; !ok {
		return nil, pgx.ErrNoRows
	}
	m.put(f)
	out := *m.items[f.ID]
	return &out, nil
}

func (m *memFlows) GetByID(ctx context.Context, id uuid.UUID) (*flow.Flow, error) {
	f, ok := m.items[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	out := *f
	out.Steps = append([]flow.Step(nil), f.Steps...)
	return &out, nil
}

func (m *memFlows) GetByTemplate(ctx context.Context, templateID uuid.UUID) ([]*flow.Flow, error) {
	var out []*flow.Flow
	for _, f := range m.items {
		if f.TemplateID == templateID {
			ff := *f
			out = append(out, &ff)
		}
	}
	return out, nil
}

func (m *memFlows) GetDefault(ctx context.Context, templateID uuid.UUID) (*flow.Flow, error) {
	for _, f := range m.items {
		if f.TemplateID == templateID && f.IsDefault {
			out := *f
			out.Steps = append([]flow.Step(nil), f.Steps...)
			return &out, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *memFlows) SetDefault(ctx context.Context, templateID, flowID uuid.UUID) error {
	target, ok := m.items[flowID]
	if !ok || target.TemplateID != templateID {
		return pgx.ErrNoRows
	}
	for _, f := range m.items {
		if f.TemplateID == templateID {
			f.IsDefault = f.ID == flowID
		}
	}
	return nil
}

func (m *memFlows) Delete(ctx context.Context, id uuid.UUID) error {
	if _, ok := m.items[id]; !ok {
		return pgx.ErrNoRows
	}
	delete(m.items, id)
	return nil
}

type memTemplates struct {
	items map[uuid.UUID]*template.Template
}

func newMemTemplates() *memTemplates {
	return &memTemplates{items: map[uuid.UUID]*template.Template{}}
}

func (m *memTemplates) Create(ctx context.Context, t *template.Template) (*template.Template, error) {
	out := *t
	if out.ID == uuid.Nil {
		out.ID = uuid.New()
	}
	m.items[out.ID] = &out
	return &out, nil
}

func (m *memTemplates) GetByID(ctx context.Context, id uuid.UUID) (*template.Template, error) {
	t, ok := m.items[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	out := *t
	return &out, nil
}

type eligibilityStub struct {
	allow bool
}

func (e *eligibilityStub) EligibleApprover(ctx context.Context, instance *approval.Instance, actingUserID uuid.UUID) (bool, error) {
	return e.allow, nil
}

type captureOutbox struct {
	messages []outbox.Message
}

func (c *captureOutbox) Enqueue(ctx context.Context, tx repo.Tx, table pgx.Identifier, msg outbox.Message) (int64, error) {
	c.messages = append(c.messages, msg)
	return int64(len(c.messages)), nil
}

func (c *captureOutbox) topics() []string {
	out := make([]string, 0, len(c.messages))
	for _, m := range c.messages {
		out = append(out, m.Topic)
	}
	return out
}

type fixture struct {
	contracts   *memContracts
	approvals   *memApprovals
	flows       *memFlows
	templates   *memTemplates
	eligibility *eligibilityStub
	outbox      *captureOutbox
	storage     *docs.Storage
	svc         *ApprovalService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := discardLogger()
	storage := docs.NewStorage(t.TempDir())
	f := &fixture{
		contracts:   newMemContracts(),
		approvals:   newMemApprovals(),
		flows:       newMemFlows(),
		templates:   newMemTemplates(),
		eligibility: &eligibilityStub{allow: true},
		outbox:      &captureOutbox{},
		storage:     storage,
	}
	f.svc = NewApprovalService(
		f.contracts,
		f.approvals,
		f.flows,
		f.templates,
		f.eligibility,
		f.outbox,
		docs.NewRenderer(storage, log),
		docs.NewEmbedder(storage, docs.PositionBottom, log),
		log,
	)
	return f
}

func strptr(s string) *string { return &s }

// seedWorkflow creates a template, a default two step flow (plain
// approval, then a terminal signing approval) and a draft contract.
func (f *fixture) seedWorkflow(t *testing.T) (*contract.Contract, *flow.Flow) {
	t.Helper()
	ctx := context.Background()

	tpl, err := f.templates.Create(ctx, &template.Template{
		Name: "Supply Agreement",
		Body: "# ${title}\n\nTerms apply.\n\n{{CEO_SIGN}}\n",
		Variables: []template.Variable{
			{Name: "title", Required: true},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	fl, err := f.flows.Create(ctx, &flow.Flow{
		TemplateID: tpl.ID,
		Name:       "Two step",
		IsDefault:  true,
		Steps: []flow.Step{
			{
				Order:        1,
				Required:     true,
				ApproverKind: flow.ApproverRole,
				ApproverRef:  uuid.New(),
				Action:       flow.ActionApproveOnly,
			},
			{
				Order:                2,
				Required:             true,
				Terminal:             true,
				ApproverKind:         flow.ApproverEmployee,
				ApproverRef:          uuid.New(),
				Action:               flow.ActionSignThenApprove,
				SignaturePlaceholder: strptr("CEO_SIGN"),
			},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	c, err := f.contracts.Create(ctx, &contract.Contract{
		TemplateID: tpl.ID,
		Title:      "Supply Agreement 2026",
		Number:     "C-0042",
		Status:     contract.StatusDraft,
		AuthorID:   uuid.New(),
	})
	if err != nil {
		t.Fatal(err)
	}
	return c, fl
}
