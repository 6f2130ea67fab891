package contracts

import (
	"github.com/iota-uz/contracts/modules/contracts/handlers"
	"github.com/iota-uz/contracts/modules/contracts/infrastructure/docs"
	"github.com/iota-uz/contracts/modules/contracts/infrastructure/persistence"
	"github.com/iota-uz/contracts/modules/contracts/presentation/controllers"
	"github.com/iota-uz/contracts/modules/contracts/services"
	"github.com/iota-uz/contracts/pkg/application"
	"github.com/iota-uz/contracts/pkg/configuration"
	"github.com/iota-uz/contracts/pkg/outbox"
)

func NewModule() application.Module {
	return &Module{}
}

type Module struct {
}

func (m *Module) Register(app application.Application) error {
	conf := configuration.Use()
	storage := docs.NewStorage(conf.Documents.BasePath)
	renderer := docs.NewRenderer(storage, app.Logger())
	embedder := docs.NewEmbedder(storage, conf.Documents.SignatureFallbackPosition, app.Logger())

	contractRepo := persistence.NewContractRepository()
	approvalRepo := persistence.NewApprovalRepository()
	flowRepo := persistence.NewFlowRepository()
	templateRepo := persistence.NewTemplateRepository()

	app.RegisterServices(
		services.NewTemplateService(templateRepo, app.EventPublisher()),
		services.NewFlowService(flowRepo, contractRepo, app.EventPublisher()),
		services.NewContractService(contractRepo, templateRepo, app.EventPublisher()),
		services.NewApprovalService(
			contractRepo,
			approvalRepo,
			flowRepo,
			templateRepo,
			persistence.NewEligibilityResolver(),
			outbox.NewPublisher(),
			renderer,
			embedder,
			app.Logger(),
		),
	)
	app.RegisterControllers(
		controllers.NewContractsAPIController(app),
	)
	handlers.RegisterTransitionNotifier(app, handlers.NewLogMessenger(app.Logger()))
	return nil
}

func (m *Module) Name() string {
	return "contracts"
}
