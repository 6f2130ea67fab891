package controllers

import (
	"encoding/base64"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/iota-uz/contracts/modules/contracts/domain/aggregates/contract"
	"github.com/iota-uz/contracts/modules/contracts/domain/aggregates/flow"
	"github.com/iota-uz/contracts/modules/contracts/domain/entities/template"
	"github.com/iota-uz/contracts/modules/contracts/services"
	"github.com/iota-uz/contracts/pkg/application"
	"github.com/iota-uz/contracts/pkg/httpapi"
)

type ContractsAPIController struct {
	app       application.Application
	templates *services.TemplateService
	flows     *services.FlowService
	contracts *services.ContractService
	approvals *services.ApprovalService
	apiPrefix string
}

func NewContractsAPIController(app application.Application) application.Controller {
	return &ContractsAPIController{
		app:       app,
		templates: app.Service(services.TemplateService{}).(*services.TemplateService),
		flows:     app.Service(services.FlowService{}).(*services.FlowService),
		contracts: app.Service(services.ContractService{}).(*services.ContractService),
		approvals: app.Service(services.ApprovalService{}).(*services.ApprovalService),
		apiPrefix: "/contracts/api",
	}
}

func (c *ContractsAPIController) Key() string {
	return c.apiPrefix
}

func (c *ContractsAPIController) Register(r *mux.Router) {
	api := r.PathPrefix(c.apiPrefix).Subrouter()

	api.HandleFunc("/templates", c.CreateTemplate).Methods(http.MethodPost)
	api.HandleFunc("/templates/{id}", c.GetTemplate).Methods(http.MethodGet)
	api.HandleFunc("/templates/{id}/flows", c.ListFlows).Methods(http.MethodGet)

	api.HandleFunc("/flows", c.CreateFlow).Methods(http.MethodPost)
	api.HandleFunc("/flows/{id}", c.GetFlow).Methods(http.MethodGet)
	api.HandleFunc("/flows/{id}", c.UpdateFlow).Methods(http.MethodPatch)
	api.HandleFunc("/flows/{id}", c.DeleteFlow).Methods(http.MethodDelete)
	api.HandleFunc("/flows/{id}:set-default", c.SetDefaultFlow).Methods(http.MethodPost)

	api.HandleFunc("/contracts", c.CreateContract).Methods(http.MethodPost)
	api.HandleFunc("/contracts/{id}", c.GetContract).Methods(http.MethodGet)
	api.HandleFunc("/contracts/{id}/progress", c.GetProgress).Methods(http.MethodGet)
	api.HandleFunc("/contracts/{id}:submit", c.SubmitContract).Methods(http.MethodPost)
	api.HandleFunc("/contracts/{id}:activate", c.ActivateContract).Methods(http.MethodPost)
	api.HandleFunc("/contracts/{id}:terminate", c.TerminateContract).Methods(http.MethodPost)
	api.HandleFunc("/contracts/{id}/approvals/{instanceID}:decide", c.Decide).Methods(http.MethodPost)
	api.HandleFunc("/contracts/{id}/approvals/{instanceID}:sign", c.RecordSignature).Methods(http.MethodPost)
}

func pathUUID(r *http.Request, name string) (uuid.UUID, bool) {
	raw, ok := mux.Vars(r)[name]
	if !ok {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, "INVALID_BODY", "request body is not valid json", nil)
		return false
	}
	if err := validate.Struct(dst); err != nil {
		writeValidationError(w, err)
		return false
	}
	return true
}

type createTemplateRequest struct {
	Name      string `json:"name" validate:"required"`
	Body      string `json:"body" validate:"required"`
	Variables []struct {
		Name     string `json:"name" validate:"required"`
		Required bool   `json:"required"`
	} `json:"variables" validate:"dive"`
}

func (c *ContractsAPIController) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	var req createTemplateRequest
	if !decodeBody(w, r, &req) {
		return
	}

	t := &template.Template{Name: req.Name, Body: req.Body}
	for _, v := range req.Variables {
		t.Variables = append(t.Variables, template.Variable{Name: v.Name, Required: v.Required})
	}

	created, err := c.templates.Create(r.Context(), t)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusCreated, created)
}

func (c *ContractsAPIController) GetTemplate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(r, "id")
	if !ok {
		_ = httpapi.WriteError(w, http.StatusBadRequest, "INVALID_ID", "id is not a uuid", nil)
		return
	}
	t, err := c.templates.GetByID(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, t)
}

type flowStepRequest struct {
	Order                int32     `json:"order" validate:"required,min=1"`
	Required             *bool     `json:"required"`
	Terminal             bool      `json:"terminal"`
	ApproverKind         string    `json:"approver_kind" validate:"required"`
	ApproverRef          uuid.UUID `json:"approver_ref" validate:"required"`
	Action               string    `json:"action" validate:"required"`
	SignaturePlaceholder *string   `json:"signature_placeholder"`
}

type flowRequest struct {
	TemplateID    uuid.UUID         `json:"template_id" validate:"required"`
	Name          string            `json:"name" validate:"required"`
	Description   string            `json:"description"`
	IsDefault     bool              `json:"is_default"`
	AllowOverride *bool             `json:"allow_override"`
	Steps         []flowStepRequest `json:"steps" validate:"required,min=1,dive"`
}

func (req *flowRequest) toDomain() *flow.Flow {
	f := &flow.Flow{
		TemplateID:    req.TemplateID,
		Name:          req.Name,
		Description:   req.Description,
		IsDefault:     req.IsDefault,
		AllowOverride: true,
	}
	if req.AllowOverride != nil {
		f.AllowOverride = *req.AllowOverride
	}
	for _, s := range req.Steps {
		step := flow.Step{
			Order:                s.Order,
			Required:             true,
			Terminal:             s.Terminal,
			ApproverKind:         s.ApproverKind,
			ApproverRef:          s.ApproverRef,
			Action:               s.Action,
			SignaturePlaceholder: s.SignaturePlaceholder,
		}
		if s.Required != nil {
			step.Required = *s.Required
		}
		f.Steps = append(f.Steps, step)
	}
	return f
}

func (c *ContractsAPIController) CreateFlow(w http.ResponseWriter, r *http.Request) {
	var req flowRequest
	if !decodeBody(w, r, &req) {
		return
	}
	created, err := c.flows.Create(r.Context(), req.toDomain())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusCreated, created)
}

func (c *ContractsAPIController) GetFlow(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(r, "id")
	if !ok {
		_ = httpapi.WriteError(w, http.StatusBadRequest, "INVALID_ID", "id is not a uuid", nil)
		return
	}
	f, err := c.flows.GetByID(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, f)
}

func (c *ContractsAPIController) ListFlows(w http.ResponseWriter, r *http.Request) {
	templateID, ok := pathUUID(r, "id")
	if !ok {
		_ = httpapi.WriteError(w, http.StatusBadRequest, "INVALID_ID", "id is not a uuid", nil)
		return
	}
	flows, err := c.flows.GetByTemplate(r.Context(), templateID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, map[string]any{"flows": flows})
}

func (c *ContractsAPIController) UpdateFlow(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(r, "id")
	if !ok {
		_ = httpapi.WriteError(w, http.StatusBadRequest, "INVALID_ID", "id is not a uuid", nil)
		return
	}
	var req flowRequest
	if !decodeBody(w, r, &req) {
		return
	}
	f := req.toDomain()
	f.ID = id
	updated, err := c.flows.Update(r.Context(), f)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, updated)
}

func (c *ContractsAPIController) DeleteFlow(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(r, "id")
	if !ok {
		_ = httpapi.WriteError(w, http.StatusBadRequest, "INVALID_ID", "id is not a uuid", nil)
		return
	}
	if err := c.flows.Delete(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusNoContent, nil)
}

func (c *ContractsAPIController) SetDefaultFlow(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(r, "id")
	if !ok {
		_ = httpapi.WriteError(w, http.StatusBadRequest, "INVALID_ID", "id is not a uuid", nil)
		return
	}
	f, err := c.flows.GetByID(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if err := c.flows.SetDefault(r.Context(), f.TemplateID, f.ID); err != nil {
		writeServiceError(w, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, map[string]any{"default_flow_id": f.ID})
}

type createContractRequest struct {
	TemplateID uuid.UUID `json:"template_id" validate:"required"`
	Title      string    `json:"title" validate:"required"`
	Number     string    `json:"number" validate:"required"`
	Value      string    `json:"value"`
}

func (c *ContractsAPIController) CreateContract(w http.ResponseWriter, r *http.Request) {
	var req createContractRequest
	if !decodeBody(w, r, &req) {
		return
	}

	value := decimal.Zero
	if req.Value != "" {
		var err error
		value, err = decimal.NewFromString(req.Value)
		if err != nil {
			_ = httpapi.WriteError(w, http.StatusBadRequest, "INVALID_VALUE", "value is not a decimal", nil)
			return
		}
	}

	created, err := c.contracts.Create(r.Context(), &contract.Contract{
		TemplateID: req.TemplateID,
		Title:      req.Title,
		Number:     req.Number,
		Value:      value,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusCreated, created)
}

func (c *ContractsAPIController) GetContract(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(r, "id")
	if !ok {
		_ = httpapi.WriteError(w, http.StatusBadRequest, "INVALID_ID", "id is not a uuid", nil)
		return
	}
	out, err := c.contracts.GetByID(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, out)
}

func (c *ContractsAPIController) GetProgress(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(r, "id")
	if !ok {
		_ = httpapi.WriteError(w, http.StatusBadRequest, "INVALID_ID", "id is not a uuid", nil)
		return
	}
	p, err := c.approvals.GetProgress(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, p)
}

type submitRequest struct {
	FlowID *uuid.UUID        `json:"flow_id"`
	Values map[string]string `json:"values"`
}

func (c *ContractsAPIController) SubmitContract(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(r, "id")
	if !ok {
		_ = httpapi.WriteError(w, http.StatusBadRequest, "INVALID_ID", "id is not a uuid", nil)
		return
	}
	var req submitRequest
	if !decodeBody(w, r, &req) {
		return
	}
	p, err := c.approvals.Submit(r.Context(), id, req.FlowID, req.Values)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, p)
}

type decideRequest struct {
	Decision string  `json:"decision" validate:"required,oneof=approve reject"`
	Comment  *string `json:"comment"`
}

func (c *ContractsAPIController) Decide(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(r, "id")
	if !ok {
		_ = httpapi.WriteError(w, http.StatusBadRequest, "INVALID_ID", "id is not a uuid", nil)
		return
	}
	instanceID, ok := pathUUID(r, "instanceID")
	if !ok {
		_ = httpapi.WriteError(w, http.StatusBadRequest, "INVALID_ID", "instanceID is not a uuid", nil)
		return
	}
	var req decideRequest
	if !decodeBody(w, r, &req) {
		return
	}
	p, err := c.approvals.Decide(r.Context(), id, instanceID, req.Decision == "approve", req.Comment)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, p)
}

type signRequest struct {
	Image      string `json:"image" validate:"required,base64"`
	SignerName string `json:"signer_name" validate:"required"`
}

func (c *ContractsAPIController) RecordSignature(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(r, "id")
	if !ok {
		_ = httpapi.WriteError(w, http.StatusBadRequest, "INVALID_ID", "id is not a uuid", nil)
		return
	}
	instanceID, ok := pathUUID(r, "instanceID")
	if !ok {
		_ = httpapi.WriteError(w, http.StatusBadRequest, "INVALID_ID", "instanceID is not a uuid", nil)
		return
	}
	var req signRequest
	if !decodeBody(w, r, &req) {
		return
	}
	image, err := base64.StdEncoding.DecodeString(req.Image)
	if err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, "INVALID_IMAGE", "image is not valid base64", nil)
		return
	}
	p, err := c.approvals.RecordSignature(r.Context(), id, instanceID, image, req.SignerName)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, p)
}

func (c *ContractsAPIController) ActivateContract(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(r, "id")
	if !ok {
		_ = httpapi.WriteError(w, http.StatusBadRequest, "INVALID_ID", "id is not a uuid", nil)
		return
	}
	out, err := c.contracts.Activate(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, out)
}

func (c *ContractsAPIController) TerminateContract(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(r, "id")
	if !ok {
		_ = httpapi.WriteError(w, http.StatusBadRequest, "INVALID_ID", "id is not a uuid", nil)
		return
	}
	out, err := c.contracts.Terminate(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, out)
}
