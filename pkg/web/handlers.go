// Package web provides HTTP handlers and REST API endpoints for template
// administration and approval actions.
package web

import (
	"net/http"
	"time"

	"github.com/bizbooks/approvalflow/pkg/models"
	"github.com/bizbooks/approvalflow/pkg/persistence"
	"github.com/bizbooks/approvalflow/pkg/registry"
	"github.com/bizbooks/approvalflow/pkg/services"
	"github.com/bizbooks/approvalflow/pkg/workflow"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

type APIHandlers struct {
	templateStore *services.TemplateStore
	engine        *workflow.Engine
	validator     *validator.Validate
	registry      *registry.Registry
}

func NewAPIHandlers(
	templateStore *services.TemplateStore,
	engine *workflow.Engine,
	validator *validator.Validate,
	registry *registry.Registry,
) *APIHandlers {
	return &APIHandlers{
		templateStore: templateStore,
		engine:        engine,
		validator:     validator,
		registry:      registry,
	}
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	registryCheck, regOk := h.registry.HealthCheck()
	repositoryCheck, repOk := h.templateStore.HealthCheck(c.Context())

	status := "unhealthy"
	message := "Approvalflow API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if regOk && repOk {
		status = "healthy"
		message = "Approvalflow API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"registry":   registryCheck,
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}

func (h *APIHandlers) ListTemplates(c fiber.Ctx) error {
	companyID := c.Params("companyId")
	if companyID == "" {
		return badRequest(c, "Company ID is required")
	}

	templates, err := h.templateStore.ListTemplates(c.Context(), companyID, c.Query("activity_type"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"templates": templates,
		"count":     len(templates),
	})
}

func (h *APIHandlers) CreateTemplate(c fiber.Ctx) error {
	companyID := c.Params("companyId")
	if companyID == "" {
		return badRequest(c, "Company ID is required")
	}

	var req CreateTemplateRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	template := &models.WorkflowTemplate{
		CompanyID:    companyID,
		ActivityType: req.ActivityType,
		Name:         req.Name,
		Description:  req.Description,
		Default:      req.Default,
		Steps:        make([]*models.StepDefinition, 0, len(req.Steps)),
	}

	for _, step := range req.Steps {
		template.Steps = append(template.Steps, step.ToModel())
	}

	created, err := h.templateStore.CreateTemplate(c.Context(), template)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) GetTemplate(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Template ID is required")
	}

	template, err := h.templateStore.GetTemplate(c.Context(), id)
	if err != nil {
		if persistence.IsTemplateNotFound(err) {
			return notFound(c, "workflow template not found")
		}

		return internalError(c, err)
	}

	return c.JSON(template)
}

func (h *APIHandlers) UpdateTemplate(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Template ID is required")
	}

	var req UpdateTemplateRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	updated, err := h.templateStore.UpdateTemplate(c.Context(), id, req.Name, req.Description, req.Active)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) DeleteTemplate(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Template ID is required")
	}

	err := h.templateStore.DeleteTemplate(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) SetDefaultTemplate(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Template ID is required")
	}

	template, err := h.templateStore.SetAsDefault(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(template)
}

func (h *APIHandlers) AddStep(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Template ID is required")
	}

	var req StepDefinitionBody
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	template, err := h.templateStore.AddStep(c.Context(), id, req.ToModel())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(template)
}

func (h *APIHandlers) UpdateStep(c fiber.Ctx) error {
	id := c.Params("id")
	stepID := c.Params("stepId")

	if id == "" || stepID == "" {
		return badRequest(c, "Template ID and step ID are required")
	}

	var req StepDefinitionBody
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	step := req.ToModel()
	step.ID = stepID

	template, err := h.templateStore.UpdateStep(c.Context(), id, step)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(template)
}

func (h *APIHandlers) DeleteStep(c fiber.Ctx) error {
	id := c.Params("id")
	stepID := c.Params("stepId")

	if id == "" || stepID == "" {
		return badRequest(c, "Template ID and step ID are required")
	}

	template, err := h.templateStore.DeleteStep(c.Context(), id, stepID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(template)
}

func (h *APIHandlers) ReorderSteps(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Template ID is required")
	}

	var req ReorderStepsRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	template, err := h.templateStore.ReorderSteps(c.Context(), id, req.StepIDs)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(template)
}

func (h *APIHandlers) StartRequest(c fiber.Ctx) error {
	var req StartRequestBody
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	request, err := h.engine.StartWorkflow(c.Context(), req.ToActivity())
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(request)
}

func (h *APIHandlers) GetRequest(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Request ID is required")
	}

	request, err := h.engine.GetRequestStatus(c.Context(), id)
	if err != nil {
		if persistence.IsRequestNotFound(err) {
			return notFound(c, "approval request not found")
		}

		return internalError(c, err)
	}

	return c.JSON(request)
}

func (h *APIHandlers) ApproveRequest(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Request ID is required")
	}

	var req ApproveRequestBody
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	request, err := h.engine.Approve(c.Context(), id, req.ApproverID, req.Comments)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(request)
}

func (h *APIHandlers) RejectRequest(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Request ID is required")
	}

	var req RejectRequestBody
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	request, err := h.engine.Reject(c.Context(), id, req.ApproverID, req.Reason)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(request)
}

func (h *APIHandlers) CancelRequest(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Request ID is required")
	}

	var req CancelRequestBody
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	request, err := h.engine.Cancel(c.Context(), id, req.RequestorID, req.Reason)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(request)
}

func (h *APIHandlers) GetPendingApprovals(c fiber.Ctx) error {
	personID := c.Params("personId")
	if personID == "" {
		return badRequest(c, "Person ID is required")
	}

	approvals, err := h.engine.GetPendingApprovalsForUser(c.Context(), personID)
	if err != nil {
		return handleEngineError(c, err)
	}

	if approvals == nil {
		approvals = make([]*persistence.PendingApproval, 0)
	}

	return c.JSON(fiber.Map{
		"approvals": approvals,
		"count":     len(approvals),
	})
}

func (h *APIHandlers) GetActivityStatus(c fiber.Ctx) error {
	activityType := c.Params("activityType")
	activityID := c.Params("activityId")

	if activityType == "" || activityID == "" {
		return badRequest(c, "Activity type and activity ID are required")
	}

	request, err := h.engine.GetActivityApprovalStatus(c.Context(), activityType, activityID)
	if err != nil {
		if persistence.IsRequestNotFound(err) {
			return notFound(c, "no approval request for activity")
		}

		return internalError(c, err)
	}

	return c.JSON(request)
}
