package web

import (
	"errors"

	"github.com/bizbooks/approvalflow/pkg/persistence"
	"github.com/bizbooks/approvalflow/pkg/services"
	"github.com/bizbooks/approvalflow/pkg/workflow"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType("not_found").
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// handleServiceError maps template store errors to problem responses.
func handleServiceError(c fiber.Ctx, err error) error {
	switch {
	case services.IsValidationError(err):
		return badRequest(c, err.Error())

	case services.IsConflictError(err):
		problem := problems.NewStatusProblem(409).
			WithInstance(c.Path()).
			WithType("conflict").
			WithDetail(err.Error())

		return c.Status(fiber.StatusConflict).JSON(problem)

	case persistence.IsTemplateNotFound(err):
		return notFound(c, "workflow template not found")

	case persistence.IsStepNotFound(err):
		return notFound(c, "template step not found")

	default:
		return internalError(c, err)
	}
}

// handleEngineError maps request engine errors to problem responses.
// Configuration errors come back as 422 since the request body itself is
// well-formed; the tenant's workflow setup is what cannot be processed.
func handleEngineError(c fiber.Ctx, err error) error {
	switch {
	case workflow.IsConfigurationError(err):
		problem := problems.NewStatusProblem(422).
			WithInstance(c.Path()).
			WithType("workflow_configuration_error").
			WithDetail(err.Error())

		return c.Status(fiber.StatusUnprocessableEntity).JSON(problem)

	case errors.Is(err, workflow.ErrNotAuthorized) || errors.Is(err, workflow.ErrNotRequestor):
		problem := problems.NewStatusProblem(403).
			WithInstance(c.Path()).
			WithType("forbidden").
			WithDetail(err.Error())

		return c.Status(fiber.StatusForbidden).JSON(problem)

	case workflow.IsStateError(err):
		problem := problems.NewStatusProblem(409).
			WithInstance(c.Path()).
			WithType("invalid_state").
			WithDetail(err.Error())

		return c.Status(fiber.StatusConflict).JSON(problem)

	case workflow.IsConflictError(err):
		problem := problems.NewStatusProblem(409).
			WithInstance(c.Path()).
			WithType("conflict").
			WithDetail(err.Error())

		return c.Status(fiber.StatusConflict).JSON(problem)

	case workflow.IsHandlerFailure(err):
		problem := problems.NewStatusProblem(502).
			WithInstance(c.Path()).
			WithType("handler_failure").
			WithDetail(err.Error())

		return c.Status(fiber.StatusBadGateway).JSON(problem)

	case persistence.IsRequestNotFound(err):
		return notFound(c, "approval request not found")

	default:
		return internalError(c, err)
	}
}
