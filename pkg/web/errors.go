package web

import (
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"

	"github.com/flowmuse/flowmuse/pkg/models"
	"github.com/flowmuse/flowmuse/pkg/services"
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

// envelopeError answers a generation request with the uniform result
// envelope. The editor renders error states from the envelope body, so
// even caller mistakes keep the shape.
func envelopeError(c fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(models.GenerationResult{Error: message})
}

// handleAIError maps service-layer errors on the generation surface onto
// envelope responses: caller mistakes are 400s, a misconfigured provider
// is a 500, anything unexpected is a 500 with a generic message and the
// detail logged server-side only.
func (h *APIHandlers) handleAIError(c fiber.Ctx, err error) error {
	switch {
	case services.IsValidationError(err):
		return envelopeError(c, fiber.StatusBadRequest, err.Error())

	case services.IsNotFoundError(err):
		return envelopeError(c, fiber.StatusNotFound, err.Error())

	case services.IsConfigurationError(err):
		return envelopeError(c, fiber.StatusInternalServerError, err.Error())

	default:
		h.logger.Error("Unhandled service error", "path", c.Path(), "error", err)

		return envelopeError(c, fiber.StatusInternalServerError, "internal error")
	}
}
