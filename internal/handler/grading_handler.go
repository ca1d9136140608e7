package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/audeo-edu/intelligrade-api/internal/dto"
	"github.com/audeo-edu/intelligrade-api/internal/service"
	"github.com/audeo-edu/intelligrade-api/internal/utils"
)

// GradingHandler manages the synchronous grading endpoints and the async
// enqueue path.
type GradingHandler struct {
	grading   service.GradingService
	jobs      service.JobService
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewGradingHandler builds a grading handler instance.
func NewGradingHandler(grading service.GradingService, jobs service.JobService, validator *validator.Validate, logger zerolog.Logger) *GradingHandler {
	return &GradingHandler{
		grading:   grading,
		jobs:      jobs,
		validator: validator,
		logger:    logger.With().Str("component", "grading_handler").Logger(),
	}
}

// Register attaches the grading routes to the provided router group.
func (h *GradingHandler) Register(router fiber.Router) {
	router.Post("/question", h.gradeQuestion)
	router.Post("/batch", h.gradeBatch)
}

func (h *GradingHandler) gradeQuestion(c *fiber.Ctx) error {
	var payload dto.GradeQuestionRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	result, err := h.grading.GradeQuestion(c.Context(), payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "question graded", result)
}

// gradeBatch grades synchronously by default; async=true enqueues a job and
// returns 202 with the job id.
func (h *GradingHandler) gradeBatch(c *fiber.Ctx) error {
	var payload dto.GradeBatchRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	if payload.Async {
		enqueued, err := h.jobs.Enqueue(c.Context(), payload)
		if err != nil {
			return h.handleError(c, err)
		}

		requestLogger(h.logger, c).Info().Str("job_id", enqueued.JobID).Msg("batch accepted for async grading")
		return utils.SendSuccessWithStatus(c, fiber.StatusAccepted, "batch accepted", enqueued)
	}

	response, err := h.grading.GradeBatch(c.Context(), payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "batch graded", response)
}

func (h *GradingHandler) handleError(c *fiber.Ctx, err error) error {
	if isValidationError(err) {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	requestLogger(h.logger, c).Error().Err(err).Msg("internal server error")
	return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
}
