package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-grader/internal/dto"
	"github.com/noah-isme/gema-grader/internal/models"
	"github.com/noah-isme/gema-grader/internal/service"
	"github.com/noah-isme/gema-grader/internal/utils"
	"github.com/noah-isme/gema-grader/pkg/document"
)

// GradingHandler exposes the grading pipeline over HTTP.
type GradingHandler struct {
	service   service.GradingService
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewGradingHandler builds a grading handler instance.
func NewGradingHandler(service service.GradingService, validate *validator.Validate, logger zerolog.Logger) *GradingHandler {
	return &GradingHandler{
		service:   service,
		validator: validate,
		logger:    logger.With().Str("component", "grading_handler").Logger(),
	}
}

// Register attaches the routes to the provided router group. limiter guards the
// routes that start a grading attempt and may be nil.
func (h *GradingHandler) Register(router fiber.Router, limiter fiber.Handler) {
	if limiter == nil {
		limiter = func(c *fiber.Ctx) error { return c.Next() }
	}

	router.Post("/submissions/:id/grade", limiter, h.submit)
	router.Post("/submissions/:id/regrade", limiter, h.regrade)
	router.Get("/submissions/:id/result", h.latest)
	router.Get("/submissions/:id/results", h.history)
	router.Get("/submissions/:id/status", h.status)
}

func (h *GradingHandler) submit(c *fiber.Ctx) error {
	id, err := h.submissionID(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	result, err := h.service.Submit(c.UserContext(), id)
	if err != nil {
		return h.handleError(c, result, err)
	}

	return utils.SendSuccess(c, outcomeMessage(result), dto.NewGradingResultResponse(result))
}

func (h *GradingHandler) regrade(c *fiber.Ctx) error {
	id, err := h.submissionID(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	result, err := h.service.Regrade(c.UserContext(), id)
	if err != nil {
		return h.handleError(c, result, err)
	}

	return utils.SendSuccess(c, outcomeMessage(result), dto.NewGradingResultResponse(result))
}

func (h *GradingHandler) latest(c *fiber.Ctx) error {
	id, err := h.submissionID(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	result, err := h.service.Latest(c.UserContext(), id)
	if err != nil {
		return h.handleError(c, models.GradingResult{}, err)
	}

	return utils.SendSuccess(c, "grading result retrieved", dto.NewGradingResultResponse(result))
}

func (h *GradingHandler) history(c *fiber.Ctx) error {
	id, err := h.submissionID(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	results, err := h.service.History(c.UserContext(), id)
	if err != nil {
		return h.handleError(c, models.GradingResult{}, err)
	}

	return utils.SendSuccess(c, "grading history retrieved", dto.NewGradingHistoryResponse(id, results))
}

func (h *GradingHandler) status(c *fiber.Ctx) error {
	id, err := h.submissionID(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	state, inFlight := h.service.InFlight(id)
	return utils.SendSuccess(c, "grading status retrieved", dto.GradingStatusResponse{
		SubmissionID: id,
		InFlight:     inFlight,
		State:        string(state),
	})
}

// submissionID binds and validates the :id route parameter.
func (h *GradingHandler) submissionID(c *fiber.Ctx) (uint, error) {
	var params dto.SubmissionParams
	if err := c.ParamsParser(&params); err != nil {
		return 0, errors.New("invalid submission id")
	}
	if err := h.validator.Struct(params); err != nil {
		return 0, err
	}
	return params.SubmissionID, nil
}

// handleError maps service failures to HTTP statuses. An extraction failure
// still returns the recorded attempt so callers can show its feedback.
func (h *GradingHandler) handleError(c *fiber.Ctx, result models.GradingResult, err error) error {
	switch {
	case errors.Is(err, service.ErrSubmissionNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "submission not found")
	case errors.Is(err, service.ErrGradingResultNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "submission has not been graded")
	case errors.Is(err, service.ErrGradingInProgress):
		return utils.SendError(c, fiber.StatusConflict, "grading already in progress")
	case errors.Is(err, document.ErrExtraction):
		var data interface{}
		if result.ID != 0 {
			data = dto.NewGradingResultResponse(result)
		}
		return utils.SendErrorWithData(c, fiber.StatusUnprocessableEntity, result.Feedback, data)
	default:
		requestLogger(h.logger, c).Error().Err(err).Msg("internal server error")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}

func outcomeMessage(result models.GradingResult) string {
	switch result.Status {
	case models.GradingStatusSuccess:
		return "submission graded"
	case models.GradingStatusSynthesisFailed:
		return "model answer generation failed"
	case models.GradingStatusGradingFailed:
		return "grading failed"
	default:
		return string(result.Status)
	}
}
