package handler

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/audeo-edu/intelligrade-api/internal/models"
	"github.com/audeo-edu/intelligrade-api/internal/repository"
	"github.com/audeo-edu/intelligrade-api/internal/service"
	"github.com/audeo-edu/intelligrade-api/internal/utils"
)

const jobSubscribePingInterval = 30 * time.Second

// JobHandler exposes the async job endpoints: polling, cancellation, and the
// websocket completion feed.
type JobHandler struct {
	jobs   service.JobService
	logger zerolog.Logger
}

// NewJobHandler builds a job handler instance.
func NewJobHandler(jobs service.JobService, logger zerolog.Logger) *JobHandler {
	return &JobHandler{
		jobs:   jobs,
		logger: logger.With().Str("component", "job_handler").Logger(),
	}
}

// Register attaches the job routes to the provided router group.
func (h *JobHandler) Register(router fiber.Router) {
	router.Get("/:id", h.status)
	router.Delete("/:id", h.cancel)

	router.Use("/:id/subscribe", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("job_id", c.Params("id"))
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	router.Get("/:id/subscribe", websocket.New(h.subscribe))
}

func (h *JobHandler) status(c *fiber.Ctx) error {
	jobID := strings.TrimSpace(c.Params("id"))
	if jobID == "" {
		return utils.SendError(c, fiber.StatusBadRequest, "job id required")
	}

	response, err := h.jobs.Status(c.Context(), jobID)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "job status retrieved", response)
}

func (h *JobHandler) cancel(c *fiber.Ctx) error {
	jobID := strings.TrimSpace(c.Params("id"))
	if jobID == "" {
		return utils.SendError(c, fiber.StatusBadRequest, "job id required")
	}

	if err := h.jobs.Cancel(c.Context(), jobID); err != nil {
		return h.handleError(c, err)
	}

	requestLogger(h.logger, c).Info().Str("job_id", jobID).Msg("grading job cancelled")
	return utils.SendSuccess(c, "job cancelled", fiber.Map{"job_id": jobID, "status": models.JobStatusCancelled})
}

// subscribe streams job events until the job reaches a terminal state or the
// client disconnects. The current status is sent first so late subscribers of
// an already finished job still get an answer.
func (h *JobHandler) subscribe(conn *websocket.Conn) {
	defer conn.Close()

	jobID, _ := conn.Locals("job_id").(string)
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(fiber.StatusBadRequest, "job id required"))
		return
	}

	events, cancel := h.jobs.Subscribe(jobID)
	defer cancel()

	snapshot, err := h.jobs.Status(context.Background(), jobID)
	if err != nil {
		if errors.Is(err, service.ErrJobNotFound) {
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(fiber.StatusNotFound, "job not found"))
			return
		}
		h.logger.Error().Err(err).Str("job_id", jobID).Msg("failed to load job snapshot")
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(fiber.StatusInternalServerError, "internal server error"))
		return
	}

	if err := writeJobMessage(conn, "snapshot", snapshot); err != nil {
		return
	}
	if isTerminalStatus(snapshot.Status) {
		return
	}

	// Reader goroutine: its only job is to notice the client going away.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(jobSubscribePingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if err := writeJobMessage(conn, "event", event); err != nil {
				return
			}
			if isTerminalStatus(event.Status) {
				return
			}
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *JobHandler) handleError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrJobNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "job not found")
	case errors.Is(err, repository.ErrJobNotCancellable):
		return utils.SendError(c, fiber.StatusConflict, "job already started or finished")
	case isValidationError(err):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	default:
		requestLogger(h.logger, c).Error().Err(err).Msg("internal server error")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}

type jobStreamMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

func writeJobMessage(conn *websocket.Conn, kind string, payload interface{}) error {
	encoded, err := json.Marshal(jobStreamMessage{Type: kind, Payload: payload})
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, encoded)
}

func isTerminalStatus(status string) bool {
	switch status {
	case models.JobStatusCompleted, models.JobStatusFailed, models.JobStatusCancelled:
		return true
	}
	return false
}
