package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/audeo-edu/intelligrade-api/internal/dto"
	"github.com/audeo-edu/intelligrade-api/internal/grading"
	"github.com/audeo-edu/intelligrade-api/internal/handler"
	"github.com/audeo-edu/intelligrade-api/internal/models"
	"github.com/audeo-edu/intelligrade-api/internal/repository"
	"github.com/audeo-edu/intelligrade-api/internal/service"
)

type mockGradingService struct {
	questionResponse dto.GradingResultResponse
	batchResponse    dto.GradeBatchResponse
	err              error
	lastBatch        dto.GradeBatchRequest
}

func (m *mockGradingService) GradeQuestion(_ context.Context, _ dto.GradeQuestionRequest) (dto.GradingResultResponse, error) {
	if m.err != nil {
		return dto.GradingResultResponse{}, m.err
	}
	return m.questionResponse, nil
}

func (m *mockGradingService) GradeBatch(_ context.Context, payload dto.GradeBatchRequest) (dto.GradeBatchResponse, error) {
	m.lastBatch = payload
	if m.err != nil {
		return dto.GradeBatchResponse{}, m.err
	}
	return m.batchResponse, nil
}

func (m *mockGradingService) GradeInputs(_ context.Context, _ []grading.QuestionInput, _ grading.Context) ([]grading.Result, dto.BatchMetadata) {
	return nil, dto.BatchMetadata{}
}

func (m *mockGradingService) ContextFor(_ *dto.GradingOptions, _ string) grading.Context {
	return grading.Context{}
}

func (m *mockGradingService) Close() {}

type mockJobService struct {
	enqueueResponse dto.EnqueueResponse
	statusResponse  dto.JobStatusResponse
	enqueueErr      error
	statusErr       error
	cancelErr       error
	enqueued        int
}

func (m *mockJobService) Enqueue(_ context.Context, _ dto.GradeBatchRequest) (dto.EnqueueResponse, error) {
	m.enqueued++
	if m.enqueueErr != nil {
		return dto.EnqueueResponse{}, m.enqueueErr
	}
	return m.enqueueResponse, nil
}

func (m *mockJobService) Status(_ context.Context, _ string) (dto.JobStatusResponse, error) {
	if m.statusErr != nil {
		return dto.JobStatusResponse{}, m.statusErr
	}
	return m.statusResponse, nil
}

func (m *mockJobService) Cancel(_ context.Context, _ string) error {
	return m.cancelErr
}

func (m *mockJobService) Process(_ context.Context, _ models.GradingJob) error {
	return nil
}

func (m *mockJobService) Subscribe(_ string) (<-chan dto.JobEvent, func()) {
	channel := make(chan dto.JobEvent)
	return channel, func() { close(channel) }
}

func (m *mockJobService) Start(_ context.Context) {}

func newGradingTestApp(gradingSvc service.GradingService, jobSvc service.JobService) *fiber.App {
	logger := zerolog.New(io.Discard)
	validate := validator.New(validator.WithRequiredStructEnabled())

	app := fiber.New()
	group := app.Group("/api/v1/grading")
	handler.NewGradingHandler(gradingSvc, jobSvc, validate, logger).Register(group)
	handler.NewJobHandler(jobSvc, logger).Register(group.Group("/jobs"))
	return app
}

func postJSON(t *testing.T, app *fiber.App, path string, payload interface{}) *http.Response {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decodeResponse(t *testing.T, resp *http.Response, target interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(target))
}

func TestGradingHandlerGradeQuestion(t *testing.T) {
	gradingSvc := &mockGradingService{questionResponse: dto.GradingResultResponse{
		QuestionID:   "q1",
		IsCorrect:    true,
		PointsEarned: 2,
		Method:       "rule_exact",
	}}
	app := newGradingTestApp(gradingSvc, &mockJobService{})

	resp := postJSON(t, app, "/api/v1/grading/question", dto.GradeQuestionRequest{
		Question: dto.QuestionInputRequest{ID: "q1", Prompt: "What is 2+2?", StudentAnswer: "4", CorrectAnswer: "4", PointsPossible: 2},
	})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var response struct {
		Success bool                      `json:"success"`
		Data    dto.GradingResultResponse `json:"data"`
	}
	decodeResponse(t, resp, &response)
	require.True(t, response.Success)
	require.Equal(t, "q1", response.Data.QuestionID)
	require.True(t, response.Data.IsCorrect)
}

func TestGradingHandlerGradeQuestionInvalidBody(t *testing.T) {
	app := newGradingTestApp(&mockGradingService{}, &mockJobService{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/grading/question", bytes.NewReader([]byte("{not json")))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestGradingHandlerSyncBatch(t *testing.T) {
	gradingSvc := &mockGradingService{batchResponse: dto.GradeBatchResponse{
		Results:  []dto.GradingResultResponse{{QuestionID: "q1"}},
		Metadata: dto.BatchMetadata{TotalQuestions: 1},
	}}
	jobSvc := &mockJobService{}
	app := newGradingTestApp(gradingSvc, jobSvc)

	resp := postJSON(t, app, "/api/v1/grading/batch", dto.GradeBatchRequest{
		Questions: []dto.QuestionInputRequest{{ID: "q1", Prompt: "p", StudentAnswer: "a", CorrectAnswer: "a", PointsPossible: 1}},
	})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Zero(t, jobSvc.enqueued, "sync batches must not be enqueued")
}

func TestGradingHandlerAsyncBatchReturnsAccepted(t *testing.T) {
	jobSvc := &mockJobService{enqueueResponse: dto.EnqueueResponse{
		JobID:     "job-1",
		Status:    models.JobStatusPending,
		CreatedAt: time.Now(),
	}}
	app := newGradingTestApp(&mockGradingService{}, jobSvc)

	resp := postJSON(t, app, "/api/v1/grading/batch", dto.GradeBatchRequest{
		Questions: []dto.QuestionInputRequest{{ID: "q1", Prompt: "p", StudentAnswer: "a", CorrectAnswer: "a", PointsPossible: 1}},
		Async:     true,
	})
	require.Equal(t, fiber.StatusAccepted, resp.StatusCode)
	require.Equal(t, 1, jobSvc.enqueued)

	var response struct {
		Success bool                `json:"success"`
		Data    dto.EnqueueResponse `json:"data"`
	}
	decodeResponse(t, resp, &response)
	require.Equal(t, "job-1", response.Data.JobID)
	require.Equal(t, models.JobStatusPending, response.Data.Status)
}

func TestGradingHandlerValidationErrorsAreBadRequests(t *testing.T) {
	validate := validator.New(validator.WithRequiredStructEnabled())
	err := validate.Struct(dto.GradeBatchRequest{})
	require.Error(t, err)

	gradingSvc := &mockGradingService{err: err}
	app := newGradingTestApp(gradingSvc, &mockJobService{})

	resp := postJSON(t, app, "/api/v1/grading/batch", dto.GradeBatchRequest{
		Questions: []dto.QuestionInputRequest{{ID: "q1", Prompt: "p", CorrectAnswer: "a", PointsPossible: 1}},
	})
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestJobHandlerStatus(t *testing.T) {
	jobSvc := &mockJobService{statusResponse: dto.JobStatusResponse{
		JobID:  "job-1",
		Status: models.JobStatusProcessing,
		Progress: dto.JobProgress{
			Graded: 1,
			Total:  3,
		},
	}}
	app := newGradingTestApp(&mockGradingService{}, jobSvc)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/grading/jobs/job-1", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var response struct {
		Success bool                  `json:"success"`
		Data    dto.JobStatusResponse `json:"data"`
	}
	decodeResponse(t, resp, &response)
	require.Equal(t, models.JobStatusProcessing, response.Data.Status)
	require.Equal(t, 3, response.Data.Progress.Total)
}

func TestJobHandlerStatusNotFound(t *testing.T) {
	jobSvc := &mockJobService{statusErr: service.ErrJobNotFound}
	app := newGradingTestApp(&mockGradingService{}, jobSvc)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/grading/jobs/missing", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestJobHandlerCancel(t *testing.T) {
	app := newGradingTestApp(&mockGradingService{}, &mockJobService{})

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/grading/jobs/job-1", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestJobHandlerCancelNotCancellable(t *testing.T) {
	jobSvc := &mockJobService{cancelErr: repository.ErrJobNotCancellable}
	app := newGradingTestApp(&mockGradingService{}, jobSvc)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/grading/jobs/job-1", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusConflict, resp.StatusCode)
}

func TestJobHandlerCancelUnknownJob(t *testing.T) {
	jobSvc := &mockJobService{cancelErr: service.ErrJobNotFound}
	app := newGradingTestApp(&mockGradingService{}, jobSvc)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/grading/jobs/job-1", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestJobHandlerCancelInternalError(t *testing.T) {
	jobSvc := &mockJobService{cancelErr: errors.New("database unavailable")}
	app := newGradingTestApp(&mockGradingService{}, jobSvc)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/grading/jobs/job-1", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
}
