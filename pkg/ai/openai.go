package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	aiDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "intelligrade",
		Subsystem: "ai",
		Name:      "grading_duration_seconds",
		Help:      "Duration of remote grading requests",
	}, []string{"model"})

	aiFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "intelligrade",
		Subsystem: "ai",
		Name:      "grading_failures_total",
		Help:      "Number of remote grading failures",
	}, []string{"model"})
)

// OpenAIConfig defines configuration options for the OpenAI grader.
type OpenAIConfig struct {
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float32
	Logger      zerolog.Logger
}

// OpenAIGrader implements Grader against the OpenAI chat completion API.
type OpenAIGrader struct {
	client *openai.Client
	cfg    OpenAIConfig
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewOpenAIGrader builds a new grader using the provided configuration.
func NewOpenAIGrader(cfg OpenAIConfig) (*OpenAIGrader, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}

	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}

	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 2048
	}

	tracer := otel.Tracer("github.com/audeo-edu/intelligrade-api/pkg/ai/openai")
	logger := cfg.Logger
	if logger.GetLevel() == zerolog.Disabled {
		logger = zerolog.Nop()
	}

	config := openai.DefaultConfig(cfg.APIKey)
	client := openai.NewClientWithConfig(config)

	return &OpenAIGrader{
		client: client,
		cfg:    cfg,
		tracer: tracer,
		logger: logger,
	}, nil
}

// GradeBatch sends the question batch to OpenAI and parses the per-question verdicts.
func (g *OpenAIGrader) GradeBatch(parent context.Context, request BatchRequest) (BatchResponse, error) {
	ctx, span := g.tracer.Start(parent, "openai.grade_batch", trace.WithAttributes(
		attribute.String("model", g.cfg.Model),
		attribute.Int("batch_size", len(request.Questions)),
	))
	defer span.End()

	if len(request.Questions) == 0 {
		return BatchResponse{}, nil
	}

	start := time.Now()
	chatRequest := openai.ChatCompletionRequest{
		Model:       g.cfg.Model,
		MaxTokens:   g.cfg.MaxTokens,
		Temperature: g.cfg.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: graderSystemPrompt(),
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: buildBatchPrompt(request),
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	}

	resp, err := g.client.CreateChatCompletion(ctx, chatRequest)
	duration := time.Since(start)
	aiDuration.WithLabelValues(g.cfg.Model).Observe(duration.Seconds())
	if err != nil {
		aiFailures.WithLabelValues(g.cfg.Model).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return BatchResponse{}, fmt.Errorf("openai grade batch: %w", err)
	}

	if len(resp.Choices) == 0 {
		err := fmt.Errorf("no choices returned from openai")
		aiFailures.WithLabelValues(g.cfg.Model).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return BatchResponse{}, err
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	response, err := parseBatchResponse(content)
	if err != nil {
		aiFailures.WithLabelValues(g.cfg.Model).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return BatchResponse{}, err
	}

	span.SetAttributes(attribute.Int("result_count", len(response.Results)))

	return response, nil
}

func graderSystemPrompt() string {
	return "You are an automated grader for student answers. For every question you receive, respond with a JSON object of t" +
		"he form {\"results\": [{\"questionId\", \"isCorrect\", \"pointsEarned\", \"confidence\", \"reasoning\"}]}. Award partial credit wh" +
		"ere the answer is partially correct, keep pointsEarned within [0, pointsPossible], and keep confidence within [0, 1]."
}

func buildBatchPrompt(request BatchRequest) string {
	builder := strings.Builder{}
	builder.WriteString("Grade the following student answers.\n")

	for index, question := range request.Questions {
		builder.WriteString(fmt.Sprintf("\n## Question %d (id: %s)\n", index+1, question.ID))
		builder.WriteString(question.Prompt)
		builder.WriteString(fmt.Sprintf("\nPoints possible: %.2f", question.PointsPossible))
		if len(question.SkillContext) > 0 {
			builder.WriteString("\nSkills: ")
			builder.WriteString(strings.Join(question.SkillContext, ", "))
		}
		builder.WriteString("\nExpected answer: ")
		builder.WriteString(question.CorrectAnswer)
		builder.WriteString("\nStudent answer: ")
		builder.WriteString(question.StudentAnswer)
		builder.WriteString("\n")
	}

	builder.WriteString("\nReturn JSON.")
	return builder.String()
}

func parseBatchResponse(content string) (BatchResponse, error) {
	var response BatchResponse
	if err := json.Unmarshal([]byte(content), &response); err != nil {
		return BatchResponse{}, fmt.Errorf("parse grading json: %w", err)
	}

	for index := range response.Results {
		if response.Results[index].Confidence < 0 {
			response.Results[index].Confidence = 0
		}
		if response.Results[index].Confidence > 1 {
			response.Results[index].Confidence = 1
		}
		if response.Results[index].PointsEarned < 0 {
			response.Results[index].PointsEarned = 0
		}
	}

	return response, nil
}
