package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
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
	generationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "gema",
		Subsystem: "ai",
		Name:      "generation_duration_seconds",
		Help:      "Duration of text generation requests",
		Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 80},
	}, []string{"model"})

	generationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gema",
		Subsystem: "ai",
		Name:      "generation_failures_total",
		Help:      "Number of failed text generation requests",
	}, []string{"model", "kind"})
)

// OpenAIConfig defines configuration options for the OpenAI generator.
// BaseURL may point at any OpenAI-compatible endpoint (e.g. a local Ollama or vLLM server).
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Logger  zerolog.Logger
}

// OpenAIGenerator implements Generator against the OpenAI chat completion API.
type OpenAIGenerator struct {
	client *openai.Client
	cfg    OpenAIConfig
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewOpenAIGenerator builds a new generator using the provided configuration.
func NewOpenAIGenerator(cfg OpenAIConfig) (*OpenAIGenerator, error) {
	if cfg.APIKey == "" && cfg.BaseURL == "" {
		return nil, fmt.Errorf("openai api key is required")
	}

	if cfg.Model == "" {
		cfg.Model = "gpt-3.5-turbo"
	}

	logger := cfg.Logger
	if logger.GetLevel() == zerolog.Disabled {
		logger = zerolog.Nop()
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}

	return &OpenAIGenerator{
		client: openai.NewClientWithConfig(config),
		cfg:    cfg,
		tracer: otel.Tracer("github.com/noah-isme/gema-grader/pkg/ai/openai"),
		logger: logger.With().Str("component", "openai_generator").Str("model", cfg.Model).Logger(),
	}, nil
}

// Model returns the chat model requests are sent to.
func (g *OpenAIGenerator) Model() string {
	return g.cfg.Model
}

// Generate sends a single system+user chat completion and returns the trimmed reply.
func (g *OpenAIGenerator) Generate(parent context.Context, req GenerationRequest) (string, error) {
	ctx, span := g.tracer.Start(parent, "openai.generate", trace.WithAttributes(
		attribute.String("model", g.cfg.Model),
		attribute.Int("max_tokens", req.MaxTokens),
	))
	defer span.End()

	start := time.Now()
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       g.cfg.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.System},
			{Role: openai.ChatMessageRoleUser, Content: req.Prompt},
		},
	})
	generationDuration.WithLabelValues(g.cfg.Model).Observe(time.Since(start).Seconds())
	if err != nil {
		return "", g.fail(span, classifyError(ctx, err))
	}

	if len(resp.Choices) == 0 {
		return "", g.fail(span, &ServiceError{
			Kind:    ErrorKindMalformedResponse,
			Message: "openai generate: no choices returned",
		})
	}

	g.logger.Debug().
		Str("finish_reason", string(resp.Choices[0].FinishReason)).
		Int("completion_tokens", resp.Usage.CompletionTokens).
		Msg("generation completed")

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (g *OpenAIGenerator) fail(span trace.Span, err *ServiceError) error {
	generationFailures.WithLabelValues(g.cfg.Model, string(err.Kind)).Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, string(err.Kind))
	return err
}

func classifyError(ctx context.Context, err error) *ServiceError {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &ServiceError{Kind: ErrorKindTimeout, Message: "openai generate: request timed out", Err: err}
	}

	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}

	kind := ErrorKindUnavailable
	switch status {
	case http.StatusTooManyRequests:
		kind = ErrorKindRateLimited
	case http.StatusUnauthorized, http.StatusForbidden:
		kind = ErrorKindUnauthorized
	case http.StatusGatewayTimeout, http.StatusRequestTimeout:
		kind = ErrorKindTimeout
	}

	return &ServiceError{Kind: kind, Message: fmt.Sprintf("openai generate: %v", err), Err: err}
}
