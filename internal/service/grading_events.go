package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-grader/internal/dto"
	"github.com/noah-isme/gema-grader/internal/models"
	"github.com/noah-isme/gema-grader/internal/observability"
)

// GradingEventPublisher announces committed grading attempts.
type GradingEventPublisher interface {
	PublishCompleted(ctx context.Context, result models.GradingResult) error
}

type gradingCompletedEvent struct {
	Source string                    `json:"source"`
	Result dto.GradingResultResponse `json:"result"`
	SentAt time.Time                 `json:"sent_at"`
}

type gradingEventPublisher struct {
	nats        *nats.Conn
	natsSubject string
	redis       *redis.Client
	redisStream string
	nodeID      string
	logger      zerolog.Logger
	now         func() time.Time
}

// NewGradingEventPublisher publishes to "<channel>.grading.completed" on NATS and
// "<channel>:grading:completed" on redis pub/sub. Nil connections are skipped.
func NewGradingEventPublisher(natsConn *nats.Conn, redisClient *redis.Client, channelBase string, logger zerolog.Logger) GradingEventPublisher {
	subject := ""
	stream := ""
	if channelBase != "" {
		subject = strings.ReplaceAll(channelBase, ":", ".") + ".grading.completed"
		stream = channelBase + ":grading:completed"
	}

	return &gradingEventPublisher{
		nats:        natsConn,
		natsSubject: subject,
		redis:       redisClient,
		redisStream: stream,
		nodeID:      uuid.NewString(),
		logger:      logger.With().Str("component", "grading_events").Logger(),
		now:         time.Now,
	}
}

func (p *gradingEventPublisher) PublishCompleted(ctx context.Context, result models.GradingResult) error {
	if (p.nats == nil || p.natsSubject == "") && (p.redis == nil || p.redisStream == "") {
		return nil
	}

	payload, err := encodeGradingEvent(p.nodeID, result, p.now().UTC())
	if err != nil {
		return err
	}

	if p.redis != nil && p.redisStream != "" {
		if err := p.redis.Publish(ctx, p.redisStream, payload).Err(); err != nil {
			observability.GradingEventsPublished().WithLabelValues("failed").Inc()
			return err
		}
	}

	if p.nats != nil && p.natsSubject != "" {
		if err := p.nats.Publish(p.natsSubject, payload); err != nil {
			observability.GradingEventsPublished().WithLabelValues("failed").Inc()
			return err
		}
	}

	observability.GradingEventsPublished().WithLabelValues("published").Inc()
	p.logger.Debug().
		Uint("submission_id", result.SubmissionID).
		Int("attempt", result.Attempt).
		Str("status", string(result.Status)).
		Msg("grading completion published")
	return nil
}

func encodeGradingEvent(source string, result models.GradingResult, sentAt time.Time) ([]byte, error) {
	response := dto.NewGradingResultResponse(result)
	response.ModelAnswer = ""

	return json.Marshal(gradingCompletedEvent{
		Source: source,
		Result: response,
		SentAt: sentAt,
	})
}
