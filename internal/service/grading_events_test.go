package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-grader/internal/models"
)

func TestEncodeGradingEventOmitsModelAnswer(t *testing.T) {
	sentAt := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	payload, err := encodeGradingEvent("node-1", models.GradingResult{
		ID:           3,
		SubmissionID: 5,
		Attempt:      2,
		Trigger:      models.GradingTriggerRegrade,
		Status:       models.GradingStatusSuccess,
		Feedback:     "Score: 9/10",
		Score:        floatPtr(9),
		ModelAnswer:  "long reference answer",
	}, sentAt)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(payload, &decoded))
	require.Equal(t, "node-1", decoded["source"])
	require.Equal(t, "2024-03-01T10:00:00Z", decoded["sent_at"])

	result := decoded["result"].(map[string]interface{})
	require.Equal(t, "success", result["status"])
	require.EqualValues(t, 9, result["score"])
	require.NotContains(t, result, "model_answer")
}

func TestGradingEventPublisherWithoutTransportsIsNoop(t *testing.T) {
	publisher := NewGradingEventPublisher(nil, nil, "gema", testLogger())
	require.NoError(t, publisher.PublishCompleted(context.Background(), models.GradingResult{SubmissionID: 1}))
}

func TestGradingEventPublisherPublishesToRedis(t *testing.T) {
	server, err := miniredis.Run()
	require.NoError(t, err)
	defer server.Close()

	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	pubsub := client.Subscribe(ctx, "gema:grading:completed")
	defer pubsub.Close()
	_, err = pubsub.Receive(ctx)
	require.NoError(t, err)

	publisher := NewGradingEventPublisher(nil, client, "gema", testLogger())
	require.NoError(t, publisher.PublishCompleted(ctx, models.GradingResult{
		SubmissionID: 4,
		Attempt:      1,
		Status:       models.GradingStatusGradingFailed,
		Feedback:     "upstream unavailable",
	}))

	msg, err := pubsub.ReceiveMessage(ctx)
	require.NoError(t, err)

	var event gradingCompletedEvent
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &event))
	require.Equal(t, uint(4), event.Result.SubmissionID)
	require.Equal(t, "grading_failed", event.Result.Status)
	require.Nil(t, event.Result.Score)
}
