package service

import (
	"context"
	"encoding/json"

	"github.com/lyzr/flow/common/logger"
	"github.com/lyzr/flow/common/redis"
	"github.com/lyzr/flow/common/runner"
)

// Per-execution channels let a streaming client follow one run; the firehose
// channel feeds relays that mirror every run in the deployment.
const (
	EventChannelPrefix = "workflow:events:"
	EventChannelAll    = "workflow:events:all"
)

// EventChannel returns the pub/sub channel for a single execution.
func EventChannel(executionID string) string {
	return EventChannelPrefix + executionID
}

// EventPublisher mirrors runner events onto Redis pub/sub. A nil Redis client
// turns publishing into a no-op, which keeps single-process deployments
// working without Redis.
type EventPublisher struct {
	redis *redis.Client
	log   *logger.Logger
}

func NewEventPublisher(redisClient *redis.Client, log *logger.Logger) *EventPublisher {
	return &EventPublisher{redis: redisClient, log: log}
}

// Publish sends one event to the execution's channel and the firehose.
// Delivery is best-effort: the Redis client logs failures and the run
// continues regardless.
func (p *EventPublisher) Publish(ctx context.Context, event runner.Event) {
	if p.redis == nil {
		return
	}

	payload, err := json.Marshal(event)
	if err != nil {
		p.log.Error("failed to marshal execution event",
			"event_type", event.Type,
			"execution_id", event.ExecutionID,
			"error", err)
		return
	}

	message := string(payload)
	_ = p.redis.PublishEvent(ctx, EventChannel(event.ExecutionID), message)
	_ = p.redis.PublishEvent(ctx, EventChannelAll, message)
}

// Observer adapts the publisher to the runner's callback shape.
func (p *EventPublisher) Observer(ctx context.Context) runner.Observer {
	return func(event runner.Event) {
		p.Publish(ctx, event)
	}
}
