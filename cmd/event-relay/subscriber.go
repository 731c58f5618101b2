package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/lyzr/flow/common/logger"
)

// eventPattern matches every channel flow-server publishes engine events
// on: workflow:events:<executionId> per run, plus the workflow:events:all
// mirror that carries everything.
const eventPattern = "workflow:events:*"

// Subscriber bridges Redis pub/sub into the hub. Messages on a per-run
// channel reach the clients watching that execution; messages on the
// mirror channel reach the firehose clients.
type Subscriber struct {
	redis *redis.Client
	hub   *Hub
	log   *logger.Logger
}

// NewSubscriber creates a subscriber that feeds hub from redisClient.
func NewSubscriber(redisClient *redis.Client, hub *Hub, log *logger.Logger) *Subscriber {
	return &Subscriber{
		redis: redisClient,
		hub:   hub,
		log:   log,
	}
}

// Start subscribes to the event pattern and launches the forwarding loop.
// It returns once the subscription is confirmed so a broken Redis
// connection fails startup instead of leaving a silent relay.
func (s *Subscriber) Start(ctx context.Context) error {
	pubsub := s.redis.PSubscribe(ctx, eventPattern)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("subscribe to %s: %w", eventPattern, err)
	}
	s.log.Info("subscribed to event channels", "pattern", eventPattern)

	go s.forward(ctx, pubsub)
	return nil
}

func (s *Subscriber) forward(ctx context.Context, pubsub *redis.PubSub) {
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			s.log.Info("event subscriber stopping")
			return

		case msg, ok := <-ch:
			if !ok {
				return
			}
			key := subscriptionKey(msg.Channel)
			if key == "" {
				s.log.Warn("ignoring event on unexpected channel", "channel", msg.Channel)
				continue
			}
			s.hub.Broadcast(key, []byte(msg.Payload))
		}
	}
}

// subscriptionKey extracts the routing key from a channel name:
// "workflow:events:9f2c..." yields the execution ID and
// "workflow:events:all" yields the firehose key.
func subscriptionKey(channel string) string {
	key, found := strings.CutPrefix(channel, "workflow:events:")
	if !found || key == "" {
		return ""
	}
	return key
}
