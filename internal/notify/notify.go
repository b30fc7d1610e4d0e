// Package notify publishes "paths whose value changed" after every
// committed batch, and action requests raised by triggers, over an
// in-process watermill pub/sub.
//
// Delivery to each subscriber happens on its own goroutine, so two
// notifications can arrive out of order; Change.Revision orders them.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/vk/evalgraph/internal/value"
)

const (
	// Topic is the watermill topic carrying Change payloads.
	Topic = "values.changed"
	// ActionTopic carries Action payloads.
	ActionTopic = "actions.requested"
)

// Change describes one committed batch.
type Change struct {
	BatchID  string            `json:"batch_id"`
	Revision uint64            `json:"revision"`
	Changed  []string          `json:"changed"`
	Statuses map[string]string `json:"statuses,omitempty"`
}

// Action is a side effect requested by evaluating a trigger property. The
// engine never performs it; subscribers do.
type Action struct {
	ID       string      `json:"id"`
	Path     string      `json:"path"`
	Revision uint64      `json:"revision"`
	Payload  value.Value `json:"payload"`
}

// Publisher is the side of Notifier the engine depends on.
type Publisher interface {
	Publish(change Change) error
	PublishAction(action Action) error
}

// Notifier fans Change events out to subscribers.
type Notifier struct {
	pubsub *gochannel.GoChannel
	logger *slog.Logger
	buffer int
}

// New creates a Notifier. buffer is the per-subscriber channel size.
// Watermill's own info logs are demoted to debug.
func New(logger *slog.Logger, buffer int) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	if buffer < 0 {
		buffer = 0
	}
	adapter := watermill.NewSlogLoggerWithLevelMapping(logger, map[slog.Level]slog.Level{
		slog.LevelInfo: slog.LevelDebug,
	})
	return &Notifier{
		pubsub: gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: int64(buffer)}, adapter),
		logger: logger,
		buffer: buffer,
	}
}

// Publish sends change to every current subscriber without waiting for
// them to consume it.
func (n *Notifier) Publish(change Change) error {
	return n.publish(Topic, change.BatchID, change.Revision, change)
}

// PublishAction sends action to every current action subscriber.
func (n *Notifier) PublishAction(action Action) error {
	return n.publish(ActionTopic, action.ID, action.Revision, action)
}

func (n *Notifier) publish(topic, id string, revision uint64, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s message: %w", topic, err)
	}
	if id == "" {
		id = watermill.NewUUID()
	}
	msg := message.NewMessage(id, payload)
	msg.Metadata.Set("revision", fmt.Sprint(revision))
	if err := n.pubsub.Publish(topic, msg); err != nil {
		return fmt.Errorf("failed to publish %s message: %w", topic, err)
	}
	return nil
}

// Subscribe returns a channel of decoded changes. The channel closes when
// ctx ends or the Notifier is closed.
func (n *Notifier) Subscribe(ctx context.Context) (<-chan Change, error) {
	return subscribe[Change](ctx, n, Topic)
}

// SubscribeActions returns a channel of decoded action requests.
func (n *Notifier) SubscribeActions(ctx context.Context) (<-chan Action, error) {
	return subscribe[Action](ctx, n, ActionTopic)
}

func subscribe[T any](ctx context.Context, n *Notifier, topic string) (<-chan T, error) {
	messages, err := n.pubsub.Subscribe(ctx, topic)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}

	out := make(chan T, n.buffer)
	go func() {
		defer close(out)
		for msg := range messages {
			var v T
			err := json.Unmarshal(msg.Payload, &v)
			msg.Ack()
			if err != nil {
				n.logger.Warn("Dropping undecodable message.", "topic", topic, "uuid", msg.UUID, "error", err)
				continue
			}
			select {
			case out <- v:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Close shuts the pub/sub down and closes every subscription.
func (n *Notifier) Close() error {
	return n.pubsub.Close()
}
