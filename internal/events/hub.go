package events

import (
	"context"
	"encoding/json"
	"time"

	"ai-chat-be/internal/pkg/logger"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
)

// EventType enumerates the structural changes the sidebar cares about.
type EventType string

const (
	ConversationCreated EventType = "conversation.created"
	ConversationDeleted EventType = "conversation.deleted"
	ConversationRenamed EventType = "conversation.renamed"
	FirstResponseDone   EventType = "conversation.first_response"
)

const topicStructural = "conversation.structural"

// StructuralEvent signals that the conversation list changed shape for a
// user: something was created, deleted, renamed, or finished its first
// assistant response (which may have produced a generated title).
type StructuralEvent struct {
	Type           EventType `json:"type"`
	UserId         uuid.UUID `json:"user_id"`
	ConversationId uuid.UUID `json:"conversation_id"`
	Title          string    `json:"title,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// Hub is the in-process bus for structural events. Publishers and
// subscribers are wired to it explicitly; there is no package-level
// instance, so ownership and shutdown are visible at the call sites.
type Hub struct {
	pubsub *gochannel.GoChannel
	logger logger.ILogger
}

func NewHub(log logger.ILogger) *Hub {
	return &Hub{
		pubsub: gochannel.NewGoChannel(gochannel.Config{}, watermill.NewStdLogger(false, false)),
		logger: log,
	}
}

// Publish emits a structural event. Failures are logged, not returned:
// sidebar refresh is advisory and must never fail the triggering request.
func (h *Hub) Publish(event StructuralEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("EventHub", "Failed to marshal structural event", map[string]interface{}{
			"type":  string(event.Type),
			"error": err.Error(),
		})
		return
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	if err := h.pubsub.Publish(topicStructural, msg); err != nil {
		h.logger.Error("EventHub", "Failed to publish structural event", map[string]interface{}{
			"type":  string(event.Type),
			"error": err.Error(),
		})
	}
}

// Subscribe returns a channel of structural events, decoded from the
// underlying messages. The channel closes when ctx is cancelled.
func (h *Hub) Subscribe(ctx context.Context) (<-chan StructuralEvent, error) {
	messages, err := h.pubsub.Subscribe(ctx, topicStructural)
	if err != nil {
		return nil, err
	}

	out := make(chan StructuralEvent)
	go func() {
		defer close(out)
		for msg := range messages {
			var event StructuralEvent
			if err := json.Unmarshal(msg.Payload, &event); err != nil {
				h.logger.Warn("EventHub", "Dropping undecodable structural event", map[string]interface{}{
					"message_id": msg.UUID,
					"error":      err.Error(),
				})
				msg.Ack()
				continue
			}
			msg.Ack()

			select {
			case out <- event:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Close shuts the bus down; pending subscribers' channels are closed.
func (h *Hub) Close() error {
	return h.pubsub.Close()
}
