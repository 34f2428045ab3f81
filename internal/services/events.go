package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/bookstore-api/apiserver/internal/logging"
	"github.com/google/uuid"
)

// Catalog event types.
const (
	EventGenreCreated = "genre.created"
	EventGenreUpdated = "genre.updated"
	EventGenreDeleted = "genre.deleted"
	EventBookCreated  = "book.created"
	EventBookUpdated  = "book.updated"
	EventBookDeleted  = "book.deleted"
)

// EventPublisher sends raw messages to a named channel.
type EventPublisher interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
}

// CatalogEvent is the payload published after a catalog change.
type CatalogEvent struct {
	Type       string    `json:"type"`
	ID         uuid.UUID `json:"id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Events publishes catalog events. A nil *Events drops everything.
type Events struct {
	publisher EventPublisher
	channel   string
	now       func() time.Time
}

func NewEvents(publisher EventPublisher, channel string) *Events {
	return &Events{publisher: publisher, channel: channel, now: time.Now}
}

// Emit publishes an event for the entity id. Failures are logged and swallowed;
// the change they describe has already been committed.
func (e *Events) Emit(ctx context.Context, eventType string, id uuid.UUID) {
	if e == nil || e.publisher == nil {
		return
	}

	data, err := json.Marshal(CatalogEvent{
		Type:       eventType,
		ID:         id,
		OccurredAt: e.now().UTC(),
	})
	if err != nil {
		logging.FromContext(ctx).Warn("failed to encode catalog event", "type", eventType, "error", err)
		return
	}

	if _, err := e.publisher.Publish(ctx, e.channel, data, map[string]string{"type": eventType}); err != nil {
		logging.FromContext(ctx).Warn("failed to publish catalog event",
			"type", eventType,
			"id", id,
			"channel", e.channel,
			"error", err,
		)
	}
}
