package events

import (
	"context"
	"time"

	"github.com/terencetsy/maillayer-contactsync/internal/models"
)

type EventType string

const (
	SyncCompleted EventType = "contact_sync.completed"
	SyncFailed    EventType = "contact_sync.failed"
)

// SyncEvent announces the terminal outcome of one contact sync job.
type SyncEvent struct {
	Type          EventType           `json:"type"`
	JobID         string              `json:"jobId"`
	IntegrationID string              `json:"integrationId"`
	SyncID        *string             `json:"syncId,omitempty"`
	Provider      models.ProviderType `json:"provider"`
	Trigger       models.SyncTrigger  `json:"trigger"`
	Attempt       int                 `json:"attempt"`
	Result        *models.SyncResult  `json:"result,omitempty"`
	Error         string              `json:"error,omitempty"`
	ErrorKind     string              `json:"errorKind,omitempty"`
	OccurredAt    time.Time           `json:"occurredAt"`
}

// RoutingKey is the topic key events are published under.
func (e SyncEvent) RoutingKey() string {
	return string(e.Type) + "." + string(e.Provider)
}

type Publisher interface {
	Publish(ctx context.Context, event SyncEvent) error
	Close() error
}

// NoopPublisher drops every event. Used when no broker is configured.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, SyncEvent) error { return nil }

func (NoopPublisher) Close() error { return nil }
