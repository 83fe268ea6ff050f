// Package store persists conversation event logs.
package store

import (
	"context"
	"errors"

	"github.com/agentcore/nexus/pkg/models"
)

// ErrNotFound is returned when a conversation has no events yet.
var ErrNotFound = errors.New("store: conversation not found")

// EventStore appends to and reads back a conversation's event log. All
// methods must be safe for concurrent use; Append must preserve the
// order events were appended in and assign each a strictly increasing
// Seq within its conversation.
type EventStore interface {
	// Append adds ev to conversationID's log, setting ev.Seq to the next
	// sequence number, and returns the stored event.
	Append(ctx context.Context, conversationID string, ev models.Event) (models.Event, error)

	// Load returns the full event log for a conversation in append
	// order. Returns ErrNotFound if the conversation has no events.
	Load(ctx context.Context, conversationID string) ([]models.Event, error)

	// View returns the condensation-transparent view for a conversation.
	View(ctx context.Context, conversationID string) (models.View, error)

	// Close releases any underlying resources (files, connections).
	Close() error
}
