// Package events publishes placement domain events keyed by cargo ID.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	"cargo-placement-backend/internal/model"
	"cargo-placement-backend/internal/store"
)

// Type names a domain event.
type Type string

const (
	PlacementPlaced   Type = "placement.placed"
	PlacementReverted Type = "placement.reverted"
	CargoFullyPlaced  Type = "cargo.fully_placed"
	IntegrityAlarm    Type = "integrity.alarm"
)

// Event is the wire payload. Consumers key on CargoID, so all events of one cargo
// land on the same partition in order.
type Event struct {
	ID            string               `json:"id"`
	Type          Type                 `json:"type"`
	CargoID       string               `json:"cargo_id"`
	DisplayNumber string               `json:"display_number,omitempty"`
	UnitNumber    string               `json:"unit_number,omitempty"`
	Cell          *model.CellAddress   `json:"cell,omitempty"`
	OperatorID    string               `json:"operator_id,omitempty"`
	SessionID     string               `json:"session_id,omitempty"`
	State         model.PlacementState `json:"state,omitempty"`
	Discrepancies []store.Discrepancy  `json:"discrepancies,omitempty"`
	Message       string               `json:"message,omitempty"`
	OccurredAt    time.Time            `json:"occurred_at"`
}

// New stamps an event with a fresh ID and the current time.
func New(t Type, cargoID string) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       t,
		CargoID:    cargoID,
		OccurredAt: time.Now().UTC(),
	}
}

// Publisher is the interface used by services to publish events.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}
