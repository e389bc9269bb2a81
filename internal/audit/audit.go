// Package audit records who changed allocations and payments. Events are
// emitted only after the change has committed and delivery is best-effort.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Action string

const (
	ActionRoomBooked       Action = "ROOM_BOOKED"
	ActionRoomVacated      Action = "ROOM_VACATED"
	ActionAdminAllocate    Action = "ADMIN_ALLOCATE"
	ActionAdminVacate      Action = "ADMIN_VACATE"
	ActionPaymentConfirmed Action = "PAYMENT_CONFIRMED"
	ActionPaymentDeleted   Action = "PAYMENT_DELETED"
)

const (
	EntityAllocation = "ALLOCATION"
	EntityPayment    = "PAYMENT"
)

type Event struct {
	ID          uuid.UUID `json:"id"`
	ActorUserID int64     `json:"actor_user_id"`
	Action      Action    `json:"action"`
	Entity      string    `json:"entity"`
	EntityID    int64     `json:"entity_id"`
	Description string    `json:"description"`
	At          time.Time `json:"at"`
}

func NewEvent(actor int64, action Action, entity string, entityID int64, description string) Event {
	return Event{
		ID:          uuid.New(),
		ActorUserID: actor,
		Action:      action,
		Entity:      entity,
		EntityID:    entityID,
		Description: description,
		At:          time.Now().UTC(),
	}
}

// Sink persists one event.
type Sink interface {
	Record(ctx context.Context, e Event) error
}

// Emitter accepts events without blocking the caller.
type Emitter interface {
	Emit(e Event)
}

// Discard is an Emitter that drops everything.
var Discard Emitter = discard{}

type discard struct{}

func (discard) Emit(Event) {}
