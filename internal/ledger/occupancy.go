// Package ledger owns room occupancy. Occupied and Status change only
// through Increment and Decrement, inside the same unit that changes the
// allocation motivating them.
package ledger

import (
	"context"
	"fmt"

	"github.com/punchamoorthee/hostelops/internal/domain"
	"github.com/punchamoorthee/hostelops/internal/store"
)

// StatusFor derives the room status from its counters.
func StatusFor(occupied, capacity int) domain.RoomStatus {
	if occupied >= capacity {
		return domain.RoomFull
	}
	return domain.RoomAvailable
}

// Apply returns the occupancy and status after adding delta. The count
// floors at zero.
func Apply(room domain.Room, delta int) (int, domain.RoomStatus) {
	occupied := room.Occupied + delta
	if occupied < 0 {
		occupied = 0
	}
	return occupied, StatusFor(occupied, room.Capacity)
}

// Increment records one more active allocation in room. room must have been
// read through tx.LockRoom; it is updated in place on success.
func Increment(ctx context.Context, tx store.Tx, room *domain.Room) error {
	return write(ctx, tx, room, 1)
}

// Decrement records one fewer active allocation in room.
func Decrement(ctx context.Context, tx store.Tx, room *domain.Room) error {
	return write(ctx, tx, room, -1)
}

func write(ctx context.Context, tx store.Tx, room *domain.Room, delta int) error {
	occupied, status := Apply(*room, delta)
	if err := tx.SetOccupancy(ctx, room.ID, occupied, status); err != nil {
		return fmt.Errorf("occupancy update for room %d: %w", room.ID, err)
	}
	room.Occupied = occupied
	room.Status = status
	return nil
}
