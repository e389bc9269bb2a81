package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/punchamoorthee/hostelops/internal/audit"
	"github.com/punchamoorthee/hostelops/internal/domain"
	"github.com/punchamoorthee/hostelops/internal/eligibility"
	"github.com/punchamoorthee/hostelops/internal/ledger"
	"github.com/punchamoorthee/hostelops/internal/metrics"
	"github.com/punchamoorthee/hostelops/internal/store"
)

const maxVacateAttempts = 3

// errMoved signals that the allocation found before locking was no longer
// active once the locks were held.
var errMoved = errors.New("active allocation changed before lock")

// Engine is the only component that creates or vacates allocations. Every
// change runs in one unit that holds the room lock, then the student lock.
type Engine struct {
	store  store.AllocationStore
	audit  audit.Emitter
	cache  SummaryInvalidator
	logger *slog.Logger
	now    func() time.Time
}

func NewEngine(s store.AllocationStore, opts ...Option) *Engine {
	o := buildOptions(opts)
	return &Engine{
		store:  s,
		audit:  o.audit,
		cache:  o.cache,
		logger: o.logger,
		now:    o.now,
	}
}

// Allocate places studentID in roomID. Deny outcomes are returned as
// *domain.DenyError and missing entities as *domain.NotFoundError; neither
// writes anything.
func (e *Engine) Allocate(ctx context.Context, actor Actor, studentID, roomID int64) (*domain.Allocation, error) {
	if err := required("student_id", studentID); err != nil {
		return nil, err
	}
	if err := required("room_id", roomID); err != nil {
		return nil, err
	}

	start := time.Now()
	var created *domain.Allocation
	err := e.store.WithinTx(ctx, func(tx store.Tx) error {
		// 1. Locks, room first
		room, err := tx.LockRoom(ctx, roomID)
		if err != nil {
			return err
		}
		student, err := tx.LockStudent(ctx, studentID)
		if err != nil {
			return err
		}

		// 2. Snapshot under lock
		in := eligibility.Input{Student: student, Room: room}
		if room != nil {
			if in.Hostel, err = tx.GetHostel(ctx, room.HostelID); err != nil {
				return err
			}
		}
		if student != nil {
			if in.ActiveAllocation, err = tx.ActiveAllocationForStudent(ctx, studentID); err != nil {
				return err
			}
			if in.Hostel != nil {
				if in.HasPaidPayment, err = tx.HasPaidPayment(ctx, studentID, in.Hostel.ID); err != nil {
					return err
				}
			}
		}

		// 3. Business rules
		if err := eligibility.Evaluate(in).Err(studentID, roomID); err != nil {
			return err
		}

		// 4. Allocation row and occupancy
		a := &domain.Allocation{
			StudentID:   studentID,
			RoomID:      roomID,
			Status:      domain.AllocationActive,
			AllocatedAt: e.now(),
		}
		if err := tx.InsertAllocation(ctx, a); err != nil {
			return fmt.Errorf("allocation insert failed: %w", err)
		}
		if err := ledger.Increment(ctx, tx, room); err != nil {
			return err
		}
		created = a
		return nil
	})
	err = classify("allocate", err)
	e.observe("allocate", start, err)
	if err != nil {
		return nil, err
	}

	action := audit.ActionRoomBooked
	if actor.Admin {
		action = audit.ActionAdminAllocate
	}
	e.afterCommit(ctx, audit.NewEvent(actor.UserID, action, audit.EntityAllocation, created.ID,
		fmt.Sprintf("student %d allocated to room %d", studentID, roomID)))
	return created, nil
}

// Vacate ends the active allocation identified by allocationID or, when that
// is zero, by studentID. Vacating something that is not active returns
// AllocationNotFound and leaves occupancy unchanged.
func (e *Engine) Vacate(ctx context.Context, actor Actor, allocationID, studentID int64) (*domain.Allocation, error) {
	if allocationID <= 0 && studentID <= 0 {
		return nil, &domain.ValidationError{Field: "allocation_id", Message: "allocation_id or student_id is required"}
	}
	notFoundID := allocationID
	if notFoundID <= 0 {
		notFoundID = studentID
	}

	start := time.Now()
	var (
		vacated *domain.Allocation
		err     error
	)
	for attempt := 1; ; attempt++ {
		vacated, err = e.vacateOnce(ctx, allocationID, studentID, notFoundID)
		if !errors.Is(err, errMoved) {
			break
		}
		if attempt == maxVacateAttempts {
			// The student's active allocation kept changing under churn.
			// Nothing was written; callers may retry the whole request.
			err = &domain.ConflictError{Code: domain.ReasonSerializationFailure, Err: err}
			break
		}
		e.logger.Debug("vacate target moved, retrying", "attempt", attempt, "allocation_id", allocationID, "student_id", studentID)
	}
	err = classify("vacate", err)
	e.observe("vacate", start, err)
	if err != nil {
		return nil, err
	}

	action := audit.ActionRoomVacated
	if actor.Admin {
		action = audit.ActionAdminVacate
	}
	e.afterCommit(ctx, audit.NewEvent(actor.UserID, action, audit.EntityAllocation, vacated.ID,
		fmt.Sprintf("student %d vacated room %d", vacated.StudentID, vacated.RoomID)))
	return vacated, nil
}

func (e *Engine) vacateOnce(ctx context.Context, allocationID, studentID, notFoundID int64) (*domain.Allocation, error) {
	// The room is unknown until the allocation is read, so read it unlocked
	// and confirm under the locks.
	target, err := e.store.FindActiveAllocation(ctx, allocationID, studentID)
	if err != nil {
		return nil, err
	}
	if target == nil {
		return nil, domain.NotFound(domain.ReasonAllocationNotFound, notFoundID)
	}

	var vacated *domain.Allocation
	err = e.store.WithinTx(ctx, func(tx store.Tx) error {
		room, err := tx.LockRoom(ctx, target.RoomID)
		if err != nil {
			return err
		}
		if _, err := tx.LockStudent(ctx, target.StudentID); err != nil {
			return err
		}

		current, err := tx.ActiveAllocationByID(ctx, target.ID)
		if err != nil {
			return err
		}
		if current == nil {
			return errMoved
		}
		if room == nil {
			return domain.NotFound(domain.ReasonRoomNotFound, target.RoomID)
		}

		at := e.now()
		if err := tx.VacateAllocation(ctx, current.ID, at); err != nil {
			return err
		}
		if err := ledger.Decrement(ctx, tx, room); err != nil {
			return err
		}
		current.Status = domain.AllocationVacated
		current.VacatedAt = &at
		vacated = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return vacated, nil
}

// GetActiveAllocationForStudent returns nil when the student holds no active
// allocation.
func (e *Engine) GetActiveAllocationForStudent(ctx context.Context, studentID int64) (*domain.Allocation, error) {
	if err := required("student_id", studentID); err != nil {
		return nil, err
	}
	a, err := e.store.FindActiveAllocation(ctx, 0, studentID)
	return a, classify("active allocation", err)
}

func (e *Engine) observe(op string, start time.Time, err error) {
	metrics.AllocationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	metrics.AllocationOutcomes.WithLabelValues(op, outcome(err)).Inc()
	var storeErr *domain.StoreError
	if errors.As(err, &storeErr) {
		e.logger.Error("allocation unit failed", "operation", op, "error", err)
	}
}

// afterCommit runs the side channels. Neither can fail the operation.
func (e *Engine) afterCommit(ctx context.Context, ev audit.Event) {
	e.cache.InvalidateSummary(context.WithoutCancel(ctx))
	e.audit.Emit(ev)
}
