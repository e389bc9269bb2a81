package store

import (
	"context"
	"time"

	"github.com/punchamoorthee/hostelops/internal/domain"
)

// PaymentGate answers whether a student holds a confirmed payment for a
// hostel. Read-only.
type PaymentGate interface {
	HasPaidPayment(ctx context.Context, studentID, hostelID int64) (bool, error)
}

// Tx is one atomic unit. Locks taken through it are held until the unit
// commits or rolls back. Callers must lock a room before a student.
type Tx interface {
	PaymentGate

	// LockRoom reads a room under an exclusive lock.
	LockRoom(ctx context.Context, roomID int64) (*domain.Room, error)
	// LockStudent reads a student under an exclusive lock.
	LockStudent(ctx context.Context, studentID int64) (*domain.Student, error)
	GetHostel(ctx context.Context, hostelID int64) (*domain.Hostel, error)

	ActiveAllocationForStudent(ctx context.Context, studentID int64) (*domain.Allocation, error)
	ActiveAllocationByID(ctx context.Context, allocationID int64) (*domain.Allocation, error)

	InsertAllocation(ctx context.Context, a *domain.Allocation) error
	VacateAllocation(ctx context.Context, allocationID int64, at time.Time) error

	// SetOccupancy is reserved for the occupancy ledger.
	SetOccupancy(ctx context.Context, roomID int64, occupied int, status domain.RoomStatus) error
}

// AllocationStore is what the allocation engine needs.
type AllocationStore interface {
	// WithinTx runs fn in one atomic unit. A nil return commits; an error,
	// a panic or a cancelled context rolls everything back.
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
	// FindActiveAllocation is an unlocked read used to discover which room
	// to lock before re-reading inside a unit.
	FindActiveAllocation(ctx context.Context, allocationID, studentID int64) (*domain.Allocation, error)
}

// PaymentStore persists payments. Confirmation touches a single row and
// needs no room lock.
type PaymentStore interface {
	PaymentGate
	CreatePayment(ctx context.Context, p *domain.Payment) error
	GetPayment(ctx context.Context, id int64) (*domain.Payment, error)
	// MarkPaymentPaid moves a PENDING payment to PAID in one conditional
	// write. changed is false when the payment was already PAID, so exactly
	// one of several concurrent confirmations reports the transition.
	MarkPaymentPaid(ctx context.Context, id int64) (p *domain.Payment, changed bool, err error)
	DeletePendingPayment(ctx context.Context, id int64) error
	ListPayments(ctx context.Context) ([]domain.Payment, error)
	PaymentsForStudent(ctx context.Context, studentID int64) ([]domain.Payment, error)
	LatestPaymentForStudent(ctx context.Context, studentID int64) (*domain.Payment, error)
}

// Directory is the read side over committed state.
type Directory interface {
	GetStudent(ctx context.Context, id int64) (*domain.Student, error)
	GetStudentByUserID(ctx context.Context, userID int64) (*domain.Student, error)
	GetHostel(ctx context.Context, id int64) (*domain.Hostel, error)
	GetRoom(ctx context.Context, id int64) (*domain.Room, error)
	ListStudents(ctx context.Context) ([]domain.Student, error)
	ListHostels(ctx context.Context) ([]domain.Hostel, error)
	// ListRooms returns rooms ordered by hostel then room number.
	ListRooms(ctx context.Context, f domain.RoomFilter) ([]domain.RoomView, error)
	ActiveAllocationView(ctx context.Context, studentID int64) (*domain.AllocationView, error)
	ListAllocations(ctx context.Context, f domain.AllocationFilter) ([]domain.AllocationView, error)
	StudentAllocations(ctx context.Context, studentID int64) ([]domain.AllocationView, error)
	Summary(ctx context.Context) (domain.Summary, error)
}

// Admin covers the creation paths used by administrators and the seeder.
// None of them can set room occupancy.
type Admin interface {
	CreateHostel(ctx context.Context, h *domain.Hostel) error
	CreateRoom(ctx context.Context, r *domain.Room) error
	CreateStudent(ctx context.Context, s *domain.Student) error
}

// Store is the full data layer. Components should depend on the narrower
// interfaces above.
type Store interface {
	AllocationStore
	PaymentStore
	Directory
	Admin
	Ping(ctx context.Context) error
	Close()
}
