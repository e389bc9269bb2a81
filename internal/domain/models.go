package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Gender string

const (
	GenderMale   Gender = "Male"
	GenderFemale Gender = "Female"
	GenderOther  Gender = "Other"
)

type RoomStatus string

const (
	RoomAvailable RoomStatus = "AVAILABLE"
	RoomFull      RoomStatus = "FULL"
)

type AllocationStatus string

const (
	AllocationActive  AllocationStatus = "ACTIVE"
	AllocationVacated AllocationStatus = "VACATED"
)

type PaymentOption string

const (
	OptionSemester PaymentOption = "SEMESTER"
	OptionFullYear PaymentOption = "FULL_YEAR"
)

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "PENDING"
	PaymentPaid    PaymentStatus = "PAID"
)

// Hostel groups rooms under a single gender policy and fee.
type Hostel struct {
	ID         int64           `json:"id"`
	Name       string          `json:"name"`
	Gender     Gender          `json:"gender"`
	TotalRooms int             `json:"total_rooms"`
	FeeAmount  decimal.Decimal `json:"fee_amount"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Room is owned by exactly one hostel. Occupied and Status are maintained
// by the occupancy ledger only.
type Room struct {
	ID         int64      `json:"id"`
	HostelID   int64      `json:"hostel_id"`
	RoomNumber string     `json:"room_number"`
	Capacity   int        `json:"capacity"`
	Occupied   int        `json:"occupied"`
	Status     RoomStatus `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
}

// HasSpace reports whether another active allocation fits.
func (r *Room) HasSpace() bool {
	return r.Occupied < r.Capacity
}

// Student is linked 1:1 to an account in the external identity provider.
type Student struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	RegNumber string    `json:"reg_number"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Gender    Gender    `json:"gender"`
	CreatedAt time.Time `json:"created_at"`
}

// Allocation binds one student to one room for one residency period.
// Rows are append-only: an allocation moves ACTIVE -> VACATED and is never
// reactivated.
type Allocation struct {
	ID          int64            `json:"id"`
	StudentID   int64            `json:"student_id"`
	RoomID      int64            `json:"room_id"`
	Status      AllocationStatus `json:"status"`
	AllocatedAt time.Time        `json:"allocated_at"`
	VacatedAt   *time.Time       `json:"vacated_at"`
}

// AllocationView is an allocation joined with its room and hostel for the
// read side.
type AllocationView struct {
	Allocation
	RoomNumber string `json:"room_number"`
	HostelID   int64  `json:"hostel_id"`
	HostelName string `json:"hostel_name"`
	RegNumber  string `json:"reg_number"`
}

type Payment struct {
	ID        int64           `json:"id"`
	StudentID int64           `json:"student_id"`
	HostelID  *int64          `json:"hostel_id"`
	Amount    decimal.Decimal `json:"amount"`
	Option    PaymentOption   `json:"option"`
	Status    PaymentStatus   `json:"status"`
	Reference string          `json:"reference,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// AllocateRequest is the DTO for admin-driven allocations.
type AllocateRequest struct {
	StudentID int64 `json:"student_id"`
	RoomID    int64 `json:"room_id"`
}

// BookRequest is the DTO for student self-service bookings.
type BookRequest struct {
	RoomID int64 `json:"room_id"`
}

// VacateRequest identifies the allocation to end, by id or by student.
type VacateRequest struct {
	AllocationID int64 `json:"allocation_id,omitempty"`
	StudentID    int64 `json:"student_id,omitempty"`
}

type InitiatePaymentRequest struct {
	HostelID  *int64        `json:"hostel_id"`
	Option    PaymentOption `json:"option"`
	Reference string        `json:"reference"`
	// Amount is accepted for compatibility and ignored.
	Amount *decimal.Decimal `json:"amount,omitempty"`
}

type AllocationFilter struct {
	HostelID int64
	RoomID   int64
	Status   AllocationStatus
}

type RoomFilter struct {
	HostelID      int64
	AvailableOnly bool
}

// RoomView is a room with its hostel's name and gender policy.
type RoomView struct {
	Room
	HostelName   string `json:"hostel_name"`
	HostelGender Gender `json:"hostel_gender"`
}

// AllocationPaymentStatus pairs an allocation with its student's latest payment.
type AllocationPaymentStatus struct {
	Allocation    AllocationView `json:"allocation"`
	LatestPayment *Payment       `json:"latest_payment"`
}

// StudentStatus is the active allocation and latest payment of one student.
type StudentStatus struct {
	Allocation *AllocationView `json:"allocation"`
	Payment    *Payment        `json:"payment"`
}

type StudentSummary struct {
	Student       Student         `json:"student"`
	TotalPaid     decimal.Decimal `json:"total_paid"`
	TotalPending  decimal.Decimal `json:"total_pending"`
	LatestPayment *Payment        `json:"latest_payment"`
	Allocation    *AllocationView `json:"allocation"`
}

// Summary holds the simple counts shown on the admin dashboard.
type Summary struct {
	TotalHostels      int `json:"total_hostels"`
	TotalRooms        int `json:"total_rooms"`
	ActiveAllocations int `json:"active_allocations"`
	AvailableRooms    int `json:"available_rooms"`
}
