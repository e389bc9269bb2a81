// Package eligibility decides whether a student may take a bed in a room.
//
// Evaluate is a pure function of its inputs. Callers load the snapshot
// (under the room lock) and act on the Decision.
package eligibility

import "github.com/punchamoorthee/hostelops/internal/domain"

// Decision is either Allow or a Deny carrying a reason.
type Decision struct {
	Allowed bool
	Reason  domain.Reason
}

var Allow = Decision{Allowed: true}

func Deny(reason domain.Reason) Decision {
	return Decision{Reason: reason}
}

// Err converts a deny decision into the matching domain error. It returns
// nil for Allow.
func (d Decision) Err(studentID, roomID int64) error {
	switch {
	case d.Allowed:
		return nil
	case d.Reason == domain.ReasonStudentNotFound:
		return domain.NotFound(d.Reason, studentID)
	case d.Reason == domain.ReasonRoomNotFound:
		return domain.NotFound(d.Reason, roomID)
	default:
		return &domain.DenyError{Code: d.Reason}
	}
}

// Input is the snapshot the checker evaluates. Nil pointers mean "absent".
type Input struct {
	Student          *domain.Student
	Room             *domain.Room
	Hostel           *domain.Hostel
	ActiveAllocation *domain.Allocation
	HasPaidPayment   bool
}

// Evaluate applies the rules in fixed order; the first failing rule wins.
func Evaluate(in Input) Decision {
	if in.Student == nil {
		return Deny(domain.ReasonStudentNotFound)
	}
	if in.Room == nil || in.Hostel == nil {
		return Deny(domain.ReasonRoomNotFound)
	}
	if in.ActiveAllocation != nil {
		return Deny(domain.ReasonAlreadyAllocated)
	}
	if !in.Room.HasSpace() {
		return Deny(domain.ReasonRoomFull)
	}
	if !GenderAllowed(in.Student.Gender, in.Hostel.Gender) {
		return Deny(domain.ReasonGenderMismatch)
	}
	if !in.HasPaidPayment {
		return Deny(domain.ReasonPaymentNotConfirmed)
	}
	return Allow
}

// GenderAllowed is the single gender policy for every booking path: the
// genders match, or the student's gender is Other.
func GenderAllowed(student, hostel domain.Gender) bool {
	return student == hostel || student == domain.GenderOther
}
