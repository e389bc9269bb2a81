package eligibility

import (
	"testing"

	"github.com/punchamoorthee/hostelops/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseInput() Input {
	return Input{
		Student:        &domain.Student{ID: 1, Gender: domain.GenderFemale},
		Room:           &domain.Room{ID: 10, HostelID: 5, Capacity: 2, Occupied: 1},
		Hostel:         &domain.Hostel{ID: 5, Gender: domain.GenderFemale},
		HasPaidPayment: true,
	}
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Input)
		want   Decision
	}{
		{"allow", func(*Input) {}, Allow},
		{"missing student", func(in *Input) { in.Student = nil }, Deny(domain.ReasonStudentNotFound)},
		{"missing room", func(in *Input) { in.Room = nil }, Deny(domain.ReasonRoomNotFound)},
		{"missing hostel", func(in *Input) { in.Hostel = nil }, Deny(domain.ReasonRoomNotFound)},
		{"already allocated", func(in *Input) {
			in.ActiveAllocation = &domain.Allocation{ID: 3, Status: domain.AllocationActive}
		}, Deny(domain.ReasonAlreadyAllocated)},
		{"room full", func(in *Input) { in.Room.Occupied = 2 }, Deny(domain.ReasonRoomFull)},
		{"room over capacity", func(in *Input) { in.Room.Occupied = 3 }, Deny(domain.ReasonRoomFull)},
		{"female into male hostel", func(in *Input) { in.Hostel.Gender = domain.GenderMale }, Deny(domain.ReasonGenderMismatch)},
		{"other into male hostel", func(in *Input) {
			in.Student.Gender = domain.GenderOther
			in.Hostel.Gender = domain.GenderMale
		}, Allow},
		{"no paid payment", func(in *Input) { in.HasPaidPayment = false }, Deny(domain.ReasonPaymentNotConfirmed)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := baseInput()
			tt.mutate(&in)
			assert.Equal(t, tt.want, Evaluate(in))
		})
	}
}

func TestEvaluateRuleOrder(t *testing.T) {
	// Every rule fails at once; the earliest rule must be reported.
	in := Input{
		Student:          &domain.Student{ID: 1, Gender: domain.GenderFemale},
		Room:             &domain.Room{ID: 10, Capacity: 1, Occupied: 1},
		Hostel:           &domain.Hostel{ID: 5, Gender: domain.GenderMale},
		ActiveAllocation: &domain.Allocation{ID: 2},
	}
	assert.Equal(t, domain.ReasonAlreadyAllocated, Evaluate(in).Reason)

	in.ActiveAllocation = nil
	assert.Equal(t, domain.ReasonRoomFull, Evaluate(in).Reason)

	in.Room.Occupied = 0
	assert.Equal(t, domain.ReasonGenderMismatch, Evaluate(in).Reason)

	in.Hostel.Gender = domain.GenderFemale
	assert.Equal(t, domain.ReasonPaymentNotConfirmed, Evaluate(in).Reason)

	in.Student = nil
	assert.Equal(t, domain.ReasonStudentNotFound, Evaluate(in).Reason)
}

func TestDecisionErr(t *testing.T) {
	assert.NoError(t, Allow.Err(1, 2))

	err := Deny(domain.ReasonRoomNotFound).Err(1, 2)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
	var nf *domain.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, int64(2), nf.ID)

	err = Deny(domain.ReasonStudentNotFound).Err(1, 2)
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, int64(1), nf.ID)

	assert.ErrorIs(t, Deny(domain.ReasonGenderMismatch).Err(1, 2), domain.ErrGenderMismatch)
	assert.Equal(t, domain.ReasonRoomFull, domain.ReasonOf(Deny(domain.ReasonRoomFull).Err(1, 2)))
}

func TestGenderAllowed(t *testing.T) {
	assert.True(t, GenderAllowed(domain.GenderMale, domain.GenderMale))
	assert.True(t, GenderAllowed(domain.GenderOther, domain.GenderFemale))
	assert.False(t, GenderAllowed(domain.GenderMale, domain.GenderFemale))
	assert.False(t, GenderAllowed(domain.GenderFemale, domain.GenderMale))
}
