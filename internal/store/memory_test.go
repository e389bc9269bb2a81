package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/punchamoorthee/hostelops/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedMemory(t *testing.T, lockTimeout time.Duration) (*MemoryStore, *domain.Room, *domain.Student) {
	t.Helper()
	ctx := context.Background()
	s := NewMemoryStore(lockTimeout)

	h := &domain.Hostel{Name: "North", Gender: domain.GenderMale, TotalRooms: 1, FeeAmount: decimal.NewFromInt(500)}
	require.NoError(t, s.CreateHostel(ctx, h))
	r := &domain.Room{HostelID: h.ID, RoomNumber: "N-101", Capacity: 1}
	require.NoError(t, s.CreateRoom(ctx, r))
	st := &domain.Student{UserID: 10, RegNumber: "REG-1", FirstName: "Amal", Gender: domain.GenderMale}
	require.NoError(t, s.CreateStudent(ctx, st))
	return s, r, st
}

func TestMemoryCommitAppliesStagedWrites(t *testing.T) {
	ctx := context.Background()
	s, room, student := seedMemory(t, time.Second)

	a := &domain.Allocation{StudentID: student.ID, RoomID: room.ID, Status: domain.AllocationActive, AllocatedAt: time.Now()}
	err := s.WithinTx(ctx, func(tx Tx) error {
		r, err := tx.LockRoom(ctx, room.ID)
		require.NoError(t, err)
		require.NotNil(t, r)
		if err := tx.InsertAllocation(ctx, a); err != nil {
			return err
		}
		return tx.SetOccupancy(ctx, room.ID, 1, domain.RoomFull)
	})
	require.NoError(t, err)
	assert.NotZero(t, a.ID)

	got, err := s.GetRoom(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Occupied)
	assert.Equal(t, domain.RoomFull, got.Status)

	active, err := s.FindActiveAllocation(ctx, 0, student.ID)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, a.ID, active.ID)
}

func TestMemoryRollbackDiscardsEverything(t *testing.T) {
	ctx := context.Background()
	s, room, student := seedMemory(t, time.Second)
	boom := errors.New("boom")

	err := s.WithinTx(ctx, func(tx Tx) error {
		_, _ = tx.LockRoom(ctx, room.ID)
		_ = tx.InsertAllocation(ctx, &domain.Allocation{StudentID: student.ID, RoomID: room.ID, Status: domain.AllocationActive})
		_ = tx.SetOccupancy(ctx, room.ID, 1, domain.RoomFull)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := s.GetRoom(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Occupied)
	active, err := s.FindActiveAllocation(ctx, 0, student.ID)
	require.NoError(t, err)
	assert.Nil(t, active)
}

func TestMemoryCancelledContextRollsBack(t *testing.T) {
	s, room, _ := seedMemory(t, time.Second)
	ctx, cancel := context.WithCancel(context.Background())

	err := s.WithinTx(ctx, func(tx Tx) error {
		_ = tx.SetOccupancy(ctx, room.ID, 1, domain.RoomFull)
		cancel()
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)

	got, err := s.GetRoom(context.Background(), room.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Occupied)
}

func TestMemoryLockTimeout(t *testing.T) {
	ctx := context.Background()
	s, room, _ := seedMemory(t, 30*time.Millisecond)

	held := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_ = s.WithinTx(ctx, func(tx Tx) error {
			_, _ = tx.LockRoom(ctx, room.ID)
			close(held)
			<-done
			return nil
		})
	}()
	<-held

	err := s.WithinTx(ctx, func(tx Tx) error {
		_, err := tx.LockRoom(ctx, room.ID)
		return err
	})
	close(done)

	assert.ErrorIs(t, err, domain.ErrLockTimeout)
	assert.True(t, domain.IsRetryable(err))
}

func TestMemoryLockWaitRespectsCancellation(t *testing.T) {
	s, room, _ := seedMemory(t, 0)
	bg := context.Background()

	held := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_ = s.WithinTx(bg, func(tx Tx) error {
			_, _ = tx.LockRoom(bg, room.ID)
			close(held)
			<-done
			return nil
		})
	}()
	<-held
	defer close(done)

	ctx, cancel := context.WithTimeout(bg, 20*time.Millisecond)
	defer cancel()
	err := s.WithinTx(ctx, func(tx Tx) error {
		_, err := tx.LockRoom(ctx, room.ID)
		return err
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMemoryLocksReleasedAfterPanic(t *testing.T) {
	ctx := context.Background()
	s, room, _ := seedMemory(t, 50*time.Millisecond)

	assert.Panics(t, func() {
		_ = s.WithinTx(ctx, func(tx Tx) error {
			_, _ = tx.LockRoom(ctx, room.ID)
			panic("mid-unit")
		})
	})

	err := s.WithinTx(ctx, func(tx Tx) error {
		_, err := tx.LockRoom(ctx, room.ID)
		return err
	})
	assert.NoError(t, err)
}

func TestMemoryCommitRejectsSecondActiveAllocation(t *testing.T) {
	ctx := context.Background()
	s, room, student := seedMemory(t, time.Second)

	insert := func() error {
		return s.WithinTx(ctx, func(tx Tx) error {
			return tx.InsertAllocation(ctx, &domain.Allocation{StudentID: student.ID, RoomID: room.ID, Status: domain.AllocationActive})
		})
	}
	require.NoError(t, insert())
	assert.ErrorIs(t, insert(), domain.ErrAlreadyAllocated)
}

func TestMemoryLockRoomMissing(t *testing.T) {
	ctx := context.Background()
	s, _, _ := seedMemory(t, time.Second)

	err := s.WithinTx(ctx, func(tx Tx) error {
		r, err := tx.LockRoom(ctx, 9999)
		assert.Nil(t, r)
		return err
	})
	assert.NoError(t, err)
}

func TestMemoryPayments(t *testing.T) {
	ctx := context.Background()
	s, room, student := seedMemory(t, time.Second)
	hostelID := room.HostelID

	p := &domain.Payment{StudentID: student.ID, HostelID: &hostelID, Amount: decimal.NewFromInt(500), Option: domain.OptionSemester, Status: domain.PaymentPending}
	require.NoError(t, s.CreatePayment(ctx, p))

	paid, err := s.HasPaidPayment(ctx, student.ID, hostelID)
	require.NoError(t, err)
	assert.False(t, paid)

	_, changed, err := s.MarkPaymentPaid(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, changed)
	again, changed, err := s.MarkPaymentPaid(ctx, p.ID)
	require.NoError(t, err)
	assert.False(t, changed, "already PAID")
	assert.Equal(t, domain.PaymentPaid, again.Status)
	_, _, err = s.MarkPaymentPaid(ctx, 424242)
	assert.ErrorIs(t, err, domain.ErrPaymentNotFound)
	paid, err = s.HasPaidPayment(ctx, student.ID, hostelID)
	require.NoError(t, err)
	assert.True(t, paid)

	assert.ErrorIs(t, s.DeletePendingPayment(ctx, p.ID), domain.ErrPaymentSettled)
	assert.ErrorIs(t, s.DeletePendingPayment(ctx, 424242), domain.ErrPaymentNotFound)

	latest, err := s.LatestPaymentForStudent(ctx, student.ID)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, p.ID, latest.ID)
}

func TestMemoryListAllocationsFilter(t *testing.T) {
	ctx := context.Background()
	s, room, student := seedMemory(t, time.Second)

	require.NoError(t, s.WithinTx(ctx, func(tx Tx) error {
		return tx.InsertAllocation(ctx, &domain.Allocation{StudentID: student.ID, RoomID: room.ID, Status: domain.AllocationActive})
	}))

	all, err := s.ListAllocations(ctx, domain.AllocationFilter{HostelID: room.HostelID})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "N-101", all[0].RoomNumber)
	assert.Equal(t, "North", all[0].HostelName)
	assert.Equal(t, "REG-1", all[0].RegNumber)

	none, err := s.ListAllocations(ctx, domain.AllocationFilter{Status: domain.AllocationVacated})
	require.NoError(t, err)
	assert.Empty(t, none)

	sum, err := s.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.Summary{TotalHostels: 1, TotalRooms: 1, ActiveAllocations: 1, AvailableRooms: 1}, sum)
}

func TestMemoryListRooms(t *testing.T) {
	ctx := context.Background()
	s, room, _ := seedMemory(t, time.Second)
	other := &domain.Hostel{Name: "South", Gender: domain.GenderFemale, TotalRooms: 1}
	require.NoError(t, s.CreateHostel(ctx, other))
	spare := &domain.Room{HostelID: other.ID, RoomNumber: "S-1", Capacity: 2}
	require.NoError(t, s.CreateRoom(ctx, spare))
	require.NoError(t, s.WithinTx(ctx, func(tx Tx) error {
		return tx.SetOccupancy(ctx, room.ID, 1, domain.RoomFull)
	}))

	hostels, err := s.ListHostels(ctx)
	require.NoError(t, err)
	require.Len(t, hostels, 2)
	assert.Equal(t, "North", hostels[0].Name)

	all, err := s.ListRooms(ctx, domain.RoomFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, room.ID, all[0].ID, "ordered by hostel")
	assert.Equal(t, "North", all[0].HostelName)

	open, err := s.ListRooms(ctx, domain.RoomFilter{AvailableOnly: true})
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, domain.GenderFemale, open[0].HostelGender)

	byHostel, err := s.ListRooms(ctx, domain.RoomFilter{HostelID: room.HostelID})
	require.NoError(t, err)
	require.Len(t, byHostel, 1)
	assert.Equal(t, domain.RoomFull, byHostel[0].Status)
}
