package service

import (
	"context"
	"testing"
	"time"

	"github.com/punchamoorthee/hostelops/internal/domain"
	"github.com/punchamoorthee/hostelops/internal/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdminCreates(t *testing.T) {
	ctx := context.Background()
	svc := NewAdminService(store.NewMemoryStore(time.Second))

	h, err := svc.CreateHostel(ctx, CreateHostelRequest{Name: " West ", Gender: domain.GenderFemale, TotalRooms: 4, FeeAmount: decimal.RequireFromString("99.999")})
	require.NoError(t, err)
	assert.Equal(t, "West", h.Name)
	assert.Equal(t, "100.00", h.FeeAmount.StringFixed(2))

	r, err := svc.CreateRoom(ctx, CreateRoomRequest{HostelID: h.ID, RoomNumber: "W-1", Capacity: 3})
	require.NoError(t, err)
	assert.Equal(t, 0, r.Occupied)
	assert.Equal(t, domain.RoomAvailable, r.Status)

	_, err = svc.CreateRoom(ctx, CreateRoomRequest{HostelID: 9999, RoomNumber: "X", Capacity: 1})
	assert.ErrorIs(t, err, domain.ErrHostelNotFound)

	st, err := svc.CreateStudent(ctx, CreateStudentRequest{UserID: 3, RegNumber: "R3", FirstName: "Ira", Gender: domain.GenderOther})
	require.NoError(t, err)
	assert.NotZero(t, st.ID)
}

func TestAdminValidation(t *testing.T) {
	ctx := context.Background()
	svc := NewAdminService(store.NewMemoryStore(time.Second))
	var v *domain.ValidationError

	_, err := svc.CreateHostel(ctx, CreateHostelRequest{Name: "", Gender: domain.GenderMale})
	assert.ErrorAs(t, err, &v)
	_, err = svc.CreateHostel(ctx, CreateHostelRequest{Name: "Mixed", Gender: domain.GenderOther})
	assert.ErrorAs(t, err, &v)
	_, err = svc.CreateHostel(ctx, CreateHostelRequest{Name: "Neg", Gender: domain.GenderMale, FeeAmount: decimal.NewFromInt(-1)})
	assert.ErrorAs(t, err, &v)
	_, err = svc.CreateRoom(ctx, CreateRoomRequest{HostelID: 1, RoomNumber: "A", Capacity: 0})
	assert.ErrorAs(t, err, &v)
	_, err = svc.CreateStudent(ctx, CreateStudentRequest{UserID: 1, RegNumber: "R", FirstName: "A", Gender: "Unknown"})
	assert.ErrorAs(t, err, &v)
}
