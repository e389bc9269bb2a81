package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/punchamoorthee/hostelops/internal/audit"
	"github.com/punchamoorthee/hostelops/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestAmount(t *testing.T) {
	tests := []struct {
		fee    string
		option domain.PaymentOption
		want   string
	}{
		{"500", domain.OptionSemester, "500.00"},
		{"500", domain.OptionFullYear, "1000.00"},
		{"333.335", domain.OptionSemester, "333.34"},
		{"120.10", "MONTHLY", "120.10"},
	}
	for _, tt := range tests {
		t.Run(string(tt.option)+"/"+tt.fee, func(t *testing.T) {
			got := Amount(decimal.RequireFromString(tt.fee), tt.option)
			assert.Equal(t, tt.want, got.StringFixed(2))
		})
	}
}

func newPaymentFixture(t *testing.T) (*fixture, *PaymentService) {
	t.Helper()
	f := newFixture(t, time.Second)
	return f, NewPaymentService(f.store, f.store, WithAudit(f.events))
}

func TestInitiateComputesAmountServerSide(t *testing.T) {
	f, svc := newPaymentFixture(t)
	st := f.student(t, domain.GenderMale)
	bogus := decimal.NewFromInt(1)

	p, err := svc.Initiate(context.Background(), st.ID, domain.InitiatePaymentRequest{
		HostelID: &f.male.ID,
		Option:   domain.OptionFullYear,
		Amount:   &bogus,
	})
	require.NoError(t, err)
	assert.Equal(t, "1000.00", p.Amount.StringFixed(2))
	assert.Equal(t, domain.PaymentPending, p.Status)
	assert.Equal(t, domain.OptionFullYear, p.Option)
	require.NotNil(t, p.HostelID)
	assert.Equal(t, f.male.ID, *p.HostelID)
}

func TestInitiateUsesActiveAllocationHostel(t *testing.T) {
	f, svc := newPaymentFixture(t)
	ctx := context.Background()
	room := f.room(t, f.female, 2)
	st := f.student(t, domain.GenderFemale, f.female)
	_, err := f.engine.Allocate(ctx, adminActor, st.ID, room.ID)
	require.NoError(t, err)

	p, err := svc.Initiate(ctx, st.ID, domain.InitiatePaymentRequest{Option: "WEEKLY"})
	require.NoError(t, err)
	assert.Equal(t, f.female.ID, *p.HostelID)
	assert.Equal(t, domain.OptionSemester, p.Option)
	assert.Equal(t, "450.00", p.Amount.StringFixed(2))
}

func TestInitiateFailures(t *testing.T) {
	f, svc := newPaymentFixture(t)
	ctx := context.Background()
	st := f.student(t, domain.GenderMale)

	_, err := svc.Initiate(ctx, st.ID, domain.InitiatePaymentRequest{})
	assert.ErrorIs(t, err, domain.ErrHostelNotFound, "no hostel given and no active allocation")

	missing := int64(424242)
	_, err = svc.Initiate(ctx, st.ID, domain.InitiatePaymentRequest{HostelID: &missing})
	assert.ErrorIs(t, err, domain.ErrHostelNotFound)

	_, err = svc.Initiate(ctx, 424242, domain.InitiatePaymentRequest{HostelID: &f.male.ID})
	assert.ErrorIs(t, err, domain.ErrStudentNotFound)

	free := &domain.Hostel{Name: "Free", Gender: domain.GenderMale, FeeAmount: decimal.Zero}
	require.NoError(t, f.store.CreateHostel(ctx, free))
	_, err = svc.Initiate(ctx, st.ID, domain.InitiatePaymentRequest{HostelID: &free.ID})
	var v *domain.ValidationError
	assert.ErrorAs(t, err, &v)
}

func TestConfirmUnlocksAllocation(t *testing.T) {
	f, svc := newPaymentFixture(t)
	ctx := context.Background()
	room := f.room(t, f.male, 1)
	st := f.student(t, domain.GenderMale)

	p, err := svc.Initiate(ctx, st.ID, domain.InitiatePaymentRequest{HostelID: &f.male.ID})
	require.NoError(t, err)

	_, err = f.engine.Allocate(ctx, studentActor, st.ID, room.ID)
	assert.ErrorIs(t, err, domain.ErrPaymentNotConfirmed)

	paid, err := svc.Confirm(ctx, adminActor, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentPaid, paid.Status)

	again, err := svc.Confirm(ctx, adminActor, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentPaid, again.Status)

	_, err = f.engine.Allocate(ctx, studentActor, st.ID, room.ID)
	require.NoError(t, err)

	assert.Equal(t, []audit.Action{audit.ActionPaymentConfirmed, audit.ActionRoomBooked}, f.events.actions())
}

func TestDeleteOnlyPending(t *testing.T) {
	f, svc := newPaymentFixture(t)
	ctx := context.Background()
	st := f.student(t, domain.GenderMale)

	pending, err := svc.Initiate(ctx, st.ID, domain.InitiatePaymentRequest{HostelID: &f.male.ID})
	require.NoError(t, err)
	settled, err := svc.Initiate(ctx, st.ID, domain.InitiatePaymentRequest{HostelID: &f.male.ID})
	require.NoError(t, err)
	_, err = svc.Confirm(ctx, adminActor, settled.ID)
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, adminActor, pending.ID))
	assert.ErrorIs(t, svc.Delete(ctx, adminActor, settled.ID), domain.ErrPaymentSettled)
	assert.ErrorIs(t, svc.Delete(ctx, adminActor, pending.ID), domain.ErrPaymentNotFound)

	all, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, settled.ID, all[0].ID)

	latest, err := svc.Latest(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, settled.ID, latest.ID)
}

func TestConfirmMissingPayment(t *testing.T) {
	_, svc := newPaymentFixture(t)
	_, err := svc.Confirm(context.Background(), adminActor, 31337)
	assert.ErrorIs(t, err, domain.ErrPaymentNotFound)
}

func TestConcurrentConfirmEmitsOneEvent(t *testing.T) {
	f, svc := newPaymentFixture(t)
	ctx := context.Background()
	st := f.student(t, domain.GenderMale)
	p, err := svc.Initiate(ctx, st.ID, domain.InitiatePaymentRequest{HostelID: &f.male.ID})
	require.NoError(t, err)

	const confirmers = 16
	var g errgroup.Group
	start := make(chan struct{})
	for i := 0; i < confirmers; i++ {
		g.Go(func() error {
			<-start
			paid, err := svc.Confirm(ctx, adminActor, p.ID)
			if err != nil {
				return err
			}
			if paid.Status != domain.PaymentPaid {
				return fmt.Errorf("confirm returned status %s", paid.Status)
			}
			return nil
		})
	}
	close(start)
	require.NoError(t, g.Wait())

	assert.Equal(t, []audit.Action{audit.ActionPaymentConfirmed}, f.events.actions())
}
