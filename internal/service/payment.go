package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/punchamoorthee/hostelops/internal/audit"
	"github.com/punchamoorthee/hostelops/internal/domain"
	"github.com/punchamoorthee/hostelops/internal/store"
	"github.com/shopspring/decimal"
)

// PaymentService handles the payment lifecycle. Confirmation flips a single
// row and takes no room lock; it never touches existing allocations.
type PaymentService struct {
	payments store.PaymentStore
	dir      store.Directory
	audit    audit.Emitter
	logger   *slog.Logger
}

func NewPaymentService(p store.PaymentStore, d store.Directory, opts ...Option) *PaymentService {
	o := buildOptions(opts)
	return &PaymentService{payments: p, dir: d, audit: o.audit, logger: o.logger}
}

// Amount returns the charge for one hostel fee under option. Anything other
// than FULL_YEAR is billed as a semester.
func Amount(fee decimal.Decimal, option domain.PaymentOption) decimal.Decimal {
	multiplier := decimal.NewFromInt(1)
	if option == domain.OptionFullYear {
		multiplier = decimal.NewFromInt(2)
	}
	return fee.Mul(multiplier).Round(2)
}

// NormalizeOption maps unknown options to SEMESTER.
func NormalizeOption(option domain.PaymentOption) domain.PaymentOption {
	if option == domain.OptionFullYear {
		return domain.OptionFullYear
	}
	return domain.OptionSemester
}

// Initiate records a PENDING payment for studentID. The hostel comes from the
// request or, when absent, from the student's active allocation. The amount
// is always computed from the hostel fee.
func (s *PaymentService) Initiate(ctx context.Context, studentID int64, req domain.InitiatePaymentRequest) (*domain.Payment, error) {
	if err := required("student_id", studentID); err != nil {
		return nil, err
	}
	if _, err := s.dir.GetStudent(ctx, studentID); err != nil {
		return nil, classify("initiate payment", err)
	}

	var hostelID int64
	if req.HostelID != nil && *req.HostelID > 0 {
		hostelID = *req.HostelID
	} else {
		active, err := s.dir.ActiveAllocationView(ctx, studentID)
		if err != nil {
			return nil, classify("initiate payment", err)
		}
		if active == nil {
			return nil, domain.NotFound(domain.ReasonHostelNotFound, 0)
		}
		hostelID = active.HostelID
	}

	hostel, err := s.dir.GetHostel(ctx, hostelID)
	if err != nil {
		return nil, classify("initiate payment", err)
	}

	option := NormalizeOption(req.Option)
	amount := Amount(hostel.FeeAmount, option)
	if !amount.IsPositive() {
		return nil, &domain.ValidationError{Field: "hostel_id", Message: "hostel has no fee configured"}
	}

	p := &domain.Payment{
		StudentID: studentID,
		HostelID:  &hostel.ID,
		Amount:    amount,
		Option:    option,
		Status:    domain.PaymentPending,
		Reference: req.Reference,
	}
	if err := s.payments.CreatePayment(ctx, p); err != nil {
		return nil, classify("initiate payment", err)
	}
	s.logger.Info("payment initiated", "payment_id", p.ID, "student_id", studentID, "hostel_id", hostel.ID, "amount", amount.StringFixed(2))
	return p, nil
}

// Confirm moves a payment to PAID. Confirming an already PAID payment
// succeeds without a second audit event, including when two confirmations
// race.
func (s *PaymentService) Confirm(ctx context.Context, actor Actor, paymentID int64) (*domain.Payment, error) {
	if err := required("payment_id", paymentID); err != nil {
		return nil, err
	}
	paid, changed, err := s.payments.MarkPaymentPaid(ctx, paymentID)
	if err != nil {
		return nil, classify("confirm payment", err)
	}
	if !changed {
		return paid, nil
	}
	s.audit.Emit(audit.NewEvent(actor.UserID, audit.ActionPaymentConfirmed, audit.EntityPayment, paid.ID,
		fmt.Sprintf("payment %d for student %d confirmed", paid.ID, paid.StudentID)))
	return paid, nil
}

// Delete removes a PENDING payment. PAID payments are kept and return
// PaymentSettled.
func (s *PaymentService) Delete(ctx context.Context, actor Actor, paymentID int64) error {
	if err := required("payment_id", paymentID); err != nil {
		return err
	}
	if err := s.payments.DeletePendingPayment(ctx, paymentID); err != nil {
		return classify("delete payment", err)
	}
	s.audit.Emit(audit.NewEvent(actor.UserID, audit.ActionPaymentDeleted, audit.EntityPayment, paymentID,
		fmt.Sprintf("pending payment %d deleted", paymentID)))
	return nil
}

func (s *PaymentService) List(ctx context.Context) ([]domain.Payment, error) {
	payments, err := s.payments.ListPayments(ctx)
	return payments, classify("list payments", err)
}

// Latest returns nil when the student has no payments.
func (s *PaymentService) Latest(ctx context.Context, studentID int64) (*domain.Payment, error) {
	if err := required("student_id", studentID); err != nil {
		return nil, err
	}
	p, err := s.payments.LatestPaymentForStudent(ctx, studentID)
	return p, classify("latest payment", err)
}
