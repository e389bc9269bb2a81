package service

import (
	"context"
	"log/slog"

	"github.com/punchamoorthee/hostelops/internal/domain"
	"github.com/punchamoorthee/hostelops/internal/store"
	"github.com/shopspring/decimal"
)

// SummaryCache is the read-through cache used for the dashboard counts.
// GetSummary reports the cache generation it looked in; SetSummary only
// stores into that generation, so a fill that races an invalidation is never
// served.
type SummaryCache interface {
	SummaryInvalidator
	GetSummary(ctx context.Context) (domain.Summary, int64, bool)
	SetSummary(ctx context.Context, gen int64, s domain.Summary)
}

type noopSummaryCache struct{ noopInvalidator }

func (noopSummaryCache) GetSummary(context.Context) (domain.Summary, int64, bool) {
	return domain.Summary{}, -1, false
}

func (noopSummaryCache) SetSummary(context.Context, int64, domain.Summary) {}

// DirectoryService answers read-side queries over committed state.
type DirectoryService struct {
	dir      store.Directory
	payments store.PaymentStore
	cache    SummaryCache
	logger   *slog.Logger
}

func NewDirectoryService(d store.Directory, p store.PaymentStore, cache SummaryCache, logger *slog.Logger) *DirectoryService {
	if cache == nil {
		cache = noopSummaryCache{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DirectoryService{dir: d, payments: p, cache: cache, logger: logger}
}

func (s *DirectoryService) ListAllocations(ctx context.Context, f domain.AllocationFilter) ([]domain.AllocationView, error) {
	switch f.Status {
	case "", domain.AllocationActive, domain.AllocationVacated:
	default:
		return nil, &domain.ValidationError{Field: "status", Message: "must be ACTIVE or VACATED"}
	}
	views, err := s.dir.ListAllocations(ctx, f)
	return views, classify("list allocations", err)
}

// AllocationStatuses lists allocations newest first, each with the latest
// payment of its student.
func (s *DirectoryService) AllocationStatuses(ctx context.Context, f domain.AllocationFilter) ([]domain.AllocationPaymentStatus, error) {
	views, err := s.ListAllocations(ctx, f)
	if err != nil {
		return nil, err
	}
	latest := map[int64]*domain.Payment{}
	out := make([]domain.AllocationPaymentStatus, 0, len(views))
	for _, v := range views {
		p, seen := latest[v.StudentID]
		if !seen {
			p, err = s.payments.LatestPaymentForStudent(ctx, v.StudentID)
			if err != nil {
				return nil, classify("allocation statuses", err)
			}
			latest[v.StudentID] = p
		}
		out = append(out, domain.AllocationPaymentStatus{Allocation: v, LatestPayment: p})
	}
	return out, nil
}

func (s *DirectoryService) ListHostels(ctx context.Context) ([]domain.Hostel, error) {
	hostels, err := s.dir.ListHostels(ctx)
	return hostels, classify("list hostels", err)
}

func (s *DirectoryService) ListRooms(ctx context.Context, f domain.RoomFilter) ([]domain.RoomView, error) {
	if f.HostelID < 0 {
		return nil, &domain.ValidationError{Field: "hostel_id", Message: "must be positive"}
	}
	rooms, err := s.dir.ListRooms(ctx, f)
	return rooms, classify("list rooms", err)
}

func (s *DirectoryService) StudentBookings(ctx context.Context, studentID int64) ([]domain.AllocationView, error) {
	if err := required("student_id", studentID); err != nil {
		return nil, err
	}
	views, err := s.dir.StudentAllocations(ctx, studentID)
	return views, classify("student bookings", err)
}

// StudentStatus returns NotFound for unknown students.
func (s *DirectoryService) StudentStatus(ctx context.Context, studentID int64) (domain.StudentStatus, error) {
	var st domain.StudentStatus
	if err := required("student_id", studentID); err != nil {
		return st, err
	}
	if _, err := s.dir.GetStudent(ctx, studentID); err != nil {
		return st, classify("student status", err)
	}
	active, err := s.dir.ActiveAllocationView(ctx, studentID)
	if err != nil {
		return st, classify("student status", err)
	}
	latest, err := s.payments.LatestPaymentForStudent(ctx, studentID)
	if err != nil {
		return st, classify("student status", err)
	}
	st.Allocation = active
	st.Payment = latest
	return st, nil
}

func (s *DirectoryService) StudentByUserID(ctx context.Context, userID int64) (*domain.Student, error) {
	st, err := s.dir.GetStudentByUserID(ctx, userID)
	return st, classify("student by user", err)
}

// Summary serves from cache when possible. Writers invalidate it after each
// committed allocation change.
func (s *DirectoryService) Summary(ctx context.Context) (domain.Summary, error) {
	cached, gen, ok := s.cache.GetSummary(ctx)
	if ok {
		return cached, nil
	}
	sum, err := s.dir.Summary(ctx)
	if err != nil {
		return sum, classify("summary", err)
	}
	s.cache.SetSummary(ctx, gen, sum)
	return sum, nil
}

// StudentsSummary reports payment totals and the active allocation for each
// student.
func (s *DirectoryService) StudentsSummary(ctx context.Context) ([]domain.StudentSummary, error) {
	students, err := s.dir.ListStudents(ctx)
	if err != nil {
		return nil, classify("students summary", err)
	}
	out := make([]domain.StudentSummary, 0, len(students))
	for _, st := range students {
		payments, err := s.payments.PaymentsForStudent(ctx, st.ID)
		if err != nil {
			return nil, classify("students summary", err)
		}
		active, err := s.dir.ActiveAllocationView(ctx, st.ID)
		if err != nil {
			return nil, classify("students summary", err)
		}

		sum := domain.StudentSummary{
			Student:      st,
			TotalPaid:    decimal.Zero,
			TotalPending: decimal.Zero,
			Allocation:   active,
		}
		for i := range payments {
			switch payments[i].Status {
			case domain.PaymentPaid:
				sum.TotalPaid = sum.TotalPaid.Add(payments[i].Amount)
			case domain.PaymentPending:
				sum.TotalPending = sum.TotalPending.Add(payments[i].Amount)
			}
		}
		if len(payments) > 0 {
			latest := payments[0]
			sum.LatestPayment = &latest
		}
		out = append(out, sum)
	}
	return out, nil
}
