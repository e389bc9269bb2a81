package service

import (
	"context"
	"strings"

	"github.com/punchamoorthee/hostelops/internal/domain"
	"github.com/punchamoorthee/hostelops/internal/store"
	"github.com/shopspring/decimal"
)

// AdminService validates and persists the reference data allocations
// depend on. Rooms always start empty; no path here sets occupancy.
type AdminService struct {
	admin store.Admin
}

func NewAdminService(a store.Admin) *AdminService {
	return &AdminService{admin: a}
}

type CreateHostelRequest struct {
	Name       string          `json:"name"`
	Gender     domain.Gender   `json:"gender"`
	TotalRooms int             `json:"total_rooms"`
	FeeAmount  decimal.Decimal `json:"fee_amount"`
}

type CreateRoomRequest struct {
	HostelID   int64  `json:"hostel_id"`
	RoomNumber string `json:"room_number"`
	Capacity   int    `json:"capacity"`
}

type CreateStudentRequest struct {
	UserID    int64         `json:"user_id"`
	RegNumber string        `json:"reg_number"`
	FirstName string        `json:"first_name"`
	LastName  string        `json:"last_name"`
	Gender    domain.Gender `json:"gender"`
}

func validGender(g domain.Gender) bool {
	switch g {
	case domain.GenderMale, domain.GenderFemale, domain.GenderOther:
		return true
	}
	return false
}

func (s *AdminService) CreateHostel(ctx context.Context, req CreateHostelRequest) (*domain.Hostel, error) {
	name := strings.TrimSpace(req.Name)
	switch {
	case name == "":
		return nil, &domain.ValidationError{Field: "name", Message: "is required"}
	case req.Gender != domain.GenderMale && req.Gender != domain.GenderFemale:
		return nil, &domain.ValidationError{Field: "gender", Message: "must be Male or Female"}
	case req.TotalRooms < 0:
		return nil, &domain.ValidationError{Field: "total_rooms", Message: "must not be negative"}
	case req.FeeAmount.IsNegative():
		return nil, &domain.ValidationError{Field: "fee_amount", Message: "must not be negative"}
	}
	h := &domain.Hostel{Name: name, Gender: req.Gender, TotalRooms: req.TotalRooms, FeeAmount: req.FeeAmount.Round(2)}
	if err := s.admin.CreateHostel(ctx, h); err != nil {
		return nil, classify("create hostel", err)
	}
	return h, nil
}

func (s *AdminService) CreateRoom(ctx context.Context, req CreateRoomRequest) (*domain.Room, error) {
	number := strings.TrimSpace(req.RoomNumber)
	switch {
	case req.HostelID <= 0:
		return nil, &domain.ValidationError{Field: "hostel_id", Message: "must be a positive id"}
	case number == "":
		return nil, &domain.ValidationError{Field: "room_number", Message: "is required"}
	case req.Capacity <= 0:
		return nil, &domain.ValidationError{Field: "capacity", Message: "must be positive"}
	}
	r := &domain.Room{HostelID: req.HostelID, RoomNumber: number, Capacity: req.Capacity}
	if err := s.admin.CreateRoom(ctx, r); err != nil {
		return nil, classify("create room", err)
	}
	return r, nil
}

func (s *AdminService) CreateStudent(ctx context.Context, req CreateStudentRequest) (*domain.Student, error) {
	switch {
	case req.UserID <= 0:
		return nil, &domain.ValidationError{Field: "user_id", Message: "must be a positive id"}
	case strings.TrimSpace(req.RegNumber) == "":
		return nil, &domain.ValidationError{Field: "reg_number", Message: "is required"}
	case strings.TrimSpace(req.FirstName) == "":
		return nil, &domain.ValidationError{Field: "first_name", Message: "is required"}
	case !validGender(req.Gender):
		return nil, &domain.ValidationError{Field: "gender", Message: "must be Male, Female or Other"}
	}
	st := &domain.Student{
		UserID:    req.UserID,
		RegNumber: strings.TrimSpace(req.RegNumber),
		FirstName: strings.TrimSpace(req.FirstName),
		LastName:  strings.TrimSpace(req.LastName),
		Gender:    req.Gender,
	}
	if err := s.admin.CreateStudent(ctx, st); err != nil {
		return nil, classify("create student", err)
	}
	return st, nil
}
