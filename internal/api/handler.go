package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/punchamoorthee/hostelops/internal/auth"
	"github.com/punchamoorthee/hostelops/internal/domain"
	"github.com/punchamoorthee/hostelops/internal/health"
	"github.com/punchamoorthee/hostelops/internal/service"
)

// statusClientClosedRequest is reported when the caller goes away mid-request.
const statusClientClosedRequest = 499

type Handler struct {
	engine    *service.Engine
	payments  *service.PaymentService
	directory *service.DirectoryService
	admin     *service.AdminService
	health    *health.HealthChecker
	logger    *slog.Logger
}

func NewHandler(
	engine *service.Engine,
	payments *service.PaymentService,
	directory *service.DirectoryService,
	admin *service.AdminService,
	checker *health.HealthChecker,
	logger *slog.Logger,
) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		engine:    engine,
		payments:  payments,
		directory: directory,
		admin:     admin,
		health:    checker,
		logger:    logger,
	}
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// --- Student ---

func (h *Handler) BookRoom(w http.ResponseWriter, r *http.Request) {
	actor, student, ok := h.currentStudent(w, r)
	if !ok {
		return
	}
	var req domain.BookRequest
	if !h.decode(w, r, &req) {
		return
	}
	alloc, err := h.engine.Allocate(r.Context(), actor, student.ID, req.RoomID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, alloc)
}

func (h *Handler) VacateOwnRoom(w http.ResponseWriter, r *http.Request) {
	actor, student, ok := h.currentStudent(w, r)
	if !ok {
		return
	}
	alloc, err := h.engine.Vacate(r.Context(), actor, 0, student.ID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, alloc)
}

func (h *Handler) GetOwnAllocation(w http.ResponseWriter, r *http.Request) {
	_, student, ok := h.currentStudent(w, r)
	if !ok {
		return
	}
	status, err := h.directory.StudentStatus(r.Context(), student.ID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, status)
}

func (h *Handler) ListOwnBookings(w http.ResponseWriter, r *http.Request) {
	_, student, ok := h.currentStudent(w, r)
	if !ok {
		return
	}
	bookings, err := h.directory.StudentBookings(r.Context(), student.ID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, bookings)
}

func (h *Handler) InitiatePayment(w http.ResponseWriter, r *http.Request) {
	_, student, ok := h.currentStudent(w, r)
	if !ok {
		return
	}
	var req domain.InitiatePaymentRequest
	if !h.decode(w, r, &req) {
		return
	}
	p, err := h.payments.Initiate(r.Context(), student.ID, req)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, p)
}

// --- Admin ---

func (h *Handler) AdminAllocate(w http.ResponseWriter, r *http.Request) {
	var req domain.AllocateRequest
	if !h.decode(w, r, &req) {
		return
	}
	alloc, err := h.engine.Allocate(r.Context(), adminActor(r), req.StudentID, req.RoomID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, alloc)
}

func (h *Handler) AdminVacate(w http.ResponseWriter, r *http.Request) {
	var req domain.VacateRequest
	if !h.decode(w, r, &req) {
		return
	}
	alloc, err := h.engine.Vacate(r.Context(), adminActor(r), req.AllocationID, req.StudentID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, alloc)
}

func (h *Handler) ListAllocations(w http.ResponseWriter, r *http.Request) {
	f, err := allocationFilter(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	list, err := h.directory.ListAllocations(r.Context(), f)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, list)
}

// AllocationStatuses is ListAllocations with each student's latest payment.
func (h *Handler) AllocationStatuses(w http.ResponseWriter, r *http.Request) {
	f, err := allocationFilter(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	list, err := h.directory.AllocationStatuses(r.Context(), f)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, list)
}

func (h *Handler) GetStudentStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	status, err := h.directory.StudentStatus(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, status)
}

func (h *Handler) ListHostels(w http.ResponseWriter, r *http.Request) {
	hostels, err := h.directory.ListHostels(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, hostels)
}

// ListRooms serves both students and admins. available=true hides full rooms.
func (h *Handler) ListRooms(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var f domain.RoomFilter
	var err error
	if f.HostelID, err = optionalID(q.Get("hostel_id"), "hostel_id"); err != nil {
		h.respondError(w, r, err)
		return
	}
	if raw := q.Get("available"); raw != "" {
		if f.AvailableOnly, err = strconv.ParseBool(raw); err != nil {
			h.respondError(w, r, &domain.ValidationError{Field: "available", Message: "must be a boolean"})
			return
		}
	}
	rooms, err := h.directory.ListRooms(r.Context(), f)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, rooms)
}

func (h *Handler) GetStudentAllocation(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	alloc, err := h.engine.GetActiveAllocationForStudent(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	// null body when the student holds nothing
	respondJSON(w, http.StatusOK, alloc)
}

func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	list, err := h.payments.List(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, list)
}

func (h *Handler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	p, err := h.payments.Confirm(r.Context(), adminActor(r), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (h *Handler) DeletePayment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if err := h.payments.Delete(r.Context(), adminActor(r), id); err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int64{"deleted": id})
}

func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	summary, err := h.directory.Summary(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

func (h *Handler) StudentsSummary(w http.ResponseWriter, r *http.Request) {
	list, err := h.directory.StudentsSummary(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, list)
}

func (h *Handler) CreateHostel(w http.ResponseWriter, r *http.Request) {
	var req service.CreateHostelRequest
	if !h.decode(w, r, &req) {
		return
	}
	hostel, err := h.admin.CreateHostel(r.Context(), req)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, hostel)
}

func (h *Handler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	var req service.CreateRoomRequest
	if !h.decode(w, r, &req) {
		return
	}
	room, err := h.admin.CreateRoom(r.Context(), req)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, room)
}

func (h *Handler) CreateStudent(w http.ResponseWriter, r *http.Request) {
	var req service.CreateStudentRequest
	if !h.decode(w, r, &req) {
		return
	}
	student, err := h.admin.CreateStudent(r.Context(), req)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, student)
}

// --- Health ---

func (h *Handler) Live(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	st := h.health.Check(r.Context())
	code := http.StatusOK
	if st.Status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	respondJSON(w, code, st)
}

// Helpers

// currentStudent resolves the student record behind the token's user id.
func (h *Handler) currentStudent(w http.ResponseWriter, r *http.Request) (service.Actor, *domain.Student, bool) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		respondJSON(w, http.StatusUnauthorized, errorBody{Error: "missing credentials", Code: "Unauthorized"})
		return service.Actor{}, nil, false
	}
	student, err := h.directory.StudentByUserID(r.Context(), claims.UserID)
	if err != nil {
		h.respondError(w, r, err)
		return service.Actor{}, nil, false
	}
	return service.Actor{UserID: claims.UserID}, student, true
}

func adminActor(r *http.Request) service.Actor {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		return service.Actor{Admin: true}
	}
	return service.Actor{UserID: claims.UserID, Admin: claims.Role == auth.RoleAdmin}
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		h.respondError(w, r, &domain.ValidationError{Field: "body", Message: "invalid JSON: " + err.Error()})
		return false
	}
	return true
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	if err != nil || id <= 0 {
		return 0, &domain.ValidationError{Field: name, Message: "must be a positive integer"}
	}
	return id, nil
}

func allocationFilter(r *http.Request) (domain.AllocationFilter, error) {
	q := r.URL.Query()
	var f domain.AllocationFilter
	var err error
	if f.HostelID, err = optionalID(q.Get("hostel_id"), "hostel_id"); err != nil {
		return f, err
	}
	if f.RoomID, err = optionalID(q.Get("room_id"), "room_id"); err != nil {
		return f, err
	}
	f.Status = domain.AllocationStatus(q.Get("status"))
	return f, nil
}

func optionalID(raw, name string) (int64, error) {
	if raw == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, &domain.ValidationError{Field: name, Message: "must be a positive integer"}
	}
	return id, nil
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	var (
		validation *domain.ValidationError
		notFound   *domain.NotFoundError
		deny       *domain.DenyError
		conflict   *domain.ConflictError
	)
	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &deny):
		if deny.Code == domain.ReasonPaymentNotConfirmed {
			return http.StatusForbidden
		}
		return http.StatusUnprocessableEntity
	case errors.As(err, &conflict):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return statusClientClosedRequest
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	body := errorBody{Error: err.Error(), Code: string(domain.ReasonOf(err))}
	switch code {
	case http.StatusInternalServerError:
		h.logger.Error("request failed", "path", r.URL.Path, "request_id", RequestIDFromContext(r.Context()), "error", err)
		body.Error = "internal server error"
	case http.StatusGatewayTimeout, statusClientClosedRequest:
		body.Code = "Canceled"
	}
	respondJSON(w, code, body)
}

func respondJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(payload)
}
