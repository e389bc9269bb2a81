package api

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/punchamoorthee/hostelops/internal/auth"
)

// NewRouter wires every route behind the shared middleware chain.
func NewRouter(h *Handler, authMW *AuthMiddleware, corsOrigins []string, logger *slog.Logger) http.Handler {
	r := mux.NewRouter()
	r.Use(RequestID, NewStructuredLogger(logger), Metrics, PanicRecovery(logger))

	r.HandleFunc("/health", h.Live).Methods(http.MethodGet)
	r.HandleFunc("/health/ready", h.Ready).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()

	student := api.PathPrefix("/student").Subrouter()
	student.Use(authMW.RequireRole(auth.RoleStudent))
	student.HandleFunc("/bookings", h.BookRoom).Methods(http.MethodPost)
	student.HandleFunc("/bookings", h.ListOwnBookings).Methods(http.MethodGet)
	student.HandleFunc("/vacate", h.VacateOwnRoom).Methods(http.MethodPost)
	student.HandleFunc("/allocation", h.GetOwnAllocation).Methods(http.MethodGet)
	student.HandleFunc("/payments", h.InitiatePayment).Methods(http.MethodPost)
	student.HandleFunc("/rooms", h.ListRooms).Methods(http.MethodGet)

	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(authMW.RequireRole(auth.RoleAdmin))
	admin.HandleFunc("/allocations", h.AdminAllocate).Methods(http.MethodPost)
	admin.HandleFunc("/allocations", h.ListAllocations).Methods(http.MethodGet)
	admin.HandleFunc("/allocations/vacate", h.AdminVacate).Methods(http.MethodPost)
	admin.HandleFunc("/allocations/status", h.AllocationStatuses).Methods(http.MethodGet)
	admin.HandleFunc("/payments", h.ListPayments).Methods(http.MethodGet)
	admin.HandleFunc("/payments/{id:[0-9]+}/confirm", h.ConfirmPayment).Methods(http.MethodPut)
	admin.HandleFunc("/payments/{id:[0-9]+}", h.DeletePayment).Methods(http.MethodDelete)
	admin.HandleFunc("/dashboard", h.Dashboard).Methods(http.MethodGet)
	admin.HandleFunc("/students", h.StudentsSummary).Methods(http.MethodGet)
	admin.HandleFunc("/students", h.CreateStudent).Methods(http.MethodPost)
	admin.HandleFunc("/students/{id:[0-9]+}/allocation", h.GetStudentAllocation).Methods(http.MethodGet)
	admin.HandleFunc("/students/{id:[0-9]+}/status", h.GetStudentStatus).Methods(http.MethodGet)
	admin.HandleFunc("/hostels", h.CreateHostel).Methods(http.MethodPost)
	admin.HandleFunc("/hostels", h.ListHostels).Methods(http.MethodGet)
	admin.HandleFunc("/rooms", h.CreateRoom).Methods(http.MethodPost)
	admin.HandleFunc("/rooms", h.ListRooms).Methods(http.MethodGet)

	return NewCORS(corsOrigins)(r)
}
