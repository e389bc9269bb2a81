package health

import (
	"context"
	"time"
)

// Pinger is satisfied by both store implementations.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthChecker struct {
	db      Pinger
	timeout time.Duration
}

type HealthStatus struct {
	Status   string         `json:"status"`
	Database DatabaseHealth `json:"database"`
}

type DatabaseHealth struct {
	Status       string `json:"status"`
	ResponseTime int64  `json:"response_time_ms"`
}

func NewHealthChecker(db Pinger) *HealthChecker {
	return &HealthChecker{db: db, timeout: 2 * time.Second}
}

func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	db := h.checkDatabase(ctx)
	status := "healthy"
	if db.Status != "healthy" {
		status = "unhealthy"
	}
	return HealthStatus{Status: status, Database: db}
}

func (h *HealthChecker) checkDatabase(parent context.Context) DatabaseHealth {
	ctx, cancel := context.WithTimeout(parent, h.timeout)
	defer cancel()

	start := time.Now()
	err := h.db.Ping(ctx)
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		return DatabaseHealth{Status: "unhealthy", ResponseTime: elapsed}
	}
	return DatabaseHealth{Status: "healthy", ResponseTime: elapsed}
}
