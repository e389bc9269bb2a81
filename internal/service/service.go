package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/punchamoorthee/hostelops/internal/audit"
	"github.com/punchamoorthee/hostelops/internal/domain"
	"github.com/punchamoorthee/hostelops/internal/metrics"
)

// Actor is the authenticated caller on whose behalf an operation runs.
type Actor struct {
	UserID int64
	Admin  bool
}

// SummaryInvalidator drops cached read-side aggregates after a commit.
type SummaryInvalidator interface {
	InvalidateSummary(ctx context.Context)
}

type noopInvalidator struct{}

func (noopInvalidator) InvalidateSummary(context.Context) {}

type options struct {
	audit  audit.Emitter
	cache  SummaryInvalidator
	logger *slog.Logger
	now    func() time.Time
}

type Option func(*options)

func WithAudit(e audit.Emitter) Option { return func(o *options) { o.audit = e } }

func WithSummaryInvalidator(c SummaryInvalidator) Option {
	return func(o *options) { o.cache = c }
}

func WithLogger(l *slog.Logger) Option { return func(o *options) { o.logger = l } }

// WithClock overrides time.Now for allocation and vacate timestamps.
func WithClock(now func() time.Time) Option { return func(o *options) { o.now = now } }

func buildOptions(opts []Option) options {
	o := options{
		audit:  audit.Discard,
		cache:  noopInvalidator{},
		logger: slog.Default(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// classify leaves domain errors and context errors alone and wraps anything
// else as a StoreError.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var known interface{ Reason() domain.Reason }
	if errors.As(err, &known) {
		return err
	}
	return &domain.StoreError{Op: op, Err: err}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case errors.Is(err, context.Canceled):
		return "Canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "DeadlineExceeded"
	default:
		return string(domain.ReasonOf(err))
	}
}

func required(field string, id int64) error {
	if id <= 0 {
		return &domain.ValidationError{Field: field, Message: "must be a positive id"}
	}
	return nil
}
