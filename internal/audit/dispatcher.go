package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/punchamoorthee/hostelops/internal/metrics"
)

// Dispatcher delivers events to a Sink from a single background worker.
// Emit never blocks; when the buffer is full the event is dropped and counted.
type Dispatcher struct {
	sink    Sink
	logger  *slog.Logger
	timeout time.Duration
	events  chan Event

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

var _ Emitter = (*Dispatcher)(nil)

func NewDispatcher(sink Sink, logger *slog.Logger, bufferSize int, timeout time.Duration) *Dispatcher {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	d := &Dispatcher{
		sink:    sink,
		logger:  logger,
		timeout: timeout,
		events:  make(chan Event, bufferSize),
		done:    make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *Dispatcher) Emit(e Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		metrics.AuditDropped.Inc()
		return
	}
	select {
	case d.events <- e:
	default:
		metrics.AuditDropped.Inc()
		d.logger.Warn("audit buffer full, event dropped", "action", e.Action, "entity_id", e.EntityID)
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for e := range d.events {
		d.deliver(e)
	}
}

func (d *Dispatcher) deliver(e Event) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	if err := d.sink.Record(ctx, e); err != nil {
		metrics.AuditFailed.Inc()
		d.logger.Warn("audit record failed", "action", e.Action, "event_id", e.ID, "error", err)
	}
}

// Close stops accepting events and waits for the buffer to drain or ctx to
// end, whichever comes first.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.events)
	}
	d.mu.Unlock()

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
