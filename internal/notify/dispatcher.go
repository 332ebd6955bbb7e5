package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/hackgods/clinic-booking/internal/appointment"
	"github.com/hackgods/clinic-booking/internal/metrics"
)

var (
	ErrQueueFull = errors.New("notification queue full, event dropped")
	ErrClosed    = errors.New("dispatcher closed")
)

const deliveryTimeout = 5 * time.Second

// Dispatcher queues events and delivers them from a single background worker,
// so a slow sink never delays the request that produced the event.
// When the queue is full the event is dropped.
type Dispatcher struct {
	sink    Sink
	log     *slog.Logger
	metrics *metrics.Metrics

	mu     sync.RWMutex
	closed bool
	queue  chan appointment.Event
	done   chan struct{}
}

var _ appointment.Notifier = (*Dispatcher)(nil)

func NewDispatcher(sink Sink, size int, log *slog.Logger, m *metrics.Metrics) *Dispatcher {
	if size <= 0 {
		size = 1
	}
	d := &Dispatcher{
		sink:    sink,
		log:     log,
		metrics: m,
		queue:   make(chan appointment.Event, size),
		done:    make(chan struct{}),
	}

	go d.worker()
	return d
}

func (d *Dispatcher) worker() {
	defer close(d.done)

	for ev := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
		if err := d.sink.Deliver(ctx, ev); err != nil {
			d.log.Warn("notification delivery failed",
				"kind", ev.Kind,
				"appointment_id", ev.AppointmentID,
				"err", err,
			)
		}
		cancel()
	}
}

// Notify enqueues the event without blocking.
func (d *Dispatcher) Notify(ctx context.Context, ev appointment.Event) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return ErrClosed
	}

	select {
	case d.queue <- ev:
		return nil
	default:
		d.metrics.RecordNotification(ctx, "queue", false)
		return ErrQueueFull
	}
}

// Close stops accepting events and waits for the queue to drain or ctx to end.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
