package appointment

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hackgods/clinic-booking/internal/clock"
	"github.com/hackgods/clinic-booking/internal/logs"
	"github.com/hackgods/clinic-booking/internal/metrics"
	redisclient "github.com/hackgods/clinic-booking/internal/redis"
)

// Options carries the collaborators shared by every component. Zero values fall back to no-op implementations.
type Options struct {
	Clock    clock.Clock
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
	Notifier Notifier
	Guard    redisclient.Guard
}

// Service bundles the components that make up the booking core.
type Service struct {
	Slots     *SlotLedger
	Booking   *Coordinator
	Ratings   *RatingAggregator
	Dashboard *Dashboard
	Directory *Directory
}

func NewService(store Store, opts Options) *Service {
	rt := newRuntime(store, opts)
	ledger := &SlotLedger{runtime: rt}

	guard := opts.Guard
	if guard == nil {
		guard = redisclient.NoGuard()
	}

	return &Service{
		Slots:     ledger,
		Booking:   &Coordinator{runtime: rt, ledger: ledger, guard: guard},
		Ratings:   &RatingAggregator{runtime: rt},
		Dashboard: &Dashboard{runtime: rt},
		Directory: &Directory{runtime: rt},
	}
}

type runtime struct {
	store    Store
	clock    clock.Clock
	log      *slog.Logger
	metrics  *metrics.Metrics
	notifier Notifier
}

func newRuntime(store Store, opts Options) *runtime {
	rt := &runtime{
		store:    store,
		clock:    opts.Clock,
		log:      opts.Logger,
		metrics:  opts.Metrics,
		notifier: opts.Notifier,
	}
	if rt.clock == nil {
		rt.clock = clock.System(time.UTC)
	}
	if rt.log == nil {
		rt.log = logs.Discard()
	}
	if rt.notifier == nil {
		rt.notifier = NopNotifier{}
	}
	return rt
}

func (rt *runtime) observe(ctx context.Context, op string, started time.Time, err error) {
	rt.metrics.RecordOperation(ctx, op, Outcome(err), time.Since(started))
	if err != nil && Outcome(err) == "error" {
		rt.log.ErrorContext(ctx, "operation failed", "op", op, "err", err)
	}
}

// notify hands a committed event to the notifier. Failures are logged and never reach the caller.
func (rt *runtime) notify(ctx context.Context, ev Event) {
	if err := rt.notifier.Notify(ctx, ev); err != nil {
		rt.log.WarnContext(ctx, "notification failed",
			"kind", ev.Kind,
			"appointment_id", ev.AppointmentID,
			"err", err,
		)
	}
}

// Outcome maps an error onto a short label used for metrics and access logs.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvalidRange):
		return "invalid_range"
	case errors.Is(err, ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, ErrSlotUnavailable):
		return "slot_unavailable"
	case errors.Is(err, ErrAlreadyCanceled):
		return "already_canceled"
	case errors.Is(err, ErrNotBooked):
		return "not_booked"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}
