package appointment

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/hackgods/clinic-booking/internal/actor"
	"github.com/hackgods/clinic-booking/internal/clock"
	"github.com/hackgods/clinic-booking/internal/logs"
	"github.com/hackgods/clinic-booking/internal/metrics"
	redisclient "github.com/hackgods/clinic-booking/internal/redis"
)

func TestBookReservesSlot(t *testing.T) {
	f := newFixture(t)
	doc := f.doctor(t)
	pat := f.patient(t)
	slot := f.slotAt(t, doc, time.Hour)

	appt, err := f.svc.Booking.Book(f.ctx, pat, slot.ID, "  persistent cough ")
	require.NoError(t, err)

	assert.Equal(t, StatusScheduled, appt.Status)
	assert.Equal(t, doc.ID, appt.DoctorID)
	assert.Equal(t, pat.ID, appt.PatientID)
	require.NotNil(t, appt.Reason)
	assert.Equal(t, "persistent cough", *appt.Reason)
	assert.Equal(t, SlotBooked, f.slotStatus(t, slot.ID))

	require.Len(t, f.notes.events, 1)
	ev := f.notes.events[0]
	assert.Equal(t, EventBookingConfirmed, ev.Kind)
	assert.Equal(t, doc.ID, ev.DoctorID)
	assert.Equal(t, pat.ID, ev.PatientID)
	assert.True(t, ev.SlotStart.Equal(slot.StartTime))
}

func TestBookRejections(t *testing.T) {
	f := newFixture(t)
	doc := f.doctor(t)
	pat := f.patient(t)
	slot := f.slotAt(t, doc, time.Hour)

	t.Run("non patient", func(t *testing.T) {
		_, err := f.svc.Booking.Book(f.ctx, doc, slot.ID, "")
		assert.ErrorIs(t, err, ErrForbidden)
		_, err = f.svc.Booking.Book(f.ctx, actor.Admin(uuid.New()), slot.ID, "")
		assert.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("unknown patient", func(t *testing.T) {
		_, err := f.svc.Booking.Book(f.ctx, actor.Patient(uuid.New()), slot.ID, "")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("unknown slot", func(t *testing.T) {
		_, err := f.svc.Booking.Book(f.ctx, pat, uuid.New(), "")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("reason too long", func(t *testing.T) {
		_, err := f.svc.Booking.Book(f.ctx, pat, slot.ID, strings.Repeat("a", maxReasonLength+1))
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})

	assert.Equal(t, SlotAvailable, f.slotStatus(t, slot.ID))
	assert.Empty(t, f.notes.events)
}

func TestBookUnavailableSlotFailsForEveryone(t *testing.T) {
	f := newFixture(t)
	doc := f.doctor(t)
	first := f.patient(t)
	slot := f.slotAt(t, doc, time.Hour)

	_, err := f.svc.Booking.Book(f.ctx, first, slot.ID, "")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := f.svc.Booking.Book(f.ctx, f.patient(t), slot.ID, "")
		assert.ErrorIs(t, err, ErrSlotUnavailable)
	}
	_, err = f.svc.Booking.Book(f.ctx, first, slot.ID, "")
	assert.ErrorIs(t, err, ErrSlotUnavailable)
}

func TestConcurrentBookingHasOneWinner(t *testing.T) {
	f := newFixture(t)
	doc := f.doctor(t)
	slot := f.slotAt(t, doc, time.Hour)

	const contenders = 25
	patients := make([]actor.Actor, contenders)
	for i := range patients {
		patients[i] = f.patient(t)
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		wins    int
		losses  int
		unknown []error
	)
	start := make(chan struct{})
	for _, p := range patients {
		wg.Add(1)
		go func(p actor.Actor) {
			defer wg.Done()
			<-start
			_, err := f.svc.Booking.Book(f.ctx, p, slot.ID, "")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, ErrSlotUnavailable):
				losses++
			default:
				unknown = append(unknown, err)
			}
		}(p)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, contenders-1, losses)
	assert.Empty(t, unknown)

	live, err := f.store.ListAppointments(f.ctx, AppointmentFilter{})
	require.NoError(t, err)
	assert.Len(t, live, 1)
	assert.Equal(t, SlotBooked, f.slotStatus(t, slot.ID))
}

func TestCancelThenCancelAgain(t *testing.T) {
	f := newFixture(t)
	doc := f.doctor(t)
	pat := f.patient(t)
	slot := f.slotAt(t, doc, time.Hour)

	appt, err := f.svc.Booking.Book(f.ctx, pat, slot.ID, "")
	require.NoError(t, err)

	canceled, err := f.svc.Booking.Cancel(f.ctx, pat, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCanceled, canceled.Status)
	assert.Equal(t, SlotAvailable, f.slotStatus(t, slot.ID))

	_, err = f.svc.Booking.Cancel(f.ctx, pat, appt.ID)
	assert.ErrorIs(t, err, ErrAlreadyCanceled)
	assert.Equal(t, SlotAvailable, f.slotStatus(t, slot.ID))

	assert.Equal(t, []EventKind{EventBookingConfirmed, EventBookingCanceled}, f.notes.kinds())
}

func TestCancelAuthorization(t *testing.T) {
	f := newFixture(t)
	doc := f.doctor(t)
	pat := f.patient(t)
	stranger := f.patient(t)
	otherDoc := f.doctor(t)

	appt, err := f.svc.Booking.Book(f.ctx, pat, f.slotAt(t, doc, time.Hour).ID, "")
	require.NoError(t, err)

	for _, who := range []actor.Actor{stranger, otherDoc, actor.Admin(uuid.New()), actor.Doctor(pat.ID)} {
		_, err := f.svc.Booking.Cancel(f.ctx, who, appt.ID)
		assert.ErrorIs(t, err, ErrForbidden, who.String())
	}

	_, err = f.svc.Booking.Cancel(f.ctx, pat, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)

	// the doctor may cancel too
	_, err = f.svc.Booking.Cancel(f.ctx, doc, appt.ID)
	require.NoError(t, err)
}

func TestCancelCompletedIsInvalidState(t *testing.T) {
	f := newFixture(t)
	doc := f.doctor(t)
	pat := f.patient(t)
	appt := f.completed(t, doc, pat)

	_, err := f.svc.Booking.Cancel(f.ctx, pat, appt.ID)
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, SlotBooked, f.slotStatus(t, appt.SlotID))
}

func TestRebookAfterCancel(t *testing.T) {
	f := newFixture(t)
	doc := f.doctor(t)
	p := f.patient(t)
	q := f.patient(t)

	start := time.Date(2026, time.March, 3, 9, 0, 0, 0, time.UTC)
	slot, err := f.svc.Slots.Publish(f.ctx, doc, start, start.Add(time.Hour))
	require.NoError(t, err)

	a, err := f.svc.Booking.Book(f.ctx, p, slot.ID, "")
	require.NoError(t, err)
	assert.Equal(t, StatusScheduled, a.Status)
	assert.Equal(t, SlotBooked, f.slotStatus(t, slot.ID))

	a, err = f.svc.Booking.Cancel(f.ctx, p, a.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCanceled, a.Status)
	assert.Equal(t, SlotAvailable, f.slotStatus(t, slot.ID))

	b, err := f.svc.Booking.Book(f.ctx, q, slot.ID, "")
	require.NoError(t, err)
	assert.Equal(t, q.ID, b.PatientID)
	assert.Equal(t, SlotBooked, f.slotStatus(t, slot.ID))
}

func TestNotificationFailureDoesNotFailBooking(t *testing.T) {
	clk := clock.NewManual(testEpoch)
	store := NewMemoryRepository(clk)
	f := newFixtureWithStore(t, store, clk, Options{Notifier: &recordingNotifier{err: errBoom}})
	doc := f.doctor(t)
	pat := f.patient(t)

	appt, err := f.svc.Booking.Book(f.ctx, pat, f.slotAt(t, doc, time.Hour).ID, "")
	require.NoError(t, err)

	_, err = f.svc.Booking.Cancel(f.ctx, pat, appt.ID)
	require.NoError(t, err)
}

type failingCreateTx struct {
	Repository
}

func (failingCreateTx) CreateAppointment(context.Context, NewAppointment) (*Appointment, error) {
	return nil, errBoom
}

type failingCreateStore struct {
	*MemoryRepository
}

func (s failingCreateStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Repository) error) error {
	return s.MemoryRepository.WithinTx(ctx, func(ctx context.Context, tx Repository) error {
		return fn(ctx, failingCreateTx{tx})
	})
}

func TestFailedAppointmentCreationRollsBackReservation(t *testing.T) {
	f := newFixture(t)
	doc := f.doctor(t)
	pat := f.patient(t)
	slot := f.slotAt(t, doc, time.Hour)
	eventsBefore := len(f.store.Events())

	svc := NewService(failingCreateStore{f.store}, Options{Clock: f.clock})
	_, err := svc.Booking.Book(f.ctx, pat, slot.ID, "")
	require.ErrorIs(t, err, errBoom)

	assert.Equal(t, SlotAvailable, f.slotStatus(t, slot.ID))
	assert.Len(t, f.store.Events(), eventsBefore)

	_, err = f.svc.Booking.Book(f.ctx, pat, slot.ID, "")
	require.NoError(t, err)
}

type heldGuard struct{}

func (heldGuard) WithSlotGuard(context.Context, uuid.UUID, func(context.Context) error) error {
	return redisclient.ErrGuardHeld
}

func TestLostGuardIsSlotUnavailable(t *testing.T) {
	clk := clock.NewManual(testEpoch)
	f := newFixtureWithStore(t, NewMemoryRepository(clk), clk, Options{Guard: heldGuard{}})
	doc := f.doctor(t)
	pat := f.patient(t)
	slot := f.slotAt(t, doc, time.Hour)

	_, err := f.svc.Booking.Book(f.ctx, pat, slot.ID, "")
	assert.ErrorIs(t, err, ErrSlotUnavailable)
	assert.Equal(t, SlotAvailable, f.slotStatus(t, slot.ID))
}

func TestBookSucceedsWhileRedisIsDown(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	clk := clock.NewManual(testEpoch)
	guard := redisclient.NewBookingGuard(rdb, 5*time.Second, logs.Discard())
	f := newFixtureWithStore(t, NewMemoryRepository(clk), clk, Options{Guard: guard})
	doc := f.doctor(t)
	pat := f.patient(t)
	slot := f.slotAt(t, doc, time.Hour)

	mr.Close()

	appt, err := f.svc.Booking.Book(f.ctx, pat, slot.ID, "")
	require.NoError(t, err)
	assert.Equal(t, StatusScheduled, appt.Status)
	assert.Equal(t, SlotBooked, f.slotStatus(t, slot.ID))

	_, err = f.svc.Booking.Book(f.ctx, f.patient(t), slot.ID, "")
	assert.ErrorIs(t, err, ErrSlotUnavailable)
}

func TestComplete(t *testing.T) {
	f := newFixture(t)
	doc := f.doctor(t)
	pat := f.patient(t)
	otherDoc := f.doctor(t)

	appt, err := f.svc.Booking.Book(f.ctx, pat, f.slotAt(t, doc, time.Hour).ID, "")
	require.NoError(t, err)

	_, err = f.svc.Booking.Complete(f.ctx, pat, appt.ID)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.svc.Booking.Complete(f.ctx, otherDoc, appt.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	done, err := f.svc.Booking.Complete(f.ctx, doc, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, done.Status)
	assert.Equal(t, SlotBooked, f.slotStatus(t, appt.SlotID))

	_, err = f.svc.Booking.Complete(f.ctx, doc, appt.ID)
	assert.ErrorIs(t, err, ErrInvalidState)

	canceled, err := f.svc.Booking.Book(f.ctx, pat, f.slotAt(t, doc, 2*time.Hour).ID, "")
	require.NoError(t, err)
	_, err = f.svc.Booking.Cancel(f.ctx, pat, canceled.ID)
	require.NoError(t, err)
	_, err = f.svc.Booking.Complete(f.ctx, doc, canceled.ID)
	assert.ErrorIs(t, err, ErrAlreadyCanceled)
}

func TestCompleteElapsed(t *testing.T) {
	f := newFixture(t)
	doc := f.doctor(t)
	pat := f.patient(t)

	early, err := f.svc.Booking.Book(f.ctx, pat, f.slotAt(t, doc, time.Hour).ID, "")
	require.NoError(t, err)
	late, err := f.svc.Booking.Book(f.ctx, pat, f.slotAt(t, doc, 5*time.Hour).ID, "")
	require.NoError(t, err)
	dropped, err := f.svc.Booking.Book(f.ctx, pat, f.slotAt(t, doc, 30*time.Minute).ID, "")
	require.NoError(t, err)
	_, err = f.svc.Booking.Cancel(f.ctx, pat, dropped.ID)
	require.NoError(t, err)

	n, err := f.svc.Booking.CompleteElapsed(f.ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	// early ends at now+2h
	f.clock.Advance(2 * time.Hour)
	n, err = f.svc.Booking.CompleteElapsed(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := f.store.GetAppointmentByID(f.ctx, early.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)

	got, err = f.store.GetAppointmentByID(f.ctx, late.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusScheduled, got.Status)

	got, err = f.store.GetAppointmentByID(f.ctx, dropped.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCanceled, got.Status)

	n, err = f.svc.Booking.CompleteElapsed(f.ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

type failingEventTx struct {
	Repository
}

func (failingEventTx) InsertEvent(context.Context, EventLog) error { return errBoom }

type failingEventStore struct {
	*MemoryRepository
}

func (s failingEventStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Repository) error) error {
	return s.MemoryRepository.WithinTx(ctx, func(ctx context.Context, tx Repository) error {
		return fn(ctx, failingEventTx{tx})
	})
}

func TestCompleteElapsedReportsFailures(t *testing.T) {
	f := newFixture(t)
	doc := f.doctor(t)
	pat := f.patient(t)

	appt, err := f.svc.Booking.Book(f.ctx, pat, f.slotAt(t, doc, time.Hour).ID, "")
	require.NoError(t, err)
	f.clock.Advance(3 * time.Hour)

	reader := sdkmetric.NewManualReader()
	m, err := metrics.New(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	require.NoError(t, err)

	svc := NewService(failingEventStore{f.store}, Options{Clock: f.clock, Metrics: m})
	n, err := svc.Booking.CompleteElapsed(f.ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	got, err := f.store.GetAppointmentByID(f.ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusScheduled, got.Status)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(f.ctx, &rm))

	var outcomes []string
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			if md.Name != "clinic_operations_total" {
				continue
			}
			sum, ok := md.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				op, _ := dp.Attributes.Value(attribute.Key("operation"))
				outcome, _ := dp.Attributes.Value(attribute.Key("outcome"))
				if op.AsString() == "complete_elapsed" {
					outcomes = append(outcomes, outcome.AsString())
				}
			}
		}
	}
	assert.Equal(t, []string{"error"}, outcomes)
}
