package appointment

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-booking/internal/actor"
	"github.com/hackgods/clinic-booking/internal/clock"
)

var errBoom = errors.New("boom")

var testEpoch = time.Date(2026, time.March, 2, 8, 0, 0, 0, time.UTC)

type recordingNotifier struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (n *recordingNotifier) Notify(_ context.Context, ev Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return n.err
}

func (n *recordingNotifier) kinds() []EventKind {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]EventKind, 0, len(n.events))
	for _, ev := range n.events {
		out = append(out, ev.Kind)
	}
	return out
}

type fixture struct {
	ctx   context.Context
	store *MemoryRepository
	clock *clock.Manual
	notes *recordingNotifier
	svc   *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clk := clock.NewManual(testEpoch)
	store := NewMemoryRepository(clk)
	return newFixtureWithStore(t, store, clk, Options{})
}

func newFixtureWithStore(t *testing.T, store *MemoryRepository, clk *clock.Manual, opts Options) *fixture {
	t.Helper()
	notes := &recordingNotifier{}
	opts.Clock = clk
	if opts.Notifier == nil {
		opts.Notifier = notes
	}
	return &fixture{
		ctx:   context.Background(),
		store: store,
		clock: clk,
		notes: notes,
		svc:   NewService(store, opts),
	}
}

func (f *fixture) doctor(t *testing.T) actor.Actor {
	t.Helper()
	years := gofakeit.IntRange(1, 40)
	d, err := f.svc.Directory.RegisterDoctor(f.ctx, NewDoctor{
		Name:            "Dr. " + gofakeit.Name(),
		Specialty:       gofakeit.RandomString([]string{"Cardiology", "Dermatology", "Pediatrics"}),
		ExperienceYears: &years,
	})
	require.NoError(t, err)
	return actor.Doctor(d.ID)
}

func (f *fixture) patient(t *testing.T) actor.Actor {
	t.Helper()
	email := gofakeit.Email()
	p, err := f.svc.Directory.RegisterPatient(f.ctx, NewPatient{Name: gofakeit.Name(), Email: &email})
	require.NoError(t, err)
	return actor.Patient(p.ID)
}

// slotAt publishes a one hour slot starting offset after the fixture's now.
func (f *fixture) slotAt(t *testing.T, doc actor.Actor, offset time.Duration) *TimeSlot {
	t.Helper()
	start := f.clock.Now().Add(offset)
	s, err := f.svc.Slots.Publish(f.ctx, doc, start, start.Add(time.Hour))
	require.NoError(t, err)
	return s
}

func (f *fixture) slotStatus(t *testing.T, id uuid.UUID) SlotStatus {
	t.Helper()
	s, err := f.store.GetSlotByID(f.ctx, id)
	require.NoError(t, err)
	return s.Status
}

// completed books a slot for the patient and lets the doctor complete it.
func (f *fixture) completed(t *testing.T, doc, pat actor.Actor) *Appointment {
	t.Helper()
	slot := f.slotAt(t, doc, time.Hour)
	appt, err := f.svc.Booking.Book(f.ctx, pat, slot.ID, "")
	require.NoError(t, err)
	appt, err = f.svc.Booking.Complete(f.ctx, doc, appt.ID)
	require.NoError(t, err)
	return appt
}
