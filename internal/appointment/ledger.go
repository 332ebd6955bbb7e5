package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-booking/internal/actor"
)

// SlotLedger owns the TimeSlot lifecycle. Every slot status change goes through it.
type SlotLedger struct {
	*runtime
}

// Publish creates an AVAILABLE slot for the calling doctor.
func (l *SlotLedger) Publish(ctx context.Context, doctor actor.Actor, start, end time.Time) (*TimeSlot, error) {
	started := time.Now()
	slot, err := l.publish(ctx, doctor, start, end)
	l.observe(ctx, "publish", started, err)
	return slot, err
}

func (l *SlotLedger) publish(ctx context.Context, doctor actor.Actor, start, end time.Time) (*TimeSlot, error) {
	if !doctor.IsDoctor() {
		return nil, ErrForbidden
	}
	if start.IsZero() || end.IsZero() {
		return nil, fmt.Errorf("%w: start and end are required", ErrInvalidArgument)
	}
	if !start.Before(end) {
		return nil, ErrInvalidRange
	}

	var slot *TimeSlot
	err := l.store.WithinTx(ctx, func(ctx context.Context, tx Repository) error {
		s, err := tx.CreateSlot(ctx, NewSlot{DoctorID: doctor.ID, StartTime: start.UTC(), EndTime: end.UTC()})
		if err != nil {
			return err
		}
		if err := recordEvent(ctx, tx, slotEvent(EventSlotPublished, s, l.clock.Now())); err != nil {
			return err
		}
		slot = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return slot, nil
}

// Reserve moves the slot from AVAILABLE to BOOKED. It must run inside the transaction that creates the appointment.
func (l *SlotLedger) Reserve(ctx context.Context, tx Repository, slotID uuid.UUID) (*TimeSlot, error) {
	slot, err := tx.UpdateSlotStatus(ctx, slotID, SlotAvailable, SlotBooked)
	if errors.Is(err, ErrNoTransition) {
		if _, err := tx.GetSlotByID(ctx, slotID); err != nil {
			return nil, err
		}
		return nil, ErrSlotUnavailable
	}
	if err != nil {
		return nil, fmt.Errorf("reserve slot: %w", err)
	}
	return slot, nil
}

// Release moves a BOOKED slot back to AVAILABLE.
func (l *SlotLedger) Release(ctx context.Context, tx Repository, slotID uuid.UUID) (*TimeSlot, error) {
	slot, err := tx.UpdateSlotStatus(ctx, slotID, SlotBooked, SlotAvailable)
	if errors.Is(err, ErrNoTransition) {
		if _, err := tx.GetSlotByID(ctx, slotID); err != nil {
			return nil, err
		}
		return nil, ErrNotBooked
	}
	if err != nil {
		return nil, fmt.Errorf("release slot: %w", err)
	}
	return slot, nil
}

// Withdraw lets the owning doctor cancel a slot nobody has booked.
func (l *SlotLedger) Withdraw(ctx context.Context, doctor actor.Actor, slotID uuid.UUID) (*TimeSlot, error) {
	started := time.Now()
	slot, err := l.withdraw(ctx, doctor, slotID)
	l.observe(ctx, "withdraw", started, err)
	return slot, err
}

func (l *SlotLedger) withdraw(ctx context.Context, doctor actor.Actor, slotID uuid.UUID) (*TimeSlot, error) {
	var slot *TimeSlot
	err := l.store.WithinTx(ctx, func(ctx context.Context, tx Repository) error {
		current, err := tx.GetSlotByID(ctx, slotID)
		if err != nil {
			return err
		}
		if !doctor.IsDoctor() || current.DoctorID != doctor.ID {
			return ErrForbidden
		}

		s, err := tx.UpdateSlotStatus(ctx, slotID, SlotAvailable, SlotCanceled)
		if errors.Is(err, ErrNoTransition) {
			return ErrSlotUnavailable
		}
		if err != nil {
			return fmt.Errorf("withdraw slot: %w", err)
		}

		if err := recordEvent(ctx, tx, slotEvent(EventSlotWithdrawn, s, l.clock.Now())); err != nil {
			return err
		}
		slot = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return slot, nil
}

// ListSlots returns the slots a viewer may pick from: AVAILABLE slots starting from now, earliest first.
// A doctor asking for their own slots sees every status, past ones included.
func (l *SlotLedger) ListSlots(ctx context.Context, viewer actor.Actor, doctorID *uuid.UUID) ([]TimeSlot, error) {
	if doctorID != nil && viewer.IsDoctor() && *doctorID == viewer.ID {
		return l.store.ListSlots(ctx, SlotFilter{DoctorID: doctorID})
	}

	now := l.clock.Now()
	status := SlotAvailable
	slots, err := l.store.ListSlots(ctx, SlotFilter{
		DoctorID:  doctorID,
		Status:    &status,
		StartFrom: &now,
	})
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	return slots, nil
}

func slotEvent(kind EventKind, s *TimeSlot, now time.Time) Event {
	return Event{
		Kind:       kind,
		SlotID:     s.ID,
		DoctorID:   s.DoctorID,
		SlotStart:  s.StartTime,
		OccurredAt: now,
	}
}
