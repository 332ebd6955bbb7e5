package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-booking/internal/actor"
	redisclient "github.com/hackgods/clinic-booking/internal/redis"
)

const maxReasonLength = 2000

// Coordinator turns booking requests into appointments and handles cancellation and completion.
// Slot transitions and appointment writes always share one transaction.
type Coordinator struct {
	*runtime
	ledger *SlotLedger
	guard  redisclient.Guard
}

// Book reserves the slot for the calling patient and creates a SCHEDULED appointment.
func (c *Coordinator) Book(ctx context.Context, patient actor.Actor, slotID uuid.UUID, reason string) (*Appointment, error) {
	started := time.Now()
	appt, err := c.book(ctx, patient, slotID, reason)
	c.observe(ctx, "book", started, err)
	return appt, err
}

func (c *Coordinator) book(ctx context.Context, patient actor.Actor, slotID uuid.UUID, reason string) (*Appointment, error) {
	if !patient.IsPatient() {
		return nil, ErrForbidden
	}
	reasonText, err := normalizeReason(reason)
	if err != nil {
		return nil, err
	}

	var ev Event
	var created *Appointment

	err = c.guard.WithSlotGuard(ctx, slotID, func(ctx context.Context) error {
		return c.store.WithinTx(ctx, func(ctx context.Context, tx Repository) error {
			if _, err := tx.GetPatientByID(ctx, patient.ID); err != nil {
				return err
			}

			slot, err := c.ledger.Reserve(ctx, tx, slotID)
			if err != nil {
				return err
			}

			appt, err := tx.CreateAppointment(ctx, NewAppointment{
				DoctorID:  slot.DoctorID,
				PatientID: patient.ID,
				SlotID:    slot.ID,
				Reason:    reasonText,
			})
			if err != nil {
				return fmt.Errorf("create appointment: %w", err)
			}

			ev = bookingEvent(EventBookingConfirmed, appt, slot, c.clock.Now())
			if err := recordEvent(ctx, tx, ev); err != nil {
				return err
			}
			created = appt
			return nil
		})
	})
	if errors.Is(err, redisclient.ErrGuardHeld) {
		return nil, ErrSlotUnavailable
	}
	if err != nil {
		return nil, err
	}

	c.notify(ctx, ev)
	return created, nil
}

// Cancel moves a SCHEDULED appointment to CANCELED and returns its slot to AVAILABLE.
// Only the appointment's doctor or patient may cancel it, and a canceled appointment cannot be canceled again.
func (c *Coordinator) Cancel(ctx context.Context, who actor.Actor, appointmentID uuid.UUID) (*Appointment, error) {
	started := time.Now()
	appt, err := c.cancel(ctx, who, appointmentID)
	c.observe(ctx, "cancel", started, err)
	return appt, err
}

func (c *Coordinator) cancel(ctx context.Context, who actor.Actor, appointmentID uuid.UUID) (*Appointment, error) {
	var ev Event
	var canceled *Appointment

	err := c.store.WithinTx(ctx, func(ctx context.Context, tx Repository) error {
		current, err := tx.GetAppointmentByID(ctx, appointmentID)
		if err != nil {
			return err
		}
		if !isParticipant(who, current) {
			return ErrForbidden
		}

		appt, err := c.transition(ctx, tx, current.ID, StatusCanceled)
		if err != nil {
			return err
		}

		slot, err := c.ledger.Release(ctx, tx, appt.SlotID)
		if err != nil {
			return err
		}

		ev = bookingEvent(EventBookingCanceled, appt, slot, c.clock.Now())
		if err := recordEvent(ctx, tx, ev); err != nil {
			return err
		}
		canceled = appt
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.notify(ctx, ev)
	return canceled, nil
}

// Complete lets the appointment's doctor mark it COMPLETED. The slot stays BOOKED.
func (c *Coordinator) Complete(ctx context.Context, doctor actor.Actor, appointmentID uuid.UUID) (*Appointment, error) {
	started := time.Now()
	appt, err := c.complete(ctx, doctor, appointmentID)
	c.observe(ctx, "complete", started, err)
	return appt, err
}

func (c *Coordinator) complete(ctx context.Context, doctor actor.Actor, appointmentID uuid.UUID) (*Appointment, error) {
	var ev Event
	var done *Appointment

	err := c.store.WithinTx(ctx, func(ctx context.Context, tx Repository) error {
		current, err := tx.GetAppointmentByID(ctx, appointmentID)
		if err != nil {
			return err
		}
		if !doctor.IsDoctor() || current.DoctorID != doctor.ID {
			return ErrForbidden
		}

		appt, slot, err := c.completeTx(ctx, tx, current.ID)
		if err != nil {
			return err
		}
		ev = bookingEvent(EventAppointmentCompleted, appt, slot, c.clock.Now())
		if err := recordEvent(ctx, tx, ev); err != nil {
			return err
		}
		done = appt
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.notify(ctx, ev)
	return done, nil
}

// CompleteElapsed completes every SCHEDULED appointment whose slot has ended.
// Each appointment commits on its own; a failure is logged and the sweep continues.
func (c *Coordinator) CompleteElapsed(ctx context.Context) (int, error) {
	started := time.Now()
	now := c.clock.Now()
	status := StatusScheduled
	due, err := c.store.ListAppointments(ctx, AppointmentFilter{Status: &status, EndBy: &now})
	if err != nil {
		return 0, fmt.Errorf("find elapsed appointments: %w", err)
	}

	completed, failed := 0, 0
	for _, d := range due {
		if err := ctx.Err(); err != nil {
			return completed, err
		}

		var ev Event
		err := c.store.WithinTx(ctx, func(ctx context.Context, tx Repository) error {
			appt, slot, err := c.completeTx(ctx, tx, d.ID)
			if err != nil {
				return err
			}
			ev = bookingEvent(EventAppointmentCompleted, appt, slot, c.clock.Now())
			return recordEvent(ctx, tx, ev)
		})
		switch {
		case err == nil:
			completed++
			c.notify(ctx, ev)
		case errors.Is(err, ErrAlreadyCanceled), errors.Is(err, ErrInvalidState):
			// changed state since the scan
		default:
			failed++
			c.log.ErrorContext(ctx, "failed to complete appointment", "appointment_id", d.ID, "err", err)
		}
	}

	outcome := "ok"
	if failed > 0 {
		outcome = "error"
		c.log.WarnContext(ctx, "completion sweep had failures", "completed", completed, "failed", failed)
	}
	c.metrics.RecordOperation(ctx, "complete_elapsed", outcome, time.Since(started))
	return completed, nil
}

func (c *Coordinator) completeTx(ctx context.Context, tx Repository, id uuid.UUID) (*Appointment, *TimeSlot, error) {
	appt, err := c.transition(ctx, tx, id, StatusCompleted)
	if err != nil {
		return nil, nil, err
	}
	slot, err := tx.GetSlotByID(ctx, appt.SlotID)
	if err != nil {
		return nil, nil, fmt.Errorf("load slot: %w", err)
	}
	return appt, slot, nil
}

// transition applies SCHEDULED -> to, translating a failed precondition into the matching domain error.
func (c *Coordinator) transition(ctx context.Context, tx Repository, id uuid.UUID, to AppointmentStatus) (*Appointment, error) {
	appt, err := tx.UpdateAppointmentStatus(ctx, id, StatusScheduled, to)
	if err == nil {
		return appt, nil
	}
	if !errors.Is(err, ErrNoTransition) {
		return nil, fmt.Errorf("update appointment status: %w", err)
	}

	current, err := tx.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status == StatusCanceled {
		return nil, ErrAlreadyCanceled
	}
	return nil, fmt.Errorf("%w: appointment is %s", ErrInvalidState, current.Status)
}

func isParticipant(who actor.Actor, a *Appointment) bool {
	switch {
	case who.IsDoctor():
		return a.DoctorID == who.ID
	case who.IsPatient():
		return a.PatientID == who.ID
	default:
		return false
	}
}

func normalizeReason(reason string) (*string, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, nil
	}
	if utf8.RuneCountInString(reason) > maxReasonLength {
		return nil, fmt.Errorf("%w: reason exceeds %d characters", ErrInvalidArgument, maxReasonLength)
	}
	return &reason, nil
}
