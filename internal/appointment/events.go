package appointment

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type EventKind string

const (
	EventBookingConfirmed     EventKind = "booking_confirmed"
	EventBookingCanceled      EventKind = "booking_canceled"
	EventAppointmentCompleted EventKind = "appointment_completed"
	EventRatingRecorded       EventKind = "rating_recorded"
	EventSlotPublished        EventKind = "slot_published"
	EventSlotWithdrawn        EventKind = "slot_withdrawn"
)

// Event is what the notification collaborator receives after a mutation commits.
type Event struct {
	Kind          EventKind `json:"kind"`
	AppointmentID uuid.UUID `json:"appointment_id"`
	SlotID        uuid.UUID `json:"slot_id"`
	DoctorID      uuid.UUID `json:"doctor_id"`
	PatientID     uuid.UUID `json:"patient_id"`
	SlotStart     time.Time `json:"slot_start"`
	Rating        int       `json:"rating,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// Notifier delivers events. Delivery is best effort: an error is logged and never undoes the mutation.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, Event) error { return nil }

// recordEvent appends the event to event_logs through tx, so the audit row commits or rolls back with the change.
func recordEvent(ctx context.Context, tx Repository, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", ev.Kind, err)
	}

	var apptID *uuid.UUID
	if ev.AppointmentID != uuid.Nil {
		id := ev.AppointmentID
		apptID = &id
	}

	if err := tx.InsertEvent(ctx, EventLog{
		EventType:     string(ev.Kind),
		AppointmentID: apptID,
		Payload:       payload,
		CreatedAt:     ev.OccurredAt,
	}); err != nil {
		return fmt.Errorf("record %s event: %w", ev.Kind, err)
	}
	return nil
}

func bookingEvent(kind EventKind, a *Appointment, slot *TimeSlot, now time.Time) Event {
	return Event{
		Kind:          kind,
		AppointmentID: a.ID,
		SlotID:        a.SlotID,
		DoctorID:      a.DoctorID,
		PatientID:     a.PatientID,
		SlotStart:     slot.StartTime,
		OccurredAt:    now,
	}
}
