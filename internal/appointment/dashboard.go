package appointment

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-booking/internal/actor"
)

// Dashboard serves read-only, time-windowed views over an actor's appointments.
type Dashboard struct {
	*runtime
}

// Upcoming lists SCHEDULED appointments starting at or after now, earliest first.
func (d *Dashboard) Upcoming(ctx context.Context, who actor.Actor) ([]AppointmentDetail, error) {
	f, err := participantFilter(who)
	if err != nil {
		return nil, err
	}
	now := d.clock.Now()
	status := StatusScheduled
	f.Status = &status
	f.StartFrom = &now
	f.Order = Ascending

	out, err := d.store.ListAppointments(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list upcoming appointments: %w", err)
	}
	return out, nil
}

// History lists appointments of any status that started before now, latest first.
func (d *Dashboard) History(ctx context.Context, who actor.Actor) ([]AppointmentDetail, error) {
	f, err := participantFilter(who)
	if err != nil {
		return nil, err
	}
	now := d.clock.Now()
	f.StartBefore = &now
	f.Order = Descending

	out, err := d.store.ListAppointments(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list appointment history: %w", err)
	}
	return out, nil
}

// Get returns one appointment with its slot. Admins may read any appointment; everybody else only their own.
func (d *Dashboard) Get(ctx context.Context, who actor.Actor, id uuid.UUID) (*AppointmentDetail, error) {
	appt, err := d.store.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !who.IsAdmin() && !isParticipant(who, appt) {
		return nil, ErrForbidden
	}

	slot, err := d.store.GetSlotByID(ctx, appt.SlotID)
	if err != nil {
		return nil, fmt.Errorf("load slot: %w", err)
	}
	return &AppointmentDetail{Appointment: *appt, Slot: *slot}, nil
}

func participantFilter(who actor.Actor) (AppointmentFilter, error) {
	id := who.ID
	switch {
	case who.IsDoctor():
		return AppointmentFilter{DoctorID: &id}, nil
	case who.IsPatient():
		return AppointmentFilter{PatientID: &id}, nil
	default:
		return AppointmentFilter{}, ErrForbidden
	}
}
