// Package notify delivers committed booking events to the outside world.
// Delivery is best effort: nothing here can fail or roll back a booking.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hackgods/clinic-booking/internal/appointment"
	"github.com/hackgods/clinic-booking/internal/metrics"
)

// Sink is one delivery target.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, ev appointment.Event) error
}

// Fanout delivers every event to all sinks and reports each sink's outcome.
type Fanout struct {
	sinks   []Sink
	metrics *metrics.Metrics
}

func NewFanout(m *metrics.Metrics, sinks ...Sink) *Fanout {
	return &Fanout{sinks: sinks, metrics: m}
}

func (f *Fanout) Name() string { return "fanout" }

func (f *Fanout) Deliver(ctx context.Context, ev appointment.Event) error {
	var errs []error
	for _, s := range f.sinks {
		err := s.Deliver(ctx, ev)
		f.metrics.RecordNotification(ctx, s.Name(), err == nil)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// LogSink writes events to the process log.
type LogSink struct {
	log *slog.Logger
}

func NewLogSink(log *slog.Logger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Deliver(ctx context.Context, ev appointment.Event) error {
	s.log.InfoContext(ctx, Message(ev),
		"kind", ev.Kind,
		"appointment_id", ev.AppointmentID,
		"doctor_id", ev.DoctorID,
		"patient_id", ev.PatientID,
		"slot_start", ev.SlotStart,
	)
	return nil
}

// Message renders the human readable text sent to the patient.
func Message(ev appointment.Event) string {
	at := ev.SlotStart.Format(time.DateTime)
	switch ev.Kind {
	case appointment.EventBookingConfirmed:
		return fmt.Sprintf("Appointment booked for %s", at)
	case appointment.EventBookingCanceled:
		return fmt.Sprintf("Appointment for %s has been canceled", at)
	case appointment.EventAppointmentCompleted:
		return fmt.Sprintf("Appointment of %s is completed, you can now rate your doctor", at)
	case appointment.EventRatingRecorded:
		return fmt.Sprintf("Rating %d recorded for the appointment of %s", ev.Rating, at)
	default:
		return string(ev.Kind)
	}
}
