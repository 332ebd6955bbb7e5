package appointment

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-booking/internal/actor"
)

const (
	MinRating = 1
	MaxRating = 5

	maxCommentLength = 2000
)

// RatingAggregator records ratings for completed appointments and keeps each doctor's average in step with them.
type RatingAggregator struct {
	*runtime
}

// Submit records the patient's rating of a completed appointment and recomputes the doctor's average
// in the same transaction.
func (r *RatingAggregator) Submit(ctx context.Context, patient actor.Actor, appointmentID uuid.UUID, rating int, comment string) (*DoctorRating, error) {
	started := time.Now()
	rt, err := r.submit(ctx, patient, appointmentID, rating, comment)
	r.observe(ctx, "rate", started, err)
	return rt, err
}

func (r *RatingAggregator) submit(ctx context.Context, patient actor.Actor, appointmentID uuid.UUID, rating int, comment string) (*DoctorRating, error) {
	var ev Event
	var created *DoctorRating

	err := r.store.WithinTx(ctx, func(ctx context.Context, tx Repository) error {
		appt, err := tx.GetAppointmentByID(ctx, appointmentID)
		if err != nil {
			return err
		}
		if !patient.IsPatient() || appt.PatientID != patient.ID {
			return fmt.Errorf("%w: rate only your own appointments", ErrForbidden)
		}
		if appt.Status != StatusCompleted {
			return fmt.Errorf("%w: only completed appointments are ratable", ErrInvalidState)
		}
		if rating < MinRating || rating > MaxRating {
			return fmt.Errorf("%w: rating must be between %d and %d", ErrInvalidArgument, MinRating, MaxRating)
		}
		commentText, err := normalizeComment(comment)
		if err != nil {
			return err
		}

		exists, err := tx.RatingExists(ctx, patient.ID, appt.ID)
		if err != nil {
			return fmt.Errorf("check existing rating: %w", err)
		}
		if exists {
			return fmt.Errorf("%w: appointment already rated", ErrConflict)
		}

		// serializes recomputation for this doctor until commit
		if _, err := tx.LockDoctor(ctx, appt.DoctorID); err != nil {
			return err
		}

		rt, err := tx.CreateRating(ctx, NewRating{
			DoctorID:      appt.DoctorID,
			PatientID:     patient.ID,
			AppointmentID: appt.ID,
			Rating:        rating,
			Comment:       commentText,
		})
		if err != nil {
			return err
		}

		if _, _, err := r.recompute(ctx, tx, appt.DoctorID); err != nil {
			return err
		}

		slot, err := tx.GetSlotByID(ctx, appt.SlotID)
		if err != nil {
			return fmt.Errorf("load slot: %w", err)
		}
		ev = bookingEvent(EventRatingRecorded, appt, slot, r.clock.Now())
		ev.Rating = rating
		if err := recordEvent(ctx, tx, ev); err != nil {
			return err
		}

		created = rt
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.notify(ctx, ev)
	return created, nil
}

// Recompute rebuilds the doctor's average from the stored ratings. It is idempotent.
func (r *RatingAggregator) Recompute(ctx context.Context, doctorID uuid.UUID) (*Doctor, error) {
	var doc *Doctor
	err := r.store.WithinTx(ctx, func(ctx context.Context, tx Repository) error {
		d, err := tx.LockDoctor(ctx, doctorID)
		if err != nil {
			return err
		}
		avg, count, err := r.recompute(ctx, tx, doctorID)
		if err != nil {
			return err
		}
		d.AverageRating = avg
		d.RatingCount = count
		doc = d
		return nil
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (r *RatingAggregator) recompute(ctx context.Context, tx Repository, doctorID uuid.UUID) (float64, int, error) {
	values, err := tx.ListRatingValues(ctx, doctorID)
	if err != nil {
		return 0, 0, fmt.Errorf("list ratings: %w", err)
	}
	avg := AverageRating(values)
	if err := tx.UpdateDoctorRating(ctx, doctorID, avg, len(values)); err != nil {
		return 0, 0, fmt.Errorf("update average rating: %w", err)
	}
	return avg, len(values), nil
}

// AverageRating is the arithmetic mean rounded to one decimal place, or 0 for no ratings.
func AverageRating(values []int) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0
	for _, v := range values {
		sum += v
	}
	avg := float64(sum) / float64(len(values))
	return math.Round(avg*10) / 10
}

func normalizeComment(comment string) (*string, error) {
	comment = strings.TrimSpace(comment)
	if comment == "" {
		return nil, nil
	}
	if len([]rune(comment)) > maxCommentLength {
		return nil, fmt.Errorf("%w: comment exceeds %d characters", ErrInvalidArgument, maxCommentLength)
	}
	return &comment, nil
}
