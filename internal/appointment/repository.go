package appointment

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrPatientNotFound     = fmt.Errorf("patient %w", ErrNotFound)
	ErrDoctorNotFound      = fmt.Errorf("doctor %w", ErrNotFound)
	ErrSlotNotFound        = fmt.Errorf("slot %w", ErrNotFound)
	ErrAppointmentNotFound = fmt.Errorf("appointment %w", ErrNotFound)

	// ErrNoTransition is returned by conditional status updates whose precondition did not hold.
	// Services translate it into a domain error.
	ErrNoTransition = errors.New("status precondition not met")
)

// Repository contains all storage interactions needed by the services.
// Every method may run inside or outside a transaction, depending on where the value came from.
type Repository interface {
	CreateDoctor(ctx context.Context, d NewDoctor) (*Doctor, error)
	GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	// LockDoctor loads the doctor and holds a row lock until the transaction ends.
	LockDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error)
	ListDoctors(ctx context.Context, specialty string) ([]Doctor, error)
	UpdateDoctorRating(ctx context.Context, id uuid.UUID, average float64, count int) error

	CreatePatient(ctx context.Context, p NewPatient) (*Patient, error)
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)

	CreateSlot(ctx context.Context, s NewSlot) (*TimeSlot, error)
	GetSlotByID(ctx context.Context, id uuid.UUID) (*TimeSlot, error)
	// UpdateSlotStatus is a compare-and-set: it only applies when the current status is from.
	UpdateSlotStatus(ctx context.Context, id uuid.UUID, from, to SlotStatus) (*TimeSlot, error)
	ListSlots(ctx context.Context, f SlotFilter) ([]TimeSlot, error)

	// CreateAppointment fails with ErrSlotUnavailable when the slot already backs a live appointment.
	CreateAppointment(ctx context.Context, a NewAppointment) (*Appointment, error)
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error)
	ListAppointments(ctx context.Context, f AppointmentFilter) ([]AppointmentDetail, error)

	// CreateRating fails with ErrConflict when the (patient, appointment) pair is already rated.
	CreateRating(ctx context.Context, r NewRating) (*DoctorRating, error)
	RatingExists(ctx context.Context, patientID, appointmentID uuid.UUID) (bool, error)
	ListRatingValues(ctx context.Context, doctorID uuid.UUID) ([]int, error)
	ListRatingsByDoctor(ctx context.Context, doctorID uuid.UUID) ([]DoctorRating, error)

	InsertEvent(ctx context.Context, ev EventLog) error
}

// Store is a Repository that can open atomic units of work.
type Store interface {
	Repository
	// WithinTx runs fn inside one transaction. Any error returned by fn rolls back every write made through tx.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Repository) error) error
}
