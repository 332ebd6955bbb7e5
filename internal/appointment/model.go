package appointment

import (
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	StatusScheduled AppointmentStatus = "SCHEDULED"
	StatusCompleted AppointmentStatus = "COMPLETED"
	StatusCanceled  AppointmentStatus = "CANCELED"
)

type SlotStatus string

const (
	SlotAvailable SlotStatus = "AVAILABLE"
	SlotBooked    SlotStatus = "BOOKED"
	SlotCanceled  SlotStatus = "CANCELED"
)

type Patient struct {
	ID        uuid.UUID
	Name      string
	Email     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Doctor carries the profile fields rendered on the doctor page plus the derived rating aggregate.
// AverageRating and RatingCount are written only by the rating recomputation.
type Doctor struct {
	ID                 uuid.UUID
	Name               string
	Specialty          string
	ExperienceYears    *int
	ConsultationPrice  *int64 // minor currency units
	AvailableForOnline bool
	AverageRating      float64
	RatingCount        int
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

type TimeSlot struct {
	ID        uuid.UUID
	DoctorID  uuid.UUID
	StartTime time.Time
	EndTime   time.Time
	Status    SlotStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Appointment struct {
	ID        uuid.UUID
	DoctorID  uuid.UUID
	PatientID uuid.UUID
	SlotID    uuid.UUID
	Status    AppointmentStatus
	Reason    *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AppointmentDetail is an appointment joined with the slot that backs it.
type AppointmentDetail struct {
	Appointment
	Slot TimeSlot
}

type DoctorRating struct {
	ID            uuid.UUID
	DoctorID      uuid.UUID
	PatientID     uuid.UUID
	AppointmentID *uuid.UUID // nil only for imported legacy rows
	Rating        int
	Comment       *string
	CreatedAt     time.Time
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

type NewDoctor struct {
	ID                 uuid.UUID
	Name               string
	Specialty          string
	ExperienceYears    *int
	ConsultationPrice  *int64
	AvailableForOnline bool
}

type NewPatient struct {
	ID    uuid.UUID
	Name  string
	Email *string
}

type NewSlot struct {
	DoctorID  uuid.UUID
	StartTime time.Time
	EndTime   time.Time
}

type NewAppointment struct {
	DoctorID  uuid.UUID
	PatientID uuid.UUID
	SlotID    uuid.UUID
	Reason    *string
}

type NewRating struct {
	DoctorID      uuid.UUID
	PatientID     uuid.UUID
	AppointmentID uuid.UUID
	Rating        int
	Comment       *string
}

type SlotFilter struct {
	DoctorID  *uuid.UUID
	Status    *SlotStatus
	StartFrom *time.Time // start_time >= StartFrom
}

type SortOrder int

const (
	Ascending SortOrder = iota
	Descending
)

type AppointmentFilter struct {
	DoctorID    *uuid.UUID
	PatientID   *uuid.UUID
	Status      *AppointmentStatus
	StartFrom   *time.Time // slot start >= StartFrom
	StartBefore *time.Time // slot start < StartBefore
	EndBy       *time.Time // slot end <= EndBy
	Order       SortOrder  // by slot start time
	Limit       int        // 0 means no limit
}
