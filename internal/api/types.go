package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-booking/internal/appointment"
)

type PublishSlotRequest struct {
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

type BookAppointmentRequest struct {
	SlotID string `json:"slot_id"`
	Reason string `json:"reason"`
}

type SubmitRatingRequest struct {
	AppointmentID string `json:"appointment_id"`
	Rating        int    `json:"rating"`
	Comment       string `json:"comment"`
}

type SlotResponse struct {
	ID        uuid.UUID `json:"id"`
	DoctorID  uuid.UUID `json:"doctor_id"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Status    string    `json:"status"`
}

type AppointmentResponse struct {
	ID        uuid.UUID     `json:"id"`
	DoctorID  uuid.UUID     `json:"doctor_id"`
	PatientID uuid.UUID     `json:"patient_id"`
	SlotID    uuid.UUID     `json:"slot_id"`
	Status    string        `json:"status"`
	Reason    *string       `json:"reason,omitempty"`
	Slot      *SlotResponse `json:"slot,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

type DoctorResponse struct {
	ID                 uuid.UUID `json:"id"`
	Name               string    `json:"name"`
	Specialty          string    `json:"specialty"`
	ExperienceYears    *int      `json:"experience_years,omitempty"`
	ConsultationPrice  *int64    `json:"consultation_price,omitempty"`
	AverageRating      float64   `json:"average_rating"`
	RatingCount        int       `json:"rating_count"`
	AvailableForOnline bool      `json:"available_for_online"`
}

type RatingResponse struct {
	ID            uuid.UUID  `json:"id"`
	DoctorID      uuid.UUID  `json:"doctor_id"`
	PatientID     uuid.UUID  `json:"patient_id"`
	AppointmentID *uuid.UUID `json:"appointment_id,omitempty"`
	Rating        int        `json:"rating"`
	Comment       *string    `json:"comment,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toSlotResponse(s appointment.TimeSlot) SlotResponse {
	return SlotResponse{
		ID:        s.ID,
		DoctorID:  s.DoctorID,
		StartTime: s.StartTime,
		EndTime:   s.EndTime,
		Status:    string(s.Status),
	}
}

func toAppointmentResponse(a appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:        a.ID,
		DoctorID:  a.DoctorID,
		PatientID: a.PatientID,
		SlotID:    a.SlotID,
		Status:    string(a.Status),
		Reason:    a.Reason,
		CreatedAt: a.CreatedAt,
	}
}

func toDetailResponse(d appointment.AppointmentDetail) AppointmentResponse {
	resp := toAppointmentResponse(d.Appointment)
	slot := toSlotResponse(d.Slot)
	resp.Slot = &slot
	return resp
}

func toDoctorResponse(d appointment.Doctor) DoctorResponse {
	return DoctorResponse{
		ID:                 d.ID,
		Name:               d.Name,
		Specialty:          d.Specialty,
		ExperienceYears:    d.ExperienceYears,
		ConsultationPrice:  d.ConsultationPrice,
		AverageRating:      d.AverageRating,
		RatingCount:        d.RatingCount,
		AvailableForOnline: d.AvailableForOnline,
	}
}

func toRatingResponse(r appointment.DoctorRating) RatingResponse {
	return RatingResponse{
		ID:            r.ID,
		DoctorID:      r.DoctorID,
		PatientID:     r.PatientID,
		AppointmentID: r.AppointmentID,
		Rating:        r.Rating,
		Comment:       r.Comment,
		CreatedAt:     r.CreatedAt,
	}
}
