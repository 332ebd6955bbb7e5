package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hackgods/clinic-booking/internal/actor"
	"github.com/hackgods/clinic-booking/internal/appointment"
)

// handlers serves the routes behind the domain service.
type handlers struct {
	svc *appointment.Service
	log *slog.Logger
}

func (h *handlers) publishSlot() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		who := mustActor(r)

		var req PublishSlotRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		slot, err := h.svc.Slots.Publish(r.Context(), who, req.StartTime, req.EndTime)
		if err != nil {
			h.handleError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, toSlotResponse(*slot))
	}
}

func (h *handlers) withdrawSlot() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id", "invalid_slot_id")
		if !ok {
			return
		}

		slot, err := h.svc.Slots.Withdraw(r.Context(), mustActor(r), id)
		if err != nil {
			h.handleError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toSlotResponse(*slot))
	}
}

func (h *handlers) listSlots() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var doctorID *uuid.UUID
		if raw := r.URL.Query().Get("doctor_id"); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
				return
			}
			doctorID = &id
		}

		slots, err := h.svc.Slots.ListSlots(r.Context(), mustActor(r), doctorID)
		if err != nil {
			h.handleError(w, r, err)
			return
		}

		resp := make([]SlotResponse, 0, len(slots))
		for _, s := range slots {
			resp = append(resp, toSlotResponse(s))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func (h *handlers) bookAppointment() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BookAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		slotID, err := uuid.Parse(req.SlotID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_slot_id", "slot_id must be a valid UUID")
			return
		}

		appt, err := h.svc.Booking.Book(r.Context(), mustActor(r), slotID, req.Reason)
		if err != nil {
			h.handleError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(*appt))
	}
}

func (h *handlers) cancelAppointment() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id", "invalid_appointment_id")
		if !ok {
			return
		}

		appt, err := h.svc.Booking.Cancel(r.Context(), mustActor(r), id)
		if err != nil {
			h.handleError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(*appt))
	}
}

func (h *handlers) completeAppointment() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id", "invalid_appointment_id")
		if !ok {
			return
		}

		appt, err := h.svc.Booking.Complete(r.Context(), mustActor(r), id)
		if err != nil {
			h.handleError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(*appt))
	}
}

func (h *handlers) getAppointment() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id", "invalid_appointment_id")
		if !ok {
			return
		}

		detail, err := h.svc.Dashboard.Get(r.Context(), mustActor(r), id)
		if err != nil {
			h.handleError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toDetailResponse(*detail))
	}
}

func (h *handlers) upcoming() http.HandlerFunc {
	return h.dashboard(h.svc.Dashboard.Upcoming)
}

func (h *handlers) history() http.HandlerFunc {
	return h.dashboard(h.svc.Dashboard.History)
}

func (h *handlers) dashboard(list func(ctx context.Context, who actor.Actor) ([]appointment.AppointmentDetail, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items, err := list(r.Context(), mustActor(r))
		if err != nil {
			h.handleError(w, r, err)
			return
		}

		resp := make([]AppointmentResponse, 0, len(items))
		for _, d := range items {
			resp = append(resp, toDetailResponse(d))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func (h *handlers) submitRating() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SubmitRatingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		apptID, err := uuid.Parse(req.AppointmentID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "appointment_id must be a valid UUID")
			return
		}

		rating, err := h.svc.Ratings.Submit(r.Context(), mustActor(r), apptID, req.Rating, req.Comment)
		if err != nil {
			h.handleError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, toRatingResponse(*rating))
	}
}

func (h *handlers) listDoctors() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctors, err := h.svc.Directory.ListDoctors(r.Context(), r.URL.Query().Get("specialty"))
		if err != nil {
			h.handleError(w, r, err)
			return
		}

		resp := make([]DoctorResponse, 0, len(doctors))
		for _, d := range doctors {
			resp = append(resp, toDoctorResponse(d))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func (h *handlers) doctorProfile() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id", "invalid_doctor_id")
		if !ok {
			return
		}

		doc, err := h.svc.Directory.DoctorProfile(r.Context(), id)
		if err != nil {
			h.handleError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toDoctorResponse(*doc))
	}
}

func (h *handlers) doctorRatings() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id", "invalid_doctor_id")
		if !ok {
			return
		}

		ratings, err := h.svc.Directory.RatingsForDoctor(r.Context(), id)
		if err != nil {
			h.handleError(w, r, err)
			return
		}

		resp := make([]RatingResponse, 0, len(ratings))
		for _, rt := range ratings {
			resp = append(resp, toRatingResponse(rt))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// handleError maps the domain error taxonomy onto HTTP status codes.
func (h *handlers) handleError(w http.ResponseWriter, r *http.Request, err error) {
	code := appointment.Outcome(err)
	switch {
	case errors.Is(err, appointment.ErrInvalidRange),
		errors.Is(err, appointment.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, code, err.Error())
	case errors.Is(err, appointment.ErrForbidden):
		writeError(w, http.StatusForbidden, code, err.Error())
	case errors.Is(err, appointment.ErrNotFound):
		writeError(w, http.StatusNotFound, code, err.Error())
	case errors.Is(err, appointment.ErrSlotUnavailable),
		errors.Is(err, appointment.ErrAlreadyCanceled),
		errors.Is(err, appointment.ErrNotBooked),
		errors.Is(err, appointment.ErrConflict),
		errors.Is(err, appointment.ErrInvalidState):
		writeError(w, http.StatusConflict, code, err.Error())
	default:
		h.log.ErrorContext(r.Context(), "request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", GetRequestID(r.Context()),
			"err", err,
		)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func uuidParam(w http.ResponseWriter, r *http.Request, name, code string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, code, name+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

// mustActor is only called behind ActorMiddleware.
func mustActor(r *http.Request) actor.Actor {
	a, _ := ActorFrom(r.Context())
	return a
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}
