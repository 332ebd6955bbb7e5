package appointment

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-booking/internal/clock"
)

// MemoryRepository keeps everything in process. Transactions are serialized and work on a copy of the
// state that replaces the committed state only when fn succeeds, so a failed unit leaves no trace.
// It backs the tests and local runs without Postgres.
type MemoryRepository struct {
	memView
	mu    sync.Mutex
	clock clock.Clock
}

var _ Store = (*MemoryRepository)(nil)

type memState struct {
	doctors      map[uuid.UUID]Doctor
	patients     map[uuid.UUID]Patient
	slots        map[uuid.UUID]TimeSlot
	appointments map[uuid.UUID]Appointment
	ratings      []DoctorRating
	events       []EventLog
}

func NewMemoryRepository(c clock.Clock) *MemoryRepository {
	if c == nil {
		c = clock.System(time.UTC)
	}
	r := &MemoryRepository{clock: c}
	r.memView = memView{
		st: &memState{
			doctors:      make(map[uuid.UUID]Doctor),
			patients:     make(map[uuid.UUID]Patient),
			slots:        make(map[uuid.UUID]TimeSlot),
			appointments: make(map[uuid.UUID]Appointment),
		},
		mu:    &r.mu,
		clock: c,
	}
	return r
}

func (r *MemoryRepository) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Repository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	work := r.st.clone()
	if err := fn(ctx, &memView{st: work, clock: r.clock}); err != nil {
		return err
	}
	*r.st = *work
	return nil
}

// Events returns a copy of the audit log.
func (r *MemoryRepository) Events() []EventLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]EventLog(nil), r.st.events...)
}

func (s *memState) clone() *memState {
	c := &memState{
		doctors:      make(map[uuid.UUID]Doctor, len(s.doctors)),
		patients:     make(map[uuid.UUID]Patient, len(s.patients)),
		slots:        make(map[uuid.UUID]TimeSlot, len(s.slots)),
		appointments: make(map[uuid.UUID]Appointment, len(s.appointments)),
		ratings:      append([]DoctorRating(nil), s.ratings...),
		events:       append([]EventLog(nil), s.events...),
	}
	for k, v := range s.doctors {
		c.doctors[k] = v
	}
	for k, v := range s.patients {
		c.patients[k] = v
	}
	for k, v := range s.slots {
		c.slots[k] = v
	}
	for k, v := range s.appointments {
		c.appointments[k] = v
	}
	return c
}

// memView implements Repository over one state. mu is nil inside a transaction, where the
// repository lock is already held.
type memView struct {
	st    *memState
	mu    *sync.Mutex
	clock clock.Clock
}

func (v *memView) lock() func() {
	if v.mu == nil {
		return func() {}
	}
	v.mu.Lock()
	return v.mu.Unlock
}

func (v *memView) CreateDoctor(_ context.Context, d NewDoctor) (*Doctor, error) {
	defer v.lock()()

	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if _, ok := v.st.doctors[d.ID]; ok {
		return nil, ErrConflict
	}
	now := v.clock.Now()
	doc := Doctor{
		ID:                 d.ID,
		Name:               d.Name,
		Specialty:          d.Specialty,
		ExperienceYears:    d.ExperienceYears,
		ConsultationPrice:  d.ConsultationPrice,
		AvailableForOnline: d.AvailableForOnline,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	v.st.doctors[doc.ID] = doc
	return &doc, nil
}

func (v *memView) GetDoctorByID(_ context.Context, id uuid.UUID) (*Doctor, error) {
	defer v.lock()()

	d, ok := v.st.doctors[id]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	return &d, nil
}

func (v *memView) LockDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	// transactions are already serialized
	return v.GetDoctorByID(ctx, id)
}

func (v *memView) ListDoctors(_ context.Context, specialty string) ([]Doctor, error) {
	defer v.lock()()

	var out []Doctor
	for _, d := range v.st.doctors {
		if specialty != "" && !strings.EqualFold(d.Specialty, specialty) {
			continue
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (v *memView) UpdateDoctorRating(_ context.Context, id uuid.UUID, average float64, count int) error {
	defer v.lock()()

	d, ok := v.st.doctors[id]
	if !ok {
		return ErrDoctorNotFound
	}
	d.AverageRating = average
	d.RatingCount = count
	d.UpdatedAt = v.clock.Now()
	v.st.doctors[id] = d
	return nil
}

func (v *memView) CreatePatient(_ context.Context, p NewPatient) (*Patient, error) {
	defer v.lock()()

	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if _, ok := v.st.patients[p.ID]; ok {
		return nil, ErrConflict
	}
	now := v.clock.Now()
	pat := Patient{ID: p.ID, Name: p.Name, Email: p.Email, CreatedAt: now, UpdatedAt: now}
	v.st.patients[pat.ID] = pat
	return &pat, nil
}

func (v *memView) GetPatientByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	defer v.lock()()

	p, ok := v.st.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	return &p, nil
}

func (v *memView) CreateSlot(_ context.Context, s NewSlot) (*TimeSlot, error) {
	defer v.lock()()

	if _, ok := v.st.doctors[s.DoctorID]; !ok {
		return nil, ErrDoctorNotFound
	}
	now := v.clock.Now()
	slot := TimeSlot{
		ID:        uuid.New(),
		DoctorID:  s.DoctorID,
		StartTime: s.StartTime,
		EndTime:   s.EndTime,
		Status:    SlotAvailable,
		CreatedAt: now,
		UpdatedAt: now,
	}
	v.st.slots[slot.ID] = slot
	return &slot, nil
}

func (v *memView) GetSlotByID(_ context.Context, id uuid.UUID) (*TimeSlot, error) {
	defer v.lock()()

	s, ok := v.st.slots[id]
	if !ok {
		return nil, ErrSlotNotFound
	}
	return &s, nil
}

func (v *memView) UpdateSlotStatus(_ context.Context, id uuid.UUID, from, to SlotStatus) (*TimeSlot, error) {
	defer v.lock()()

	s, ok := v.st.slots[id]
	if !ok || s.Status != from {
		return nil, ErrNoTransition
	}
	s.Status = to
	s.UpdatedAt = v.clock.Now()
	v.st.slots[id] = s
	return &s, nil
}

func (v *memView) ListSlots(_ context.Context, f SlotFilter) ([]TimeSlot, error) {
	defer v.lock()()

	var out []TimeSlot
	for _, s := range v.st.slots {
		if f.DoctorID != nil && s.DoctorID != *f.DoctorID {
			continue
		}
		if f.Status != nil && s.Status != *f.Status {
			continue
		}
		if f.StartFrom != nil && s.StartTime.Before(*f.StartFrom) {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].StartTime.Before(out[j].StartTime)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (v *memView) CreateAppointment(_ context.Context, a NewAppointment) (*Appointment, error) {
	defer v.lock()()

	if _, ok := v.st.slots[a.SlotID]; !ok {
		return nil, ErrSlotNotFound
	}
	if _, ok := v.st.patients[a.PatientID]; !ok {
		return nil, ErrPatientNotFound
	}
	for _, existing := range v.st.appointments {
		if existing.SlotID == a.SlotID && existing.Status != StatusCanceled {
			return nil, ErrSlotUnavailable
		}
	}

	now := v.clock.Now()
	appt := Appointment{
		ID:        uuid.New(),
		DoctorID:  a.DoctorID,
		PatientID: a.PatientID,
		SlotID:    a.SlotID,
		Status:    StatusScheduled,
		Reason:    a.Reason,
		CreatedAt: now,
		UpdatedAt: now,
	}
	v.st.appointments[appt.ID] = appt
	return &appt, nil
}

func (v *memView) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	defer v.lock()()

	a, ok := v.st.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

func (v *memView) UpdateAppointmentStatus(_ context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error) {
	defer v.lock()()

	a, ok := v.st.appointments[id]
	if !ok || a.Status != from {
		return nil, ErrNoTransition
	}
	a.Status = to
	a.UpdatedAt = v.clock.Now()
	v.st.appointments[id] = a
	return &a, nil
}

func (v *memView) ListAppointments(_ context.Context, f AppointmentFilter) ([]AppointmentDetail, error) {
	defer v.lock()()

	var out []AppointmentDetail
	for _, a := range v.st.appointments {
		if f.DoctorID != nil && a.DoctorID != *f.DoctorID {
			continue
		}
		if f.PatientID != nil && a.PatientID != *f.PatientID {
			continue
		}
		if f.Status != nil && a.Status != *f.Status {
			continue
		}
		s := v.st.slots[a.SlotID]
		if f.StartFrom != nil && s.StartTime.Before(*f.StartFrom) {
			continue
		}
		if f.StartBefore != nil && !s.StartTime.Before(*f.StartBefore) {
			continue
		}
		if f.EndBy != nil && s.EndTime.After(*f.EndBy) {
			continue
		}
		out = append(out, AppointmentDetail{Appointment: a, Slot: s})
	}

	sort.Slice(out, func(i, j int) bool {
		si, sj := out[i].Slot.StartTime, out[j].Slot.StartTime
		if si.Equal(sj) {
			return out[i].ID.String() < out[j].ID.String()
		}
		if f.Order == Descending {
			return si.After(sj)
		}
		return si.Before(sj)
	})

	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (v *memView) CreateRating(_ context.Context, r NewRating) (*DoctorRating, error) {
	defer v.lock()()

	for _, existing := range v.st.ratings {
		if existing.PatientID == r.PatientID && existing.AppointmentID != nil && *existing.AppointmentID == r.AppointmentID {
			return nil, ErrConflict
		}
	}

	apptID := r.AppointmentID
	rating := DoctorRating{
		ID:            uuid.New(),
		DoctorID:      r.DoctorID,
		PatientID:     r.PatientID,
		AppointmentID: &apptID,
		Rating:        r.Rating,
		Comment:       r.Comment,
		CreatedAt:     v.clock.Now(),
	}
	v.st.ratings = append(v.st.ratings, rating)
	return &rating, nil
}

func (v *memView) RatingExists(_ context.Context, patientID, appointmentID uuid.UUID) (bool, error) {
	defer v.lock()()

	for _, r := range v.st.ratings {
		if r.PatientID == patientID && r.AppointmentID != nil && *r.AppointmentID == appointmentID {
			return true, nil
		}
	}
	return false, nil
}

func (v *memView) ListRatingValues(_ context.Context, doctorID uuid.UUID) ([]int, error) {
	defer v.lock()()

	var out []int
	for _, r := range v.st.ratings {
		if r.DoctorID == doctorID {
			out = append(out, r.Rating)
		}
	}
	return out, nil
}

func (v *memView) ListRatingsByDoctor(_ context.Context, doctorID uuid.UUID) ([]DoctorRating, error) {
	defer v.lock()()

	var out []DoctorRating
	for _, r := range v.st.ratings {
		if r.DoctorID == doctorID {
			out = append(out, r)
		}
	}
	// newest first; ratings are appended in creation order
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (v *memView) InsertEvent(_ context.Context, ev EventLog) error {
	defer v.lock()()

	ev.ID = int64(len(v.st.events) + 1)
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = v.clock.Now()
	}
	v.st.events = append(v.st.events, ev)
	return nil
}
