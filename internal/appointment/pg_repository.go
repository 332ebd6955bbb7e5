package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"

	liveSlotIndex     = "appointments_live_slot_uniq"
	ratingUniqueIndex = "doctor_ratings_patient_appointment_uniq"
)

const (
	doctorColumns      = `id, name, specialty, experience_years, consultation_price, available_for_online, average_rating, rating_count, created_at, updated_at`
	patientColumns     = `id, name, email, created_at, updated_at`
	slotColumns        = `id, doctor_id, start_time, end_time, status, created_at, updated_at`
	appointmentColumns = `id, doctor_id, patient_id, slot_id, status, reason, created_at, updated_at`
	ratingColumns      = `id, doctor_id, patient_id, appointment_id, rating, comment, created_at`
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PgRepository struct {
	pool *pgxpool.Pool
	db   querier
	inTx bool
}

var _ Store = (*PgRepository)(nil)

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool, db: pool}
}

func (r *PgRepository) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Repository) error) error {
	if r.inTx {
		return fn(ctx, r)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		// no-op once committed
		_ = tx.Rollback(context.WithoutCancel(ctx))
	}()

	if err := fn(ctx, &PgRepository{pool: r.pool, db: tx, inTx: true}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Helpers

func pgErrCode(err error) (code, constraint string) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code, pgErr.ConstraintName
	}
	return "", ""
}

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	err := row.Scan(
		&d.ID,
		&d.Name,
		&d.Specialty,
		&d.ExperienceYears,
		&d.ConsultationPrice,
		&d.AvailableForOnline,
		&d.AverageRating,
		&d.RatingCount,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}
	return &d, nil
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Email,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}
	return &p, nil
}

func scanSlot(row pgx.Row) (*TimeSlot, error) {
	var s TimeSlot
	err := row.Scan(
		&s.ID,
		&s.DoctorID,
		&s.StartTime,
		&s.EndTime,
		&s.Status,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, err
	}
	return &s, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(
		&a.ID,
		&a.DoctorID,
		&a.PatientID,
		&a.SlotID,
		&a.Status,
		&a.Reason,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}
	return &a, nil
}

func scanRating(row pgx.Row) (*DoctorRating, error) {
	var r DoctorRating
	err := row.Scan(
		&r.ID,
		&r.DoctorID,
		&r.PatientID,
		&r.AppointmentID,
		&r.Rating,
		&r.Comment,
		&r.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// Doctors

func (r *PgRepository) CreateDoctor(ctx context.Context, d NewDoctor) (*Doctor, error) {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}

	row := r.db.QueryRow(ctx, `
		INSERT INTO doctors (id, name, specialty, experience_years, consultation_price, available_for_online, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now(), now())
		RETURNING `+doctorColumns,
		d.ID, d.Name, d.Specialty, d.ExperienceYears, d.ConsultationPrice, d.AvailableForOnline)

	doc, err := scanDoctor(row)
	if err != nil {
		if code, _ := pgErrCode(err); code == pgUniqueViolation {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("insert doctor: %w", err)
	}
	return doc, nil
}

func (r *PgRepository) GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	row := r.db.QueryRow(ctx, `SELECT `+doctorColumns+` FROM doctors WHERE id = $1`, id)
	return scanDoctor(row)
}

func (r *PgRepository) LockDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	row := r.db.QueryRow(ctx, `SELECT `+doctorColumns+` FROM doctors WHERE id = $1 FOR UPDATE`, id)
	return scanDoctor(row)
}

func (r *PgRepository) ListDoctors(ctx context.Context, specialty string) ([]Doctor, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+doctorColumns+`
		FROM doctors
		WHERE $1 = '' OR lower(specialty) = lower($1)
		ORDER BY name, id
	`, specialty)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Doctor
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *d)
	}
	return result, rows.Err()
}

func (r *PgRepository) UpdateDoctorRating(ctx context.Context, id uuid.UUID, average float64, count int) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE doctors
		SET average_rating = $2,
		    rating_count = $3,
		    updated_at = now()
		WHERE id = $1
	`, id, average, count)
	if err != nil {
		return fmt.Errorf("update doctor rating: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDoctorNotFound
	}
	return nil
}

// Patients

func (r *PgRepository) CreatePatient(ctx context.Context, p NewPatient) (*Patient, error) {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}

	row := r.db.QueryRow(ctx, `
		INSERT INTO patients (id, name, email, created_at, updated_at)
		VALUES ($1, $2, $3, now(), now())
		RETURNING `+patientColumns,
		p.ID, p.Name, p.Email)

	pat, err := scanPatient(row)
	if err != nil {
		if code, _ := pgErrCode(err); code == pgUniqueViolation {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("insert patient: %w", err)
	}
	return pat, nil
}

func (r *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.db.QueryRow(ctx, `SELECT `+patientColumns+` FROM patients WHERE id = $1`, id)
	return scanPatient(row)
}

// Slots

func (r *PgRepository) CreateSlot(ctx context.Context, s NewSlot) (*TimeSlot, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO time_slots (id, doctor_id, start_time, end_time, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 'AVAILABLE', now(), now())
		RETURNING `+slotColumns,
		uuid.New(), s.DoctorID, s.StartTime, s.EndTime)

	slot, err := scanSlot(row)
	if err != nil {
		if code, _ := pgErrCode(err); code == pgForeignKeyViolation {
			return nil, ErrDoctorNotFound
		}
		return nil, fmt.Errorf("insert slot: %w", err)
	}
	return slot, nil
}

func (r *PgRepository) GetSlotByID(ctx context.Context, id uuid.UUID) (*TimeSlot, error) {
	row := r.db.QueryRow(ctx, `SELECT `+slotColumns+` FROM time_slots WHERE id = $1`, id)
	return scanSlot(row)
}

func (r *PgRepository) UpdateSlotStatus(ctx context.Context, id uuid.UUID, from, to SlotStatus) (*TimeSlot, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE time_slots
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+slotColumns,
		id, to, from)

	slot, err := scanSlot(row)
	if errors.Is(err, ErrSlotNotFound) {
		return nil, ErrNoTransition
	}
	return slot, err
}

func (r *PgRepository) ListSlots(ctx context.Context, f SlotFilter) ([]TimeSlot, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.DoctorID != nil {
		add("doctor_id = $%d", *f.DoctorID)
	}
	if f.Status != nil {
		add("status = $%d", *f.Status)
	}
	if f.StartFrom != nil {
		add("start_time >= $%d", *f.StartFrom)
	}

	q := `SELECT ` + slotColumns + ` FROM time_slots`
	if len(conds) > 0 {
		q += ` WHERE ` + strings.Join(conds, " AND ")
	}
	q += ` ORDER BY start_time, id`

	rows, err := r.db.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []TimeSlot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}
	return result, rows.Err()
}

// Appointments

func (r *PgRepository) CreateAppointment(ctx context.Context, a NewAppointment) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO appointments (id, doctor_id, patient_id, slot_id, status, reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 'SCHEDULED', $5, now(), now())
		RETURNING `+appointmentColumns,
		uuid.New(), a.DoctorID, a.PatientID, a.SlotID, a.Reason)

	appt, err := scanAppointment(row)
	if err != nil {
		code, constraint := pgErrCode(err)
		switch {
		case code == pgUniqueViolation && constraint == liveSlotIndex:
			return nil, ErrSlotUnavailable
		case code == pgForeignKeyViolation && constraint == "appointments_patient_id_fkey":
			return nil, ErrPatientNotFound
		case code == pgForeignKeyViolation && constraint == "appointments_slot_id_fkey":
			return nil, ErrSlotNotFound
		}
		return nil, fmt.Errorf("insert appointment: %w", err)
	}
	return appt, nil
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id)
	return scanAppointment(row)
}

func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+appointmentColumns,
		id, to, from)

	appt, err := scanAppointment(row)
	if errors.Is(err, ErrAppointmentNotFound) {
		return nil, ErrNoTransition
	}
	return appt, err
}

func (r *PgRepository) ListAppointments(ctx context.Context, f AppointmentFilter) ([]AppointmentDetail, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.DoctorID != nil {
		add("a.doctor_id = $%d", *f.DoctorID)
	}
	if f.PatientID != nil {
		add("a.patient_id = $%d", *f.PatientID)
	}
	if f.Status != nil {
		add("a.status = $%d", *f.Status)
	}
	if f.StartFrom != nil {
		add("s.start_time >= $%d", *f.StartFrom)
	}
	if f.StartBefore != nil {
		add("s.start_time < $%d", *f.StartBefore)
	}
	if f.EndBy != nil {
		add("s.end_time <= $%d", *f.EndBy)
	}

	q := `
		SELECT a.id, a.doctor_id, a.patient_id, a.slot_id, a.status, a.reason, a.created_at, a.updated_at,
		       s.id, s.doctor_id, s.start_time, s.end_time, s.status, s.created_at, s.updated_at
		FROM appointments a
		JOIN time_slots s ON s.id = a.slot_id`
	if len(conds) > 0 {
		q += ` WHERE ` + strings.Join(conds, " AND ")
	}
	if f.Order == Descending {
		q += ` ORDER BY s.start_time DESC, a.id`
	} else {
		q += ` ORDER BY s.start_time ASC, a.id`
	}
	if f.Limit > 0 {
		args = append(args, f.Limit)
		q += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := r.db.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []AppointmentDetail
	for rows.Next() {
		var d AppointmentDetail
		if err := rows.Scan(
			&d.ID, &d.DoctorID, &d.PatientID, &d.SlotID, &d.Status, &d.Reason, &d.CreatedAt, &d.UpdatedAt,
			&d.Slot.ID, &d.Slot.DoctorID, &d.Slot.StartTime, &d.Slot.EndTime, &d.Slot.Status, &d.Slot.CreatedAt, &d.Slot.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, d)
	}
	return result, rows.Err()
}

// Ratings

func (r *PgRepository) CreateRating(ctx context.Context, nr NewRating) (*DoctorRating, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO doctor_ratings (id, doctor_id, patient_id, appointment_id, rating, comment, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		RETURNING `+ratingColumns,
		uuid.New(), nr.DoctorID, nr.PatientID, nr.AppointmentID, nr.Rating, nr.Comment)

	rating, err := scanRating(row)
	if err != nil {
		if code, constraint := pgErrCode(err); code == pgUniqueViolation && constraint == ratingUniqueIndex {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("insert rating: %w", err)
	}
	return rating, nil
}

func (r *PgRepository) RatingExists(ctx context.Context, patientID, appointmentID uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM doctor_ratings
			WHERE patient_id = $1 AND appointment_id = $2
		)
	`, patientID, appointmentID).Scan(&exists)
	return exists, err
}

func (r *PgRepository) ListRatingValues(ctx context.Context, doctorID uuid.UUID) ([]int, error) {
	rows, err := r.db.Query(ctx, `SELECT rating FROM doctor_ratings WHERE doctor_id = $1`, doctorID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int])
}

func (r *PgRepository) ListRatingsByDoctor(ctx context.Context, doctorID uuid.UUID) ([]DoctorRating, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+ratingColumns+`
		FROM doctor_ratings
		WHERE doctor_id = $1
		ORDER BY created_at DESC, id
	`, doctorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []DoctorRating
	for rows.Next() {
		rt, err := scanRating(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *rt)
	}
	return result, rows.Err()
}

// Event log

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
