package appointment

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-booking/internal/actor"
)

func appointmentIDs(list []AppointmentDetail) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(list))
	for _, a := range list {
		ids = append(ids, a.ID)
	}
	return ids
}

func TestDashboardWindows(t *testing.T) {
	f := newFixture(t)
	doc := f.doctor(t)
	pat := f.patient(t)
	other := f.patient(t)

	book := func(p actor.Actor, offset time.Duration) *Appointment {
		t.Helper()
		a, err := f.svc.Booking.Book(f.ctx, p, f.slotAt(t, doc, offset).ID, "")
		require.NoError(t, err)
		return a
	}

	// booked while all of them were still ahead
	pastOld := book(pat, time.Hour)
	pastRecent := book(pat, 3*time.Hour)
	pastCanceled := book(pat, 2*time.Hour)
	_, err := f.svc.Booking.Cancel(f.ctx, pat, pastCanceled.ID)
	require.NoError(t, err)

	f.clock.Advance(5 * time.Hour)

	soon := book(pat, time.Hour)
	later := book(pat, 48*time.Hour)
	futureCanceled := book(pat, 24*time.Hour)
	_, err = f.svc.Booking.Cancel(f.ctx, pat, futureCanceled.ID)
	require.NoError(t, err)
	othersAppt := book(other, 2*time.Hour)

	t.Run("patient upcoming", func(t *testing.T) {
		list, err := f.svc.Dashboard.Upcoming(f.ctx, pat)
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{soon.ID, later.ID}, appointmentIDs(list))
		for _, a := range list {
			assert.Equal(t, a.SlotID, a.Slot.ID)
		}
	})

	t.Run("patient history", func(t *testing.T) {
		list, err := f.svc.Dashboard.History(f.ctx, pat)
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{pastRecent.ID, pastCanceled.ID, pastOld.ID}, appointmentIDs(list))
	})

	t.Run("doctor upcoming", func(t *testing.T) {
		list, err := f.svc.Dashboard.Upcoming(f.ctx, doc)
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{soon.ID, othersAppt.ID, later.ID}, appointmentIDs(list))
	})

	t.Run("other patient sees only their own", func(t *testing.T) {
		list, err := f.svc.Dashboard.Upcoming(f.ctx, other)
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{othersAppt.ID}, appointmentIDs(list))

		list, err = f.svc.Dashboard.History(f.ctx, other)
		require.NoError(t, err)
		assert.Empty(t, list)
	})

	t.Run("admin has no dashboard", func(t *testing.T) {
		_, err := f.svc.Dashboard.Upcoming(f.ctx, actor.Admin(uuid.New()))
		assert.ErrorIs(t, err, ErrForbidden)
		_, err = f.svc.Dashboard.History(f.ctx, actor.Admin(uuid.New()))
		assert.ErrorIs(t, err, ErrForbidden)
	})
}

func TestDashboardGet(t *testing.T) {
	f := newFixture(t)
	doc := f.doctor(t)
	pat := f.patient(t)
	stranger := f.patient(t)

	appt, err := f.svc.Booking.Book(f.ctx, pat, f.slotAt(t, doc, time.Hour).ID, "check-up")
	require.NoError(t, err)

	for _, who := range []actor.Actor{pat, doc, actor.Admin(uuid.New())} {
		got, err := f.svc.Dashboard.Get(f.ctx, who, appt.ID)
		require.NoError(t, err)
		assert.Equal(t, appt.ID, got.ID)
		assert.Equal(t, SlotBooked, got.Slot.Status)
	}

	_, err = f.svc.Dashboard.Get(f.ctx, stranger, appt.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.Dashboard.Get(f.ctx, pat, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDirectory(t *testing.T) {
	f := newFixture(t)
	price := int64(450000)

	cardio, err := f.svc.Directory.RegisterDoctor(f.ctx, NewDoctor{Name: "Dr. Zed", Specialty: "Cardiology", ConsultationPrice: &price, AvailableForOnline: true})
	require.NoError(t, err)
	_, err = f.svc.Directory.RegisterDoctor(f.ctx, NewDoctor{Name: "Dr. Amy", Specialty: "Dermatology"})
	require.NoError(t, err)
	cardio2, err := f.svc.Directory.RegisterDoctor(f.ctx, NewDoctor{Name: "Dr. Bo", Specialty: "cardiology"})
	require.NoError(t, err)

	bad := 61
	_, err = f.svc.Directory.RegisterDoctor(f.ctx, NewDoctor{Name: "Dr. Old", Specialty: "Surgery", ExperienceYears: &bad})
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = f.svc.Directory.RegisterDoctor(f.ctx, NewDoctor{Name: " ", Specialty: "Surgery"})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	all, err := f.svc.Directory.ListDoctors(f.ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "Dr. Amy", all[0].Name)

	list, err := f.svc.Directory.ListDoctors(f.ctx, "CARDIOLOGY")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, cardio2.ID, list[0].ID)
	assert.Equal(t, cardio.ID, list[1].ID)

	profile, err := f.svc.Directory.DoctorProfile(f.ctx, cardio.ID)
	require.NoError(t, err)
	assert.True(t, profile.AvailableForOnline)
	require.NotNil(t, profile.ConsultationPrice)
	assert.Equal(t, price, *profile.ConsultationPrice)
	assert.Zero(t, profile.AverageRating)

	_, err = f.svc.Directory.DoctorProfile(f.ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.svc.Directory.RatingsForDoctor(f.ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRatingsForDoctorNewestFirst(t *testing.T) {
	f := newFixture(t)
	doc := f.doctor(t)

	var want []uuid.UUID
	for _, v := range []int{3, 5, 4} {
		pat := f.patient(t)
		r, err := f.svc.Ratings.Submit(f.ctx, pat, f.completed(t, doc, pat).ID, v, "")
		require.NoError(t, err)
		want = append([]uuid.UUID{r.ID}, want...)
		f.clock.Advance(time.Minute)
	}

	got, err := f.svc.Directory.RatingsForDoctor(f.ctx, doc.ID)
	require.NoError(t, err)
	ids := make([]uuid.UUID, 0, len(got))
	for _, r := range got {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, want, ids)
}
