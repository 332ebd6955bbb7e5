package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"

	"github.com/hackgods/clinic-booking/internal/actor"
	"github.com/hackgods/clinic-booking/internal/appointment"
	"github.com/hackgods/clinic-booking/internal/clock"
	"github.com/hackgods/clinic-booking/internal/config"
	"github.com/hackgods/clinic-booking/internal/db"
	"github.com/hackgods/clinic-booking/internal/logs"
)

var specialties = []string{
	"Dermatology",
	"Cardiology",
	"General Practice",
	"Orthopedics",
	"Endocrinology",
	"Neurology",
	"Pediatrics",
	"Psychiatry",
	"Ophthalmology",
	"ENT",
}

func main() {
	doctors := flag.Int("doctors", 100, "number of doctors to create")
	patients := flag.Int("patients", 9000, "number of patients to create")
	slotsPerDoctor := flag.Int("slots", 16, "open slots published per doctor")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load error", "err", err)
		os.Exit(1)
	}
	log := logs.New(cfg, "seed")
	log.Info("seed starting")

	ctx := context.Background()

	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	pool, err := db.ConnectPostgres(connCtx, cfg.PostgresDSN, cfg.PostgresConns)
	if err == nil {
		err = db.Migrate(connCtx, pool)
	}
	cancel()
	if err != nil {
		log.Error("prepare postgres", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	// Seeding is bulk work; keep notifications and metrics out of it.
	svc := appointment.NewService(appointment.NewPgRepository(pool), appointment.Options{
		Clock:  clock.System(cfg.Location()),
		Logger: log,
	})

	if err := seedDoctors(ctx, log, svc, *doctors, *slotsPerDoctor, time.Now()); err != nil {
		log.Error("seed doctors", "err", err)
		os.Exit(1)
	}
	if err := seedPatients(ctx, log, svc, *patients); err != nil {
		log.Error("seed patients", "err", err)
		os.Exit(1)
	}

	log.Info("seed complete")
}

func seedDoctors(ctx context.Context, log *slog.Logger, svc *appointment.Service, count, slots int, now time.Time) error {
	log.Info("seeding doctors", "count", count, "slots_per_doctor", slots)

	// First slot starts at the next full hour tomorrow.
	base := now.Truncate(time.Hour).Add(24 * time.Hour)

	for i := 0; i < count; i++ {
		years := gofakeit.Number(1, 40)
		price := int64(gofakeit.Number(40, 300)) * 100

		doc, err := svc.Directory.RegisterDoctor(ctx, appointment.NewDoctor{
			Name:               "Dr. " + gofakeit.Name(),
			Specialty:          specialties[gofakeit.Number(0, len(specialties)-1)],
			ExperienceYears:    &years,
			ConsultationPrice:  &price,
			AvailableForOnline: gofakeit.Bool(),
		})
		if err != nil {
			return err
		}

		who := actor.Doctor(doc.ID)
		for s := 0; s < slots; s++ {
			start := base.Add(time.Duration(s) * 30 * time.Minute)
			if _, err := svc.Slots.Publish(ctx, who, start, start.Add(30*time.Minute)); err != nil {
				return err
			}
		}
	}

	log.Info("doctors seeded")
	return nil
}

func seedPatients(ctx context.Context, log *slog.Logger, svc *appointment.Service, count int) error {
	log.Info("seeding patients", "count", count)

	const logEvery = 500

	for i := 0; i < count; i++ {
		email := gofakeit.Email()
		_, err := svc.Directory.RegisterPatient(ctx, appointment.NewPatient{
			Name:  gofakeit.Name(),
			Email: &email,
		})
		if err != nil {
			return err
		}
		if (i+1)%logEvery == 0 {
			log.Info("patients seeded", "done", i+1, "total", count)
		}
	}

	log.Info("patients seeded")
	return nil
}
