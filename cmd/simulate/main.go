package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/clinic-booking/internal/actor"
	"github.com/hackgods/clinic-booking/internal/api"
	"github.com/hackgods/clinic-booking/internal/config"
	"github.com/hackgods/clinic-booking/internal/db"
	"github.com/hackgods/clinic-booking/internal/logs"
)

type SimConfig struct {
	APIBaseURL   string
	Duration     time.Duration
	Workers      int
	BookingRatio float64
	CancelRatio  float64
	RatingRatio  float64
	ReadRatio    float64
	PatientLimit int
	SlotLimit    int
	PostgresDSN  string
	PostgresSize int32
	JWTSecret    string
}

type slotRef struct {
	ID       uuid.UUID
	DoctorID uuid.UUID
}

type booked struct {
	ID        uuid.UUID
	DoctorID  uuid.UUID
	PatientID uuid.UUID
}

// DataPool holds the ids the workers pick from, plus the appointments they created.
type DataPool struct {
	Patients []uuid.UUID
	Slots    []slotRef

	mu           sync.Mutex
	appointments []booked
}

func (dp *DataPool) AddAppointment(b booked) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, b)
}

// TakeAppointment removes and returns a random tracked appointment.
func (dp *DataPool) TakeAppointment(rng *rand.Rand) (booked, bool) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	if len(dp.appointments) == 0 {
		return booked{}, false
	}
	idx := rng.Intn(len(dp.appointments))
	b := dp.appointments[idx]
	last := len(dp.appointments) - 1
	dp.appointments[idx] = dp.appointments[last]
	dp.appointments = dp.appointments[:last]
	return b, true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, status int, err error) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case err == nil && status >= 200 && status < 300:
		atomic.AddInt64(&om.Success, 1)
	case err == nil && status == http.StatusConflict:
		atomic.AddInt64(&om.Conflict, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, min, max, p50, p95 time.Duration) {
	om.mu.Lock()
	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	om.mu.Unlock()

	if len(latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	sort.Slice(latencies, func(i, j int) bool {
		return latencies[i] < latencies[j]
	})

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	min = latencies[0]
	max = latencies[len(latencies)-1]
	p50 = latencies[percentileIndex(len(latencies), 50)]
	p95 = latencies[percentileIndex(len(latencies), 95)]
	return avg, min, max, p50, p95
}

func percentileIndex(n, pct int) int {
	idx := n * pct / 100
	if idx >= n {
		idx = n - 1
	}
	return idx
}

type Metrics struct {
	Booking   OperationMetrics
	Cancel    OperationMetrics
	Complete  OperationMetrics
	Rating    OperationMetrics
	ListSlots OperationMetrics
	Upcoming  OperationMetrics
	Profile   OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	log     *slog.Logger
	metrics Metrics

	tokens sync.Map // actor.Actor -> bearer token
}

func main() {
	base, err := config.Load()
	if err != nil {
		slog.Error("config load error", "err", err)
		os.Exit(1)
	}
	log := logs.New(base, "simulate")

	cfg := loadConfig(base)
	if err := validateConfig(cfg); err != nil {
		log.Error("invalid config", "err", err)
		os.Exit(1)
	}

	log.Info("simulator starting",
		"duration", cfg.Duration,
		"workers", cfg.Workers,
		"booking", cfg.BookingRatio,
		"cancel", cfg.CancelRatio,
		"rating", cfg.RatingRatio,
		"read", cfg.ReadRatio,
	)

	// Load data from Postgres
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, cfg.PostgresSize)
	if err != nil {
		log.Error("connect postgres", "err", err)
		os.Exit(1)
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		log.Error("load data pool", "err", err)
		os.Exit(1)
	}

	log.Info("data pool loaded", "patients", len(dataPool.Patients), "slots", len(dataPool.Slots))

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		log:    log,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}

	sim.Run()
	sim.PrintReport(os.Stdout)

	verifyCtx, cancelVerify := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelVerify()
	doubled, err := findDoubleBookedSlots(verifyCtx, pgPool)
	if err != nil {
		log.Error("verify slots", "err", err)
		os.Exit(1)
	}
	if len(doubled) > 0 {
		log.Error("slots with more than one live appointment", "count", len(doubled), "slots", doubled)
		os.Exit(2)
	}
	log.Info("no slot backs more than one live appointment")
}

func findDoubleBookedSlots(ctx context.Context, pool *pgxpool.Pool) ([]uuid.UUID, error) {
	rows, err := pool.Query(ctx, `
		SELECT slot_id FROM appointments
		WHERE status <> 'CANCELED'
		GROUP BY slot_id
		HAVING count(*) > 1
	`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
}

func loadConfig(base config.Config) SimConfig {
	cfg := SimConfig{
		APIBaseURL:   getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:     getDuration("SIM_DURATION", 30*time.Second),
		Workers:      getInt("SIM_WORKERS", 10),
		BookingRatio: getFloat("SIM_BOOKING_RATIO", 0.5),
		CancelRatio:  getFloat("SIM_CANCEL_RATIO", 0.1),
		RatingRatio:  getFloat("SIM_RATING_RATIO", 0.1),
		ReadRatio:    getFloat("SIM_READ_RATIO", 0.3),
		PatientLimit: getInt("SIM_PATIENT_LIMIT", 4000),
		SlotLimit:    getInt("SIM_SLOT_LIMIT", 2400),
		PostgresDSN:  base.PostgresDSN,
		PostgresSize: base.PostgresConns,
		JWTSecret:    base.JWTSecret,
	}

	// Normalize ratios
	total := cfg.BookingRatio + cfg.CancelRatio + cfg.RatingRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.CancelRatio /= total
		cfg.RatingRatio /= total
		cfg.ReadRatio /= total
	}

	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.JWTSecret == "" {
		return errors.New("JWT_SECRET is required to mint actor tokens")
	}
	if cfg.Workers <= 0 {
		return errors.New("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return errors.New("SIM_DURATION must be > 0")
	}
	return nil
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	dataPool := &DataPool{}

	rows, err := pool.Query(ctx, `SELECT id FROM patients LIMIT $1`, cfg.PatientLimit)
	if err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}
	dataPool.Patients, err = pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}

	rows, err = pool.Query(ctx, `
		SELECT id, doctor_id FROM time_slots
		WHERE status = 'AVAILABLE' AND start_time > now()
		LIMIT $1
	`, cfg.SlotLimit)
	if err != nil {
		return nil, fmt.Errorf("load slots: %w", err)
	}
	dataPool.Slots, err = pgx.CollectRows(rows, pgx.RowToStructByPos[slotRef])
	if err != nil {
		return nil, fmt.Errorf("load slots: %w", err)
	}

	if len(dataPool.Patients) == 0 {
		return nil, errors.New("no patients loaded, run cmd/seed first")
	}
	if len(dataPool.Slots) == 0 {
		return nil, errors.New("no open slots loaded, run cmd/seed first")
	}

	return dataPool, nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	s.log.Info("starting simulation", "duration", s.config.Duration, "workers", s.config.Workers)

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	s.log.Info("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for ctx.Err() == nil {
		r := rng.Float64()
		switch {
		case r < s.config.BookingRatio:
			s.doBooking(ctx, rng)
		case r < s.config.BookingRatio+s.config.CancelRatio:
			s.doCancel(ctx, rng)
		case r < s.config.BookingRatio+s.config.CancelRatio+s.config.RatingRatio:
			s.doCompleteAndRate(ctx, rng)
		default:
			switch rng.Intn(3) {
			case 0:
				s.doListSlots(ctx, rng)
			case 1:
				s.doUpcoming(ctx, rng)
			case 2:
				s.doProfile(ctx, rng)
			}
		}
	}
}

// doBooking races random patients for random slots; most attempts on a hot slot end in 409.
func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	slot := s.pool.Slots[rng.Intn(len(s.pool.Slots))]
	patient := actor.Patient(s.pool.Patients[rng.Intn(len(s.pool.Patients))])

	var appt api.AppointmentResponse
	status, latency, err := s.call(ctx, patient, http.MethodPost, "/appointments",
		api.BookAppointmentRequest{SlotID: slot.ID.String(), Reason: "load test"}, &appt)
	s.metrics.Booking.Record(latency, status, err)

	if err == nil && status == http.StatusCreated {
		s.pool.AddAppointment(booked{ID: appt.ID, DoctorID: appt.DoctorID, PatientID: appt.PatientID})
	}
}

func (s *Simulator) doCancel(ctx context.Context, rng *rand.Rand) {
	b, ok := s.pool.TakeAppointment(rng)
	if !ok {
		return
	}

	status, latency, err := s.call(ctx, actor.Patient(b.PatientID), http.MethodPost,
		"/appointments/"+b.ID.String()+"/cancel", nil, nil)
	s.metrics.Cancel.Record(latency, status, err)
}

func (s *Simulator) doCompleteAndRate(ctx context.Context, rng *rand.Rand) {
	b, ok := s.pool.TakeAppointment(rng)
	if !ok {
		return
	}

	status, latency, err := s.call(ctx, actor.Doctor(b.DoctorID), http.MethodPost,
		"/appointments/"+b.ID.String()+"/complete", nil, nil)
	s.metrics.Complete.Record(latency, status, err)
	if err != nil || status != http.StatusOK {
		return
	}

	req := api.SubmitRatingRequest{
		AppointmentID: b.ID.String(),
		Rating:        1 + rng.Intn(5),
	}
	status, latency, err = s.call(ctx, actor.Patient(b.PatientID), http.MethodPost, "/ratings", req, nil)
	s.metrics.Rating.Record(latency, status, err)
}

func (s *Simulator) doListSlots(ctx context.Context, rng *rand.Rand) {
	slot := s.pool.Slots[rng.Intn(len(s.pool.Slots))]
	patient := actor.Patient(s.pool.Patients[rng.Intn(len(s.pool.Patients))])

	status, latency, err := s.call(ctx, patient, http.MethodGet, "/slots?doctor_id="+slot.DoctorID.String(), nil, nil)
	s.metrics.ListSlots.Record(latency, status, err)
}

func (s *Simulator) doUpcoming(ctx context.Context, rng *rand.Rand) {
	patient := actor.Patient(s.pool.Patients[rng.Intn(len(s.pool.Patients))])

	status, latency, err := s.call(ctx, patient, http.MethodGet, "/dashboard/upcoming", nil, nil)
	s.metrics.Upcoming.Record(latency, status, err)
}

func (s *Simulator) doProfile(ctx context.Context, rng *rand.Rand) {
	slot := s.pool.Slots[rng.Intn(len(s.pool.Slots))]

	status, latency, err := s.call(ctx, actor.Actor{}, http.MethodGet, "/doctors/"+slot.DoctorID.String(), nil, nil)
	s.metrics.Profile.Record(latency, status, err)
}

// call sends one request as the given actor. A zero actor sends no Authorization header.
func (s *Simulator) call(ctx context.Context, who actor.Actor, method, path string, body, out any) (int, time.Duration, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return 0, 0, err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, reader)
	if err != nil {
		return 0, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if who.Valid() {
		token, err := s.token(who)
		if err != nil {
			return 0, 0, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		return 0, latency, err
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, latency, err
		}
	} else {
		_, _ = io.Copy(io.Discard, resp.Body)
	}
	return resp.StatusCode, latency, nil
}

func (s *Simulator) token(who actor.Actor) (string, error) {
	if t, ok := s.tokens.Load(who); ok {
		return t.(string), nil
	}
	t, err := api.IssueToken(s.config.JWTSecret, who, s.config.Duration+time.Hour)
	if err != nil {
		return "", err
	}
	s.tokens.Store(who, t)
	return t, nil
}

func (s *Simulator) PrintReport(w io.Writer) {
	fmt.Fprintln(w, "\n"+strings.Repeat("=", 80))
	fmt.Fprintln(w, "SIMULATION REPORT")
	fmt.Fprintln(w, strings.Repeat("=", 80))
	fmt.Fprintf(w, "Duration: %s\n", s.config.Duration)
	fmt.Fprintf(w, "Workers: %d\n", s.config.Workers)
	fmt.Fprintln(w)

	printOperationReport(w, "Booking", &s.metrics.Booking)
	printOperationReport(w, "Cancel", &s.metrics.Cancel)
	printOperationReport(w, "Complete", &s.metrics.Complete)
	printOperationReport(w, "Rating", &s.metrics.Rating)
	printOperationReport(w, "List slots", &s.metrics.ListSlots)
	printOperationReport(w, "Upcoming", &s.metrics.Upcoming)
	printOperationReport(w, "Doctor profile", &s.metrics.Profile)
}

func printOperationReport(w io.Writer, name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)

	avg, min, max, p50, p95 := om.Stats()

	fmt.Fprintf(w, "%s:\n", name)
	fmt.Fprintf(w, "  Total: %d\n", total)
	fmt.Fprintf(w, "  Success: %d (%.1f%%)\n", success, pct(success, total))
	if conflict > 0 {
		fmt.Fprintf(w, "  Conflicts: %d (%.1f%%)\n", conflict, pct(conflict, total))
	}
	if failed > 0 {
		fmt.Fprintf(w, "  Errors: %d (%.1f%%)\n", failed, pct(failed, total))
	}
	fmt.Fprintf(w, "  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), min.Round(time.Millisecond), max.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Fprintln(w)
}

func pct(n, total int64) float64 {
	return float64(n) / float64(total) * 100
}

// Helper functions

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
