package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/donsiko12-rgb/mechanic-workshop/internal/booking"
	"github.com/donsiko12-rgb/mechanic-workshop/internal/config"
	"github.com/donsiko12-rgb/mechanic-workshop/internal/db"
)

// The simulator hammers the booking API from many workers, most of them
// fighting over a handful of slots on the same day, and then verifies
// in Postgres that no two non-cancelled appointments overlap.

type SimConfig struct {
	APIBaseURL  string
	Duration    time.Duration
	Workers     int
	Days        int
	BookRatio   float64
	CancelRatio float64
	ReadRatio   float64
	ClientLimit int
	PostgresDSN string
}

type DataPool struct {
	Clients  []uuid.UUID
	Services []catalogEntry
	Hours    booking.OperatingHours
	Dates    []string

	mu     sync.RWMutex
	folios []string
}

type catalogEntry struct {
	ID       uuid.UUID
	Duration int
}

func (dp *DataPool) AddFolio(folio string) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.folios = append(dp.folios, folio)
}

func (dp *DataPool) RandomFolio(rng *rand.Rand) (string, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.folios) == 0 {
		return "", false
	}
	return dp.folios[rng.Intn(len(dp.folios))], true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, success bool, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	if success {
		atomic.AddInt64(&om.Success, 1)
	} else if conflict {
		atomic.AddInt64(&om.Conflict, 1)
	} else {
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, min, max, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)

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

	p50Idx := len(latencies) * 50 / 100
	if p50Idx >= len(latencies) {
		p50Idx = len(latencies) - 1
	}
	p50 = latencies[p50Idx]

	p95Idx := len(latencies) * 95 / 100
	if p95Idx >= len(latencies) {
		p95Idx = len(latencies) - 1
	}
	p95 = latencies[p95Idx]

	return avg, min, max, p50, p95
}

type Metrics struct {
	Booking OperationMetrics
	Cancel  OperationMetrics
	Slots   OperationMetrics
	ReadQR  OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics Metrics
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("simulator starting")

	cfg := loadSimConfig()
	if err := validateConfig(cfg); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	log.Printf("config: duration=%s workers=%d days=%d book=%.2f cancel=%.2f read=%.2f",
		cfg.Duration, cfg.Workers, cfg.Days, cfg.BookRatio, cfg.CancelRatio, cfg.ReadRatio)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		log.Fatalf("load data pool: %v", err)
	}

	log.Printf("loaded: %d clients, %d services, %d target dates",
		len(dataPool.Clients), len(dataPool.Services), len(dataPool.Dates))

	gofakeit.Seed(time.Now().UnixNano())

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}

	sim.Run()
	sim.PrintReport()

	checkCtx, checkCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer checkCancel()
	if err := checkNoOverlaps(checkCtx, pgPool); err != nil {
		log.Fatalf("INVARIANT VIOLATED: %v", err)
	}
	log.Println("invariant holds: no overlapping non-cancelled appointments")
}

func loadSimConfig() SimConfig {
	baseCfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load base config: %v", err)
	}

	cfg := SimConfig{
		APIBaseURL:  getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:    getDuration("SIM_DURATION", 30*time.Second),
		Workers:     getInt("SIM_WORKERS", 10),
		Days:        getInt("SIM_DAYS", 3),
		BookRatio:   getFloat("SIM_BOOK_RATIO", 0.5),
		CancelRatio: getFloat("SIM_CANCEL_RATIO", 0.2),
		ReadRatio:   getFloat("SIM_READ_RATIO", 0.3),
		ClientLimit: getInt("SIM_CLIENT_LIMIT", 200),
		PostgresDSN: baseCfg.PostgresDSN,
	}

	// Normalize ratios
	total := cfg.BookRatio + cfg.CancelRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookRatio /= total
		cfg.CancelRatio /= total
		cfg.ReadRatio /= total
	}

	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.PostgresDSN == "" {
		return fmt.Errorf("POSTGRES_DSN is required (set in .env or environment)")
	}
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	if cfg.Days <= 0 {
		return fmt.Errorf("SIM_DAYS must be > 0")
	}
	return nil
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	dataPool := &DataPool{}

	rows, err := pool.Query(ctx, `
		SELECT id FROM clients LIMIT $1
	`, cfg.ClientLimit)
	if err != nil {
		return nil, fmt.Errorf("load clients: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		dataPool.Clients = append(dataPool.Clients, id)
	}

	rows, err = pool.Query(ctx, `
		SELECT id, duration_min FROM services
	`)
	if err != nil {
		return nil, fmt.Errorf("load services: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var e catalogEntry
		if err := rows.Scan(&e.ID, &e.Duration); err != nil {
			return nil, err
		}
		dataPool.Services = append(dataPool.Services, e)
	}

	err = pool.QueryRow(ctx, `
		SELECT opening_minute, closing_minute, slot_interval
		FROM shop_settings WHERE id = 1
	`).Scan(&dataPool.Hours.OpenMinute, &dataPool.Hours.CloseMinute, &dataPool.Hours.SlotInterval)
	if err != nil {
		return nil, fmt.Errorf("load shop settings: %w", err)
	}

	// Tomorrow onward: today would make late-day slots racy with the
	// wall clock and past dates are rejected outright.
	for i := 1; i <= cfg.Days; i++ {
		dataPool.Dates = append(dataPool.Dates, time.Now().AddDate(0, 0, i).Format("2006-01-02"))
	}

	if len(dataPool.Clients) == 0 {
		return nil, fmt.Errorf("no clients loaded, run cmd/seed first")
	}
	if len(dataPool.Services) == 0 {
		return nil, fmt.Errorf("no services loaded, run cmd/seed first")
	}

	return dataPool, nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	log.Printf("starting simulation for %s with %d workers", s.config.Duration, s.config.Workers)

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	log.Println("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for {
		select {
		case <-ctx.Done():
			return
		default:
			r := rng.Float64()
			if r < s.config.BookRatio {
				s.doBooking(ctx, rng)
			} else if r < s.config.BookRatio+s.config.CancelRatio {
				s.doCancel(ctx, rng)
			} else {
				if rng.Intn(2) == 0 {
					s.doListSlots(ctx, rng)
				} else {
					s.doReadQR(ctx, rng)
				}
			}
		}
	}
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	clientID := s.pool.Clients[rng.Intn(len(s.pool.Clients))]
	svc := s.pool.Services[rng.Intn(len(s.pool.Services))]
	date := s.pool.Dates[rng.Intn(len(s.pool.Dates))]

	// Bias toward the first few slots of the day so workers collide.
	hours := s.pool.Hours
	slotCount := (hours.CloseMinute - hours.OpenMinute - svc.Duration) / hours.SlotInterval
	if slotCount < 1 {
		return
	}
	pick := rng.Intn(slotCount + 1)
	if rng.Float64() < 0.5 {
		pick = rng.Intn(3)
	}
	startMinute := hours.OpenMinute + pick*hours.SlotInterval

	car := gofakeit.Car()

	reqBody := map[string]any{
		"client_id":  clientID.String(),
		"service_id": svc.ID.String(),
		"date":       date,
		"time":       booking.ClockFromMinutes(startMinute),
		"vehicle": map[string]string{
			"make":  car.Brand,
			"model": car.Model,
			"plate": strings.ToUpper(gofakeit.Lexify("???")) + "-" + gofakeit.Numerify("####"),
		},
	}
	body, _ := json.Marshal(reqBody)

	start := time.Now()

	req, _ := http.NewRequestWithContext(ctx, "POST", s.config.APIBaseURL+"/appointments", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	latency := time.Since(start)

	success := false
	conflict := false

	if err == nil {
		defer resp.Body.Close()

		switch resp.StatusCode {
		case http.StatusCreated:
			success = true
			var apptResp struct {
				Folio string `json:"folio"`
			}
			bodyBytes, _ := io.ReadAll(resp.Body)
			if len(bodyBytes) > 0 {
				json.Unmarshal(bodyBytes, &apptResp)
				if apptResp.Folio != "" {
					s.pool.AddFolio(apptResp.Folio)
				}
			}
		case http.StatusConflict:
			conflict = true
		}
	}

	s.metrics.Booking.Record(latency, success, conflict)
}

func (s *Simulator) doCancel(ctx context.Context, rng *rand.Rand) {
	folio, ok := s.pool.RandomFolio(rng)
	if !ok {
		return
	}

	start := time.Now()

	req, _ := http.NewRequestWithContext(ctx, "POST",
		fmt.Sprintf("%s/appointments/%s/cancel", s.config.APIBaseURL, folio), nil)

	resp, err := s.client.Do(req)
	latency := time.Since(start)

	success := false
	conflict := false

	if err == nil {
		defer resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			success = true
		} else if resp.StatusCode == http.StatusConflict {
			// Already cancelled by another worker
			conflict = true
		}
	}

	s.metrics.Cancel.Record(latency, success, conflict)
}

func (s *Simulator) doListSlots(ctx context.Context, rng *rand.Rand) {
	svc := s.pool.Services[rng.Intn(len(s.pool.Services))]
	date := s.pool.Dates[rng.Intn(len(s.pool.Dates))]

	start := time.Now()

	req, _ := http.NewRequestWithContext(ctx, "GET",
		fmt.Sprintf("%s/slots?date=%s&service_id=%s", s.config.APIBaseURL, date, svc.ID.String()), nil)

	resp, err := s.client.Do(req)
	latency := time.Since(start)

	success := false
	if err == nil {
		defer resp.Body.Close()
		success = resp.StatusCode == http.StatusOK
	}

	s.metrics.Slots.Record(latency, success, false)
}

func (s *Simulator) doReadQR(ctx context.Context, rng *rand.Rand) {
	folio, ok := s.pool.RandomFolio(rng)
	if !ok {
		return
	}

	start := time.Now()

	req, _ := http.NewRequestWithContext(ctx, "GET",
		fmt.Sprintf("%s/appointments/%s/qr", s.config.APIBaseURL, folio), nil)

	resp, err := s.client.Do(req)
	latency := time.Since(start)

	success := false
	if err == nil {
		defer resp.Body.Close()
		success = resp.StatusCode == http.StatusOK
	}

	s.metrics.ReadQR.Record(latency, success, false)
}

// checkNoOverlaps looks for any pair of non-cancelled appointments on
// the same date whose half-open ranges intersect.
func checkNoOverlaps(ctx context.Context, pool *pgxpool.Pool) error {
	var count int
	err := pool.QueryRow(ctx, `
		SELECT count(*)
		FROM appointments a
		JOIN appointments b
		  ON a.date = b.date
		 AND a.folio < b.folio
		 AND a.status <> 'cancelled'
		 AND b.status <> 'cancelled'
		 AND a.start_minute < b.start_minute + b.duration_min
		 AND a.start_minute + a.duration_min > b.start_minute
	`).Scan(&count)
	if err != nil {
		return fmt.Errorf("overlap query: %w", err)
	}
	if count > 0 {
		return fmt.Errorf("%d overlapping appointment pairs found", count)
	}
	return nil
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Println()

	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Cancel", &s.metrics.Cancel)
	printOperationReport("List Slots", &s.metrics.Slots)
	printOperationReport("Read QR", &s.metrics.ReadQR)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	errCount := atomic.LoadInt64(&om.Error)

	avg, min, max, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if errCount > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", errCount, float64(errCount)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), min.Round(time.Millisecond), max.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
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
