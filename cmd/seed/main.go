package main

import (
	"context"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/donsiko12-rgb/mechanic-workshop/internal/booking"
	"github.com/donsiko12-rgb/mechanic-workshop/internal/config"
	"github.com/donsiko12-rgb/mechanic-workshop/internal/db"
)

const schema = `
CREATE TABLE IF NOT EXISTS shop_settings (
	id             smallint PRIMARY KEY DEFAULT 1 CHECK (id = 1),
	opening_minute integer NOT NULL,
	closing_minute integer NOT NULL,
	slot_interval  integer NOT NULL,
	updated_at     timestamptz NOT NULL DEFAULT now(),
	CHECK (opening_minute >= 0 AND opening_minute < closing_minute AND closing_minute <= 1440),
	CHECK (slot_interval > 0)
);

CREATE TABLE IF NOT EXISTS services (
	id           uuid PRIMARY KEY,
	name         text NOT NULL UNIQUE,
	duration_min integer NOT NULL CHECK (duration_min > 0),
	price        integer NOT NULL,
	icon         text NOT NULL DEFAULT '',
	created_at   timestamptz NOT NULL DEFAULT now(),
	updated_at   timestamptz NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS clients (
	id         uuid PRIMARY KEY,
	name       text NOT NULL,
	email      text,
	phone      text,
	created_at timestamptz NOT NULL DEFAULT now(),
	updated_at timestamptz NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS appointments (
	folio         text PRIMARY KEY,
	client_id     uuid NOT NULL REFERENCES clients (id),
	service_id    uuid NOT NULL REFERENCES services (id),
	service_name  text NOT NULL,
	duration_min  integer NOT NULL CHECK (duration_min > 0),
	price         integer NOT NULL,
	date          date NOT NULL,
	start_minute  integer NOT NULL CHECK (start_minute >= 0 AND start_minute < 1440),
	vehicle_make  text NOT NULL DEFAULT '',
	vehicle_model text NOT NULL DEFAULT '',
	vehicle_plate text NOT NULL DEFAULT '',
	status        text NOT NULL CHECK (status IN ('confirmed', 'completed', 'cancelled')),
	created_at    timestamptz NOT NULL DEFAULT now(),
	updated_at    timestamptz NOT NULL DEFAULT now()
);

-- One non-cancelled appointment per (date, start). This is the atomic
-- insert-if-absent key that backstops the availability recheck.
CREATE UNIQUE INDEX IF NOT EXISTS appointments_active_slot_idx
	ON appointments (date, start_minute)
	WHERE status <> 'cancelled';

CREATE INDEX IF NOT EXISTS appointments_client_idx ON appointments (client_id);

CREATE TABLE IF NOT EXISTS blocked_periods (
	id           uuid PRIMARY KEY,
	date         date NOT NULL,
	start_minute integer CHECK (start_minute IS NULL OR (start_minute >= 0 AND start_minute < 1440)),
	note         text NOT NULL DEFAULT '',
	created_at   timestamptz NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS blocked_periods_date_idx ON blocked_periods (date);

CREATE TABLE IF NOT EXISTS folio_counters (
	year     integer PRIMARY KEY,
	last_seq integer NOT NULL
);

CREATE TABLE IF NOT EXISTS event_logs (
	id         bigserial PRIMARY KEY,
	event_type text NOT NULL,
	folio      text,
	payload    jsonb,
	created_at timestamptz NOT NULL DEFAULT now()
);
`

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	if err := applySchema(context.Background(), pool); err != nil {
		log.Fatalf("apply schema: %v", err)
	}
	if err := seedSettings(context.Background(), pool, cfg); err != nil {
		log.Fatalf("seed settings: %v", err)
	}
	if err := seedServices(context.Background(), pool); err != nil {
		log.Fatalf("seed services: %v", err)
	}

	clientCount := 50
	if v := os.Getenv("SEED_CLIENTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			clientCount = n
		}
	}
	if err := seedClients(context.Background(), pool, clientCount); err != nil {
		log.Fatalf("seed clients: %v", err)
	}

	log.Println("seed complete")
}

func applySchema(ctx context.Context, pool *pgxpool.Pool) error {
	log.Println("applying schema")
	_, err := pool.Exec(ctx, schema)
	return err
}

func seedSettings(ctx context.Context, pool *pgxpool.Pool, cfg config.Config) error {
	open, err := booking.MinutesFromClock(cfg.OpeningTime)
	if err != nil {
		return err
	}
	closing, err := booking.MinutesFromClock(cfg.ClosingTime)
	if err != nil {
		return err
	}

	log.Printf("seeding shop settings open=%s close=%s interval=%d", cfg.OpeningTime, cfg.ClosingTime, cfg.SlotInterval)

	_, err = pool.Exec(ctx, `
		INSERT INTO shop_settings (id, opening_minute, closing_minute, slot_interval)
		VALUES (1, $1, $2, $3)
		ON CONFLICT (id) DO NOTHING
	`, open, closing, cfg.SlotInterval)
	return err
}

func seedServices(ctx context.Context, pool *pgxpool.Pool) error {
	catalog := []struct {
		name     string
		duration int
		price    int
		icon     string
	}{
		{"Cambio de Aceite", 30, 500, "drop"},
		{"Afinación Mayor", 120, 2500, "engine"},
		{"Frenos", 60, 1200, "warning-circle"},
		{"Diagnóstico General", 30, 300, "stethoscope"},
	}

	log.Printf("seeding %d services", len(catalog))

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, s := range catalog {
		_, err := tx.Exec(ctx, `
			INSERT INTO services (id, name, duration_min, price, icon, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, now(), now())
			ON CONFLICT (name) DO NOTHING
		`, uuid.New(), s.name, s.duration, s.price, s.icon)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func seedClients(ctx context.Context, pool *pgxpool.Pool, count int) error {
	log.Printf("seeding %d clients", count)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for i := 0; i < count; i++ {
		id := uuid.New()
		name := gofakeit.Name()
		email := gofakeit.Email()
		phone := gofakeit.Phone()

		_, err := tx.Exec(ctx, `
			INSERT INTO clients (id, name, email, phone, created_at, updated_at)
			VALUES ($1, $2, $3, $4, now(), now())
		`, id, name, email, phone)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}
