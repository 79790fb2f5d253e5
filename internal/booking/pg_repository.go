package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// uniqueViolation is the Postgres error code raised by the partial
// unique index on (date, start_minute) for non-cancelled appointments.
const uniqueViolation = "23505"

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func scanServiceItem(row pgx.Row) (*ServiceItem, error) {
	var s ServiceItem

	err := row.Scan(
		&s.ID,
		&s.Name,
		&s.DurationMin,
		&s.Price,
		&s.Icon,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrServiceNotFound
		}
		return nil, err
	}

	return &s, nil
}

func scanClient(row pgx.Row) (*Client, error) {
	var c Client
	var email, phone *string

	err := row.Scan(
		&c.ID,
		&c.Name,
		&email,
		&phone,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrClientNotFound
		}
		return nil, err
	}

	c.Email = email
	c.Phone = phone
	return &c, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var day time.Time

	err := row.Scan(
		&a.Folio,
		&a.ClientID,
		&a.ServiceID,
		&a.ServiceName,
		&a.DurationMin,
		&a.Price,
		&day,
		&a.StartMinute,
		&a.Vehicle.Make,
		&a.Vehicle.Model,
		&a.Vehicle.Plate,
		&a.Status,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.Date = day.Format("2006-01-02")
	return &a, nil
}

func scanBlock(row pgx.Row) (*BlockedPeriod, error) {
	var b BlockedPeriod
	var day time.Time
	var startMinute *int

	err := row.Scan(
		&b.ID,
		&day,
		&startMinute,
		&b.Note,
		&b.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBlockNotFound
		}
		return nil, err
	}

	b.Date = day.Format("2006-01-02")
	b.StartMinute = startMinute
	return &b, nil
}

const appointmentColumns = `folio, client_id, service_id, service_name, duration_min, price,
		       date, start_minute, vehicle_make, vehicle_model, vehicle_plate,
		       status, created_at, updated_at`

// Interface methods

func (r *PgRepository) GetOperatingHours(ctx context.Context) (OperatingHours, error) {
	var h OperatingHours

	err := r.pool.QueryRow(ctx, `
		SELECT opening_minute, closing_minute, slot_interval
		FROM shop_settings
		WHERE id = 1
	`).Scan(&h.OpenMinute, &h.CloseMinute, &h.SlotInterval)
	if err != nil {
		return OperatingHours{}, fmt.Errorf("load shop settings: %w", err)
	}

	return h, nil
}

func (r *PgRepository) ListServices(ctx context.Context) ([]ServiceItem, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, duration_min, price, icon, created_at, updated_at
		FROM services
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []ServiceItem
	for rows.Next() {
		s, err := scanServiceItem(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) GetServiceByID(ctx context.Context, id uuid.UUID) (*ServiceItem, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, duration_min, price, icon, created_at, updated_at
		FROM services
		WHERE id = $1
	`, id)
	return scanServiceItem(row)
}

func (r *PgRepository) GetClientByID(ctx context.Context, id uuid.UUID) (*Client, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, email, phone, created_at, updated_at
		FROM clients
		WHERE id = $1
	`, id)
	return scanClient(row)
}

func (r *PgRepository) ListAppointmentsByDate(ctx context.Context, date string) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE date = $1::date
		ORDER BY start_minute
	`, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAppointments(rows)
}

func (r *PgRepository) ListAppointmentsByClient(ctx context.Context, clientID uuid.UUID) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE client_id = $1
		ORDER BY date DESC, start_minute DESC
	`, clientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAppointments(rows)
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) GetAppointmentByFolio(ctx context.Context, folio string) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE folio = $1
	`, folio)
	return scanAppointment(row)
}

func (r *PgRepository) CreateAppointment(ctx context.Context, appt *Appointment) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO appointments (folio, client_id, service_id, service_name, duration_min, price,
		                          date, start_minute, vehicle_make, vehicle_model, vehicle_plate,
		                          status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7::date, $8, $9, $10, $11, $12, now(), now())
		RETURNING `+appointmentColumns+`
	`,
		appt.Folio, appt.ClientID, appt.ServiceID, appt.ServiceName, appt.DurationMin, appt.Price,
		appt.Date, appt.StartMinute, appt.Vehicle.Make, appt.Vehicle.Model, appt.Vehicle.Plate,
		appt.Status,
	)

	stored, err := scanAppointment(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, ErrSlotTaken
		}
		return nil, err
	}

	return stored, nil
}

func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, folio string, from, to Status) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE folio = $1
		  AND status = $3
		RETURNING `+appointmentColumns+`
	`, folio, to, from)

	return scanAppointment(row)
}

func (r *PgRepository) NextFolioSeq(ctx context.Context, year int) (int, error) {
	var seq int

	err := r.pool.QueryRow(ctx, `
		INSERT INTO folio_counters (year, last_seq)
		VALUES ($1, 1)
		ON CONFLICT (year)
		DO UPDATE SET last_seq = folio_counters.last_seq + 1
		RETURNING last_seq
	`, year).Scan(&seq)
	if err != nil {
		return 0, err
	}

	return seq, nil
}

func (r *PgRepository) ListBlocksByDate(ctx context.Context, date string) ([]BlockedPeriod, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, date, start_minute, note, created_at
		FROM blocked_periods
		WHERE date = $1::date
		ORDER BY start_minute NULLS FIRST
	`, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectBlocks(rows)
}

func (r *PgRepository) ListBlocks(ctx context.Context) ([]BlockedPeriod, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, date, start_minute, note, created_at
		FROM blocked_periods
		ORDER BY date, start_minute NULLS FIRST
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectBlocks(rows)
}

func collectBlocks(rows pgx.Rows) ([]BlockedPeriod, error) {
	var result []BlockedPeriod
	for rows.Next() {
		b, err := scanBlock(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *b)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) CreateBlock(ctx context.Context, block *BlockedPeriod) (*BlockedPeriod, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO blocked_periods (id, date, start_minute, note, created_at)
		VALUES ($1, $2::date, $3, $4, now())
		RETURNING id, date, start_minute, note, created_at
	`, block.ID, block.Date, block.StartMinute, block.Note)

	return scanBlock(row)
}

func (r *PgRepository) DeleteBlock(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM blocked_periods
		WHERE id = $1
	`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrBlockNotFound
	}

	return nil
}

func (r *PgRepository) DeleteBlocksBefore(ctx context.Context, date string) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM blocked_periods
		WHERE date < $1::date
	`, date)
	if err != nil {
		return 0, err
	}

	return tag.RowsAffected(), nil
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, folio, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.Folio, ev.Payload, nullableTime(ev.CreatedAt))
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
