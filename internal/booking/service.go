package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/donsiko12-rgb/mechanic-workshop/internal/config"
	redisclient "github.com/donsiko12-rgb/mechanic-workshop/internal/redis"
)

const (
	EventAppointmentBooked    = "APPOINTMENT_BOOKED"
	EventAppointmentCompleted = "APPOINTMENT_COMPLETED"
	EventAppointmentCancelled = "APPOINTMENT_CANCELLED"
	EventBlockAdded           = "BLOCK_ADDED"
	EventBlockRemoved         = "BLOCK_REMOVED"
)

var (
	ErrSlotConflict      = errors.New("slot is no longer available")
	ErrDayBeingBooked    = errors.New("another booking for this day is in progress, please retry")
	ErrInvalidRequest    = errors.New("invalid booking request")
	ErrInvalidTransition = errors.New("invalid status transition")
)

const dateLayout = "2006-01-02"

type Service struct {
	repo   Repository
	locker redisclient.Locker
	cfg    config.Config
	now    func() time.Time
}

func NewService(repo Repository, locker redisclient.Locker, cfg config.Config) *Service {
	return &Service{
		repo:   repo,
		locker: locker,
		cfg:    cfg,
		now:    time.Now,
	}
}

// BookingRequest carries everything needed to commit one appointment.
// Service name, duration and price are snapshotted from the catalog at
// commit time so later catalog edits do not rewrite history.
type BookingRequest struct {
	ClientID  uuid.UUID
	ServiceID uuid.UUID
	Date      string // YYYY-MM-DD
	Time      string // HH:MM
	Vehicle   Vehicle
}

// SlotsForDate returns the candidate slots for booking the given
// service on the given date. Pure read: callers may poll freely.
func (s *Service) SlotsForDate(ctx context.Context, date string, serviceID uuid.UUID) ([]Slot, error) {
	if _, err := time.Parse(dateLayout, date); err != nil {
		return nil, fmt.Errorf("%w: bad date %q", ErrInvalidRequest, date)
	}

	svc, err := s.repo.GetServiceByID(ctx, serviceID)
	if err != nil {
		return nil, fmt.Errorf("load service: %w", err)
	}

	hours, err := s.repo.GetOperatingHours(ctx)
	if err != nil {
		return nil, fmt.Errorf("load operating hours: %w", err)
	}

	busy, err := s.occupiedForDate(ctx, date, hours)
	if err != nil {
		return nil, err
	}

	return ComputeSlots(hours, svc.DurationMin, busy), nil
}

// Book commits a new appointment if the requested slot is still free.
// The availability recheck runs inside a per-day lock against the
// freshest stored state; the storage layer's unique (date, start) key
// backstops the window between recheck and insert.
func (s *Service) Book(ctx context.Context, req BookingRequest) (*Appointment, error) {
	day, err := time.Parse(dateLayout, req.Date)
	if err != nil {
		return nil, fmt.Errorf("%w: bad date %q", ErrInvalidRequest, req.Date)
	}

	today := s.today()
	if day.Before(today) {
		return nil, fmt.Errorf("%w: date %s is in the past", ErrInvalidRequest, req.Date)
	}

	startMinute, err := MinutesFromClock(req.Time)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	client, err := s.repo.GetClientByID(ctx, req.ClientID)
	if err != nil {
		return nil, fmt.Errorf("load client: %w", err)
	}

	svc, err := s.repo.GetServiceByID(ctx, req.ServiceID)
	if err != nil {
		return nil, fmt.Errorf("load service: %w", err)
	}
	if svc.DurationMin <= 0 {
		return nil, fmt.Errorf("%w: service %s has non-positive duration", ErrInvalidRequest, svc.ID)
	}

	hours, err := s.repo.GetOperatingHours(ctx)
	if err != nil {
		return nil, fmt.Errorf("load operating hours: %w", err)
	}

	var created *Appointment

	err = s.locker.WithDayLock(ctx, req.Date, func(lockCtx context.Context) error {
		// Inside the critical section recompute availability from the
		// freshest occupying intervals and re-verify the requested slot.
		busy, err := s.occupiedForDate(lockCtx, req.Date, hours)
		if err != nil {
			return err
		}

		slot, found := findSlot(ComputeSlots(hours, svc.DurationMin, busy), startMinute)
		if !found {
			return fmt.Errorf("%w: %s is not a bookable start time", ErrInvalidRequest, req.Time)
		}
		if !slot.Available {
			return ErrSlotConflict
		}

		seq, err := s.repo.NextFolioSeq(lockCtx, s.now().Year())
		if err != nil {
			return fmt.Errorf("next folio: %w", err)
		}

		appt := &Appointment{
			Folio:       FormatFolio(s.now().Year(), seq),
			ClientID:    client.ID,
			ServiceID:   svc.ID,
			ServiceName: svc.Name,
			DurationMin: svc.DurationMin,
			Price:       svc.Price,
			Date:        req.Date,
			StartMinute: startMinute,
			Vehicle:     req.Vehicle,
			Status:      StatusConfirmed,
		}

		stored, err := s.repo.CreateAppointment(lockCtx, appt)
		if err != nil {
			if errors.Is(err, ErrSlotTaken) {
				return ErrSlotConflict
			}
			return fmt.Errorf("create appointment: %w", err)
		}

		created = stored

		s.logEvent(lockCtx, stored.Folio, EventAppointmentBooked, map[string]any{
			"client_id":    client.ID.String(),
			"service_id":   svc.ID.String(),
			"date":         stored.Date,
			"time":         ClockFromMinutes(stored.StartMinute),
			"duration_min": stored.DurationMin,
		})

		return nil
	})

	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrDayBeingBooked
		}
		return nil, err
	}

	return created, nil
}

// UpdateStatus applies a staff status change. Only confirmed
// appointments move; completed and cancelled are terminal.
func (s *Service) UpdateStatus(ctx context.Context, folio string, to Status) (*Appointment, error) {
	if to != StatusCompleted && to != StatusCancelled {
		return nil, fmt.Errorf("%w: cannot move to %q", ErrInvalidTransition, to)
	}

	appt, err := s.repo.GetAppointmentByFolio(ctx, folio)
	if err != nil {
		return nil, fmt.Errorf("load appointment: %w", err)
	}

	if appt.Status != StatusConfirmed {
		return nil, fmt.Errorf("%w: %s is %q", ErrInvalidTransition, folio, appt.Status)
	}

	updated, err := s.repo.UpdateAppointmentStatus(ctx, folio, StatusConfirmed, to)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			// Lost a concurrent transition on the same folio.
			return nil, fmt.Errorf("%w: %s changed concurrently", ErrInvalidTransition, folio)
		}
		return nil, fmt.Errorf("update status: %w", err)
	}

	event := EventAppointmentCompleted
	if to == StatusCancelled {
		event = EventAppointmentCancelled
	}
	s.logEvent(ctx, updated.Folio, event, map[string]any{})

	return updated, nil
}

// AddBlock reserves a period administratively. startClock is an "HH:MM"
// string, or empty to block the whole day. No conflict check against
// existing appointments happens here: blocking over a confirmed
// appointment is a deliberate staff override.
func (s *Service) AddBlock(ctx context.Context, date, startClock, note string) (*BlockedPeriod, error) {
	if _, err := time.Parse(dateLayout, date); err != nil {
		return nil, fmt.Errorf("%w: bad date %q", ErrInvalidRequest, date)
	}

	var startMinute *int
	if startClock != "" {
		min, err := MinutesFromClock(startClock)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
		startMinute = &min
	}

	block := &BlockedPeriod{
		ID:          uuid.New(),
		Date:        date,
		StartMinute: startMinute,
		Note:        note,
	}

	stored, err := s.repo.CreateBlock(ctx, block)
	if err != nil {
		return nil, fmt.Errorf("create block: %w", err)
	}

	payload := map[string]any{"date": date, "note": note}
	if startMinute != nil {
		payload["time"] = ClockFromMinutes(*startMinute)
	} else {
		payload["whole_day"] = true
	}
	s.logEvent(ctx, "", EventBlockAdded, payload)

	return stored, nil
}

func (s *Service) RemoveBlock(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.DeleteBlock(ctx, id); err != nil {
		return fmt.Errorf("delete block: %w", err)
	}

	s.logEvent(ctx, "", EventBlockRemoved, map[string]any{"block_id": id.String()})
	return nil
}

func (s *Service) ListBlocks(ctx context.Context, date string) ([]BlockedPeriod, error) {
	if date == "" {
		return s.repo.ListBlocks(ctx)
	}
	if _, err := time.Parse(dateLayout, date); err != nil {
		return nil, fmt.Errorf("%w: bad date %q", ErrInvalidRequest, date)
	}
	return s.repo.ListBlocksByDate(ctx, date)
}

func (s *Service) ListServices(ctx context.Context) ([]ServiceItem, error) {
	return s.repo.ListServices(ctx)
}

// GetAppointment retrieves one appointment by folio.
func (s *Service) GetAppointment(ctx context.Context, folio string) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByFolio(ctx, folio)
	if err != nil {
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	return appt, nil
}

// ListByDate returns a day's appointments sorted by start time, with an
// optional status filter.
func (s *Service) ListByDate(ctx context.Context, date string, status Status) ([]Appointment, error) {
	if _, err := time.Parse(dateLayout, date); err != nil {
		return nil, fmt.Errorf("%w: bad date %q", ErrInvalidRequest, date)
	}

	appts, err := s.repo.ListAppointmentsByDate(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("list appointments by date: %w", err)
	}

	if status == "" {
		return appts, nil
	}

	var filtered []Appointment
	for _, a := range appts {
		if a.Status == status {
			filtered = append(filtered, a)
		}
	}
	return filtered, nil
}

func (s *Service) ListByClient(ctx context.Context, clientID uuid.UUID) ([]Appointment, error) {
	appts, err := s.repo.ListAppointmentsByClient(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("list appointments by client: %w", err)
	}
	return appts, nil
}

// Stats returns the admin dashboard numbers for one date: non-cancelled
// appointment count, how many are still confirmed, and the revenue sum
// over non-cancelled appointments.
func (s *Service) Stats(ctx context.Context, date string) (DayStats, error) {
	if _, err := time.Parse(dateLayout, date); err != nil {
		return DayStats{}, fmt.Errorf("%w: bad date %q", ErrInvalidRequest, date)
	}

	appts, err := s.repo.ListAppointmentsByDate(ctx, date)
	if err != nil {
		return DayStats{}, fmt.Errorf("list appointments by date: %w", err)
	}

	stats := DayStats{Date: date}
	for _, a := range appts {
		if a.Status == StatusCancelled {
			continue
		}
		stats.Total++
		stats.Revenue += a.Price
		if a.Status == StatusConfirmed {
			stats.Confirmed++
		}
	}

	return stats, nil
}

func (s *Service) OperatingHours(ctx context.Context) (OperatingHours, error) {
	return s.repo.GetOperatingHours(ctx)
}

// QRPayload renders the scannable verification payload for a booked
// appointment. The format is an external contract consumed by the shop
// scanner and must stay byte-for-byte stable.
func (s *Service) QRPayload(ctx context.Context, folio string) (string, error) {
	appt, err := s.repo.GetAppointmentByFolio(ctx, folio)
	if err != nil {
		return "", fmt.Errorf("load appointment: %w", err)
	}

	client, err := s.repo.GetClientByID(ctx, appt.ClientID)
	if err != nil {
		return "", fmt.Errorf("load client: %w", err)
	}

	return fmt.Sprintf("FOLIO:%s|CLIENTE:%s|AUTO:%s %s|FECHA:%s %s",
		appt.Folio,
		client.Name,
		appt.Vehicle.Make,
		appt.Vehicle.Model,
		appt.Date,
		ClockFromMinutes(appt.StartMinute),
	), nil
}

// PruneOldBlocks deletes blocked periods for dates that elapsed more
// than retention ago. Called by the janitor worker.
func (s *Service) PruneOldBlocks(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := s.now().Add(-retention).Format(dateLayout)

	n, err := s.repo.DeleteBlocksBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune blocks before %s: %w", cutoff, err)
	}
	return n, nil
}

func (s *Service) occupiedForDate(ctx context.Context, date string, hours OperatingHours) ([]Interval, error) {
	appts, err := s.repo.ListAppointmentsByDate(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("list appointments by date: %w", err)
	}

	blocks, err := s.repo.ListBlocksByDate(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("list blocks by date: %w", err)
	}

	return OccupiedIntervals(appts, blocks, hours), nil
}

func (s *Service) today() time.Time {
	y, m, d := s.now().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func findSlot(slots []Slot, startMinute int) (Slot, bool) {
	for _, slot := range slots {
		if slot.StartMinute == startMinute {
			return slot, true
		}
	}
	return Slot{}, false
}

func (s *Service) logEvent(ctx context.Context, folio, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("failed to marshal event payload for %s: %v", eventType, err)
		data = nil
	}

	ev := EventLog{
		EventType: eventType,
		Payload:   data,
		CreatedAt: time.Now(),
	}
	if folio != "" {
		f := folio
		ev.Folio = &f
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		log.Printf("failed to insert event log %s for %s: %v", eventType, folio, err)
	}
}
