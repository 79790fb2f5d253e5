package booking

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository is a mutex-guarded in-memory Repository. It backs
// unit tests and the offline simulator, and enforces the same unique
// (date, start_minute) key over non-cancelled appointments that the
// Postgres schema does.
type MemoryRepository struct {
	mu           sync.Mutex
	hours        OperatingHours
	services     map[uuid.UUID]ServiceItem
	clients      map[uuid.UUID]Client
	appointments map[string]Appointment
	blocks       map[uuid.UUID]BlockedPeriod
	folioSeqs    map[int]int
	events       []EventLog
}

func NewMemoryRepository(hours OperatingHours) *MemoryRepository {
	return &MemoryRepository{
		hours:        hours,
		services:     make(map[uuid.UUID]ServiceItem),
		clients:      make(map[uuid.UUID]Client),
		appointments: make(map[string]Appointment),
		blocks:       make(map[uuid.UUID]BlockedPeriod),
		folioSeqs:    make(map[int]int),
	}
}

func (r *MemoryRepository) AddService(s ServiceItem) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.services[s.ID] = s
}

func (r *MemoryRepository) AddClient(c Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[c.ID] = c
}

func (r *MemoryRepository) Events() []EventLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventLog, len(r.events))
	copy(out, r.events)
	return out
}

func (r *MemoryRepository) GetOperatingHours(ctx context.Context) (OperatingHours, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hours, nil
}

func (r *MemoryRepository) ListServices(ctx context.Context) ([]ServiceItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []ServiceItem
	for _, s := range r.services {
		result = append(result, s)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (r *MemoryRepository) GetServiceByID(ctx context.Context, id uuid.UUID) (*ServiceItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.services[id]
	if !ok {
		return nil, ErrServiceNotFound
	}
	return &s, nil
}

func (r *MemoryRepository) GetClientByID(ctx context.Context, id uuid.UUID) (*Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.clients[id]
	if !ok {
		return nil, ErrClientNotFound
	}
	return &c, nil
}

func (r *MemoryRepository) ListAppointmentsByDate(ctx context.Context, date string) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []Appointment
	for _, a := range r.appointments {
		if a.Date == date {
			result = append(result, a)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].StartMinute < result[j].StartMinute })
	return result, nil
}

func (r *MemoryRepository) ListAppointmentsByClient(ctx context.Context, clientID uuid.UUID) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []Appointment
	for _, a := range r.appointments {
		if a.ClientID == clientID {
			result = append(result, a)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Date != result[j].Date {
			return result[i].Date > result[j].Date
		}
		return result[i].StartMinute > result[j].StartMinute
	})
	return result, nil
}

func (r *MemoryRepository) GetAppointmentByFolio(ctx context.Context, folio string) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.appointments[folio]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

func (r *MemoryRepository) CreateAppointment(ctx context.Context, appt *Appointment) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.appointments {
		if existing.Date == appt.Date &&
			existing.StartMinute == appt.StartMinute &&
			existing.Status != StatusCancelled {
			return nil, ErrSlotTaken
		}
	}

	stored := *appt
	now := time.Now()
	stored.CreatedAt = now
	stored.UpdatedAt = now
	r.appointments[stored.Folio] = stored

	return &stored, nil
}

func (r *MemoryRepository) UpdateAppointmentStatus(ctx context.Context, folio string, from, to Status) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.appointments[folio]
	if !ok || a.Status != from {
		return nil, ErrAppointmentNotFound
	}

	a.Status = to
	a.UpdatedAt = time.Now()
	r.appointments[folio] = a

	return &a, nil
}

func (r *MemoryRepository) NextFolioSeq(ctx context.Context, year int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.folioSeqs[year]++
	return r.folioSeqs[year], nil
}

func (r *MemoryRepository) ListBlocksByDate(ctx context.Context, date string) ([]BlockedPeriod, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []BlockedPeriod
	for _, b := range r.blocks {
		if b.Date == date {
			result = append(result, b)
		}
	}
	sortBlocks(result)
	return result, nil
}

func (r *MemoryRepository) ListBlocks(ctx context.Context) ([]BlockedPeriod, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []BlockedPeriod
	for _, b := range r.blocks {
		result = append(result, b)
	}
	sortBlocks(result)
	return result, nil
}

func sortBlocks(blocks []BlockedPeriod) {
	sort.Slice(blocks, func(i, j int) bool {
		if blocks[i].Date != blocks[j].Date {
			return blocks[i].Date < blocks[j].Date
		}
		// Whole-day blocks sort first, matching NULLS FIRST.
		switch {
		case blocks[i].WholeDay():
			return true
		case blocks[j].WholeDay():
			return false
		default:
			return *blocks[i].StartMinute < *blocks[j].StartMinute
		}
	})
}

func (r *MemoryRepository) CreateBlock(ctx context.Context, block *BlockedPeriod) (*BlockedPeriod, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := *block
	stored.CreatedAt = time.Now()
	r.blocks[stored.ID] = stored

	return &stored, nil
}

func (r *MemoryRepository) DeleteBlock(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.blocks[id]; !ok {
		return ErrBlockNotFound
	}
	delete(r.blocks, id)

	return nil
}

func (r *MemoryRepository) DeleteBlocksBefore(ctx context.Context, date string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for id, b := range r.blocks {
		if b.Date < date {
			delete(r.blocks, id)
			n++
		}
	}

	return n, nil
}

func (r *MemoryRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ev.ID = int64(len(r.events) + 1)
	r.events = append(r.events, ev)

	return nil
}
