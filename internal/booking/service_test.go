package booking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/donsiko12-rgb/mechanic-workshop/internal/config"
	redisclient "github.com/donsiko12-rgb/mechanic-workshop/internal/redis"
)

type fixture struct {
	repo   *MemoryRepository
	svc    *Service
	client Client
	oil    ServiceItem
	tuneUp ServiceItem
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	repo := NewMemoryRepository(defaultHours())

	client := Client{ID: uuid.New(), Name: "Juan Pérez"}
	repo.AddClient(client)

	oil := ServiceItem{ID: uuid.New(), Name: "Cambio de Aceite", DurationMin: 30, Price: 500}
	tuneUp := ServiceItem{ID: uuid.New(), Name: "Afinación Mayor", DurationMin: 120, Price: 2500}
	repo.AddService(oil)
	repo.AddService(tuneUp)

	svc := NewService(repo, redisclient.NewLocalLocker(), config.Config{})
	svc.now = func() time.Time {
		return time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	}

	return &fixture{repo: repo, svc: svc, client: client, oil: oil, tuneUp: tuneUp}
}

func (f *fixture) request(serviceID uuid.UUID, date, clock string) BookingRequest {
	return BookingRequest{
		ClientID:  f.client.ID,
		ServiceID: serviceID,
		Date:      date,
		Time:      clock,
		Vehicle:   Vehicle{Make: "Nissan", Model: "Tsuru", Plate: "ABC-1234"},
	}
}

func TestBook_Success(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	appt, err := f.svc.Book(ctx, f.request(f.oil.ID, "2026-03-02", "10:00"))
	if err != nil {
		t.Fatalf("Book failed: %v", err)
	}

	if appt.Folio != "TM-2026-0001" {
		t.Errorf("folio %q, want TM-2026-0001", appt.Folio)
	}
	if appt.Status != StatusConfirmed {
		t.Errorf("status %q, want confirmed", appt.Status)
	}
	if appt.StartMinute != 600 {
		t.Errorf("start minute %d, want 600", appt.StartMinute)
	}
	if appt.ServiceName != "Cambio de Aceite" || appt.Price != 500 || appt.DurationMin != 30 {
		t.Errorf("service snapshot wrong: %+v", appt)
	}

	// Second booking the same year continues the sequence.
	appt2, err := f.svc.Book(ctx, f.request(f.oil.ID, "2026-03-02", "11:00"))
	if err != nil {
		t.Fatalf("second Book failed: %v", err)
	}
	if appt2.Folio != "TM-2026-0002" {
		t.Errorf("folio %q, want TM-2026-0002", appt2.Folio)
	}

	events := f.repo.Events()
	if len(events) != 2 {
		t.Fatalf("expected 2 event log entries, got %d", len(events))
	}
	if events[0].EventType != EventAppointmentBooked || events[0].Folio == nil || *events[0].Folio != appt.Folio {
		t.Errorf("unexpected first event: %+v", events[0])
	}
}

func TestBook_SlotConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Book(ctx, f.request(f.oil.ID, "2026-03-02", "10:00")); err != nil {
		t.Fatalf("first Book failed: %v", err)
	}

	_, err := f.svc.Book(ctx, f.request(f.oil.ID, "2026-03-02", "10:00"))
	if !errors.Is(err, ErrSlotConflict) {
		t.Fatalf("expected ErrSlotConflict, got %v", err)
	}
}

func TestBook_OverlapWithLongerService(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Tune-up 12:00-14:00 occupies four 30-minute slots.
	if _, err := f.svc.Book(ctx, f.request(f.tuneUp.ID, "2026-03-02", "12:00")); err != nil {
		t.Fatalf("tune-up Book failed: %v", err)
	}

	for _, clock := range []string{"12:00", "12:30", "13:00", "13:30"} {
		_, err := f.svc.Book(ctx, f.request(f.oil.ID, "2026-03-02", clock))
		if !errors.Is(err, ErrSlotConflict) {
			t.Errorf("booking at %s: expected ErrSlotConflict, got %v", clock, err)
		}
	}

	// Ends exactly at 12:00 and starts exactly at 14:00: both legal.
	if _, err := f.svc.Book(ctx, f.request(f.oil.ID, "2026-03-02", "11:30")); err != nil {
		t.Errorf("booking at 11:30 should succeed: %v", err)
	}
	if _, err := f.svc.Book(ctx, f.request(f.oil.ID, "2026-03-02", "14:00")); err != nil {
		t.Errorf("booking at 14:00 should succeed: %v", err)
	}
}

func TestBook_InvalidRequests(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []struct {
		name string
		req  BookingRequest
	}{
		{"past date", f.request(f.oil.ID, "2026-02-28", "10:00")},
		{"garbage date", f.request(f.oil.ID, "01/03/2026", "10:00")},
		{"garbage time", f.request(f.oil.ID, "2026-03-02", "10h00")},
		{"unaligned time", f.request(f.oil.ID, "2026-03-02", "10:15")},
		{"before opening", f.request(f.oil.ID, "2026-03-02", "08:00")},
		{"after closing", f.request(f.oil.ID, "2026-03-02", "18:00")},
	}

	for _, c := range cases {
		_, err := f.svc.Book(ctx, c.req)
		if !errors.Is(err, ErrInvalidRequest) {
			t.Errorf("%s: expected ErrInvalidRequest, got %v", c.name, err)
		}
	}

	if _, err := f.svc.Book(ctx, f.request(uuid.New(), "2026-03-02", "10:00")); !errors.Is(err, ErrServiceNotFound) {
		t.Errorf("unknown service: expected ErrServiceNotFound")
	}

	req := f.request(f.oil.ID, "2026-03-02", "10:00")
	req.ClientID = uuid.New()
	if _, err := f.svc.Book(ctx, req); !errors.Is(err, ErrClientNotFound) {
		t.Errorf("unknown client: expected ErrClientNotFound")
	}
}

func TestBook_ConcurrentSameSlot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const attempts = 16

	var wg sync.WaitGroup
	errs := make([]error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Book(ctx, f.request(f.oil.ID, "2026-03-02", "09:00"))
		}(i)
	}
	wg.Wait()

	var successes, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, ErrSlotConflict):
			conflicts++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}

	if successes != 1 {
		t.Errorf("expected exactly 1 success, got %d", successes)
	}
	if conflicts != attempts-1 {
		t.Errorf("expected %d conflicts, got %d", attempts-1, conflicts)
	}
}

// staleReadRepo simulates a reader that misses just-committed rows, so
// the in-lock recheck passes and only the storage unique key can stop
// the double booking.
type staleReadRepo struct {
	*MemoryRepository
}

func (r *staleReadRepo) ListAppointmentsByDate(ctx context.Context, date string) ([]Appointment, error) {
	return nil, nil
}

func TestBook_UniqueKeyBackstop(t *testing.T) {
	repo := NewMemoryRepository(defaultHours())

	client := Client{ID: uuid.New(), Name: "Ana López"}
	repo.AddClient(client)
	oil := ServiceItem{ID: uuid.New(), Name: "Cambio de Aceite", DurationMin: 30, Price: 500}
	repo.AddService(oil)

	svc := NewService(&staleReadRepo{repo}, redisclient.NewLocalLocker(), config.Config{})
	svc.now = func() time.Time {
		return time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	}

	req := BookingRequest{
		ClientID:  client.ID,
		ServiceID: oil.ID,
		Date:      "2026-03-02",
		Time:      "09:00",
		Vehicle:   Vehicle{Make: "VW", Model: "Jetta", Plate: "XYZ-9876"},
	}

	ctx := context.Background()
	if _, err := svc.Book(ctx, req); err != nil {
		t.Fatalf("first Book failed: %v", err)
	}

	_, err := svc.Book(ctx, req)
	if !errors.Is(err, ErrSlotConflict) {
		t.Fatalf("expected ErrSlotConflict from unique key, got %v", err)
	}
}

func TestUpdateStatus_Transitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	appt, err := f.svc.Book(ctx, f.request(f.oil.ID, "2026-03-02", "10:00"))
	if err != nil {
		t.Fatalf("Book failed: %v", err)
	}

	updated, err := f.svc.UpdateStatus(ctx, appt.Folio, StatusCompleted)
	if err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	if updated.Status != StatusCompleted {
		t.Errorf("status %q, want completed", updated.Status)
	}

	// Terminal: no further transitions.
	if _, err := f.svc.UpdateStatus(ctx, appt.Folio, StatusCancelled); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("completed→cancelled: expected ErrInvalidTransition, got %v", err)
	}

	// Target must be completed or cancelled.
	if _, err := f.svc.UpdateStatus(ctx, appt.Folio, StatusConfirmed); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("→confirmed: expected ErrInvalidTransition, got %v", err)
	}

	if _, err := f.svc.UpdateStatus(ctx, "TM-2026-9999", StatusCancelled); !errors.Is(err, ErrAppointmentNotFound) {
		t.Errorf("missing folio: expected ErrAppointmentNotFound, got %v", err)
	}
}

func TestCancel_FreesSlotButCompleteDoesNot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	appt, err := f.svc.Book(ctx, f.request(f.oil.ID, "2026-03-02", "10:00"))
	if err != nil {
		t.Fatalf("Book failed: %v", err)
	}

	if _, err := f.svc.Book(ctx, f.request(f.oil.ID, "2026-03-02", "10:00")); !errors.Is(err, ErrSlotConflict) {
		t.Fatalf("expected conflict while confirmed, got %v", err)
	}

	if _, err := f.svc.UpdateStatus(ctx, appt.Folio, StatusCancelled); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}

	// Cancelled appointments release their interval.
	rebooked, err := f.svc.Book(ctx, f.request(f.oil.ID, "2026-03-02", "10:00"))
	if err != nil {
		t.Fatalf("rebooking after cancel failed: %v", err)
	}

	// Completed ones keep occupying.
	if _, err := f.svc.UpdateStatus(ctx, rebooked.Folio, StatusCompleted); err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	if _, err := f.svc.Book(ctx, f.request(f.oil.ID, "2026-03-02", "10:00")); !errors.Is(err, ErrSlotConflict) {
		t.Errorf("expected conflict after completion, got %v", err)
	}
}

func TestBlocks_AffectAvailability(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	block, err := f.svc.AddBlock(ctx, "2026-03-02", "10:00", "comida")
	if err != nil {
		t.Fatalf("AddBlock failed: %v", err)
	}

	if _, err := f.svc.Book(ctx, f.request(f.oil.ID, "2026-03-02", "10:00")); !errors.Is(err, ErrSlotConflict) {
		t.Fatalf("expected conflict on blocked slot, got %v", err)
	}

	if err := f.svc.RemoveBlock(ctx, block.ID); err != nil {
		t.Fatalf("RemoveBlock failed: %v", err)
	}

	if _, err := f.svc.Book(ctx, f.request(f.oil.ID, "2026-03-02", "10:00")); err != nil {
		t.Errorf("booking after block removal failed: %v", err)
	}

	if err := f.svc.RemoveBlock(ctx, block.ID); !errors.Is(err, ErrBlockNotFound) {
		t.Errorf("removing twice: expected ErrBlockNotFound, got %v", err)
	}
}

func TestWholeDayBlock_ZeroAvailableSlots(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Even with an existing appointment the whole-day block wins.
	if _, err := f.svc.Book(ctx, f.request(f.oil.ID, "2026-03-02", "09:00")); err != nil {
		t.Fatalf("Book failed: %v", err)
	}

	if _, err := f.svc.AddBlock(ctx, "2026-03-02", "", "cerrado por inventario"); err != nil {
		t.Fatalf("AddBlock failed: %v", err)
	}

	slots, err := f.svc.SlotsForDate(ctx, "2026-03-02", f.oil.ID)
	if err != nil {
		t.Fatalf("SlotsForDate failed: %v", err)
	}

	for _, s := range slots {
		if s.Available {
			t.Errorf("slot %s available under whole-day block", ClockFromMinutes(s.StartMinute))
		}
	}
}

func TestBlockOverExistingAppointment_Allowed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Book(ctx, f.request(f.oil.ID, "2026-03-02", "10:00")); err != nil {
		t.Fatalf("Book failed: %v", err)
	}

	// Manual override: blocking over a confirmed appointment succeeds.
	if _, err := f.svc.AddBlock(ctx, "2026-03-02", "10:00", "taller ocupado"); err != nil {
		t.Errorf("AddBlock over appointment should succeed: %v", err)
	}
}

func TestQRPayload_ByteForByte(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	appt, err := f.svc.Book(ctx, f.request(f.oil.ID, "2026-03-02", "10:00"))
	if err != nil {
		t.Fatalf("Book failed: %v", err)
	}

	payload, err := f.svc.QRPayload(ctx, appt.Folio)
	if err != nil {
		t.Fatalf("QRPayload failed: %v", err)
	}

	want := fmt.Sprintf("FOLIO:%s|CLIENTE:Juan Pérez|AUTO:Nissan Tsuru|FECHA:2026-03-02 10:00", appt.Folio)
	if payload != want {
		t.Errorf("payload mismatch:\n got %q\nwant %q", payload, want)
	}
}

func TestStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a1, err := f.svc.Book(ctx, f.request(f.oil.ID, "2026-03-02", "09:00"))
	if err != nil {
		t.Fatalf("Book failed: %v", err)
	}
	if _, err := f.svc.Book(ctx, f.request(f.tuneUp.ID, "2026-03-02", "10:00")); err != nil {
		t.Fatalf("Book failed: %v", err)
	}
	a3, err := f.svc.Book(ctx, f.request(f.oil.ID, "2026-03-02", "09:30"))
	if err != nil {
		t.Fatalf("Book failed: %v", err)
	}

	if _, err := f.svc.UpdateStatus(ctx, a1.Folio, StatusCompleted); err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	if _, err := f.svc.UpdateStatus(ctx, a3.Folio, StatusCancelled); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}

	stats, err := f.svc.Stats(ctx, "2026-03-02")
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}

	if stats.Total != 2 {
		t.Errorf("total %d, want 2", stats.Total)
	}
	if stats.Confirmed != 1 {
		t.Errorf("confirmed %d, want 1", stats.Confirmed)
	}
	if stats.Revenue != 500+2500 {
		t.Errorf("revenue %d, want %d", stats.Revenue, 3000)
	}
}

func TestPruneOldBlocks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.AddBlock(ctx, "2026-03-02", "", "futuro"); err != nil {
		t.Fatalf("AddBlock failed: %v", err)
	}

	old := &BlockedPeriod{ID: uuid.New(), Date: "2025-12-01", Note: "viejo"}
	if _, err := f.repo.CreateBlock(ctx, old); err != nil {
		t.Fatalf("CreateBlock failed: %v", err)
	}

	pruned, err := f.svc.PruneOldBlocks(ctx, 30*24*time.Hour)
	if err != nil {
		t.Fatalf("PruneOldBlocks failed: %v", err)
	}
	if pruned != 1 {
		t.Errorf("pruned %d, want 1", pruned)
	}

	remaining, err := f.svc.ListBlocks(ctx, "")
	if err != nil {
		t.Fatalf("ListBlocks failed: %v", err)
	}
	if len(remaining) != 1 || remaining[0].Date != "2026-03-02" {
		t.Errorf("unexpected remaining blocks: %+v", remaining)
	}
}
