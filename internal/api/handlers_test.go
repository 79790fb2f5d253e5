package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/donsiko12-rgb/mechanic-workshop/internal/booking"
	"github.com/donsiko12-rgb/mechanic-workshop/internal/config"
	redisclient "github.com/donsiko12-rgb/mechanic-workshop/internal/redis"
)

type testEnv struct {
	router   http.Handler
	clientID uuid.UUID
	oilID    uuid.UUID
	date     string // tomorrow, always bookable
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	repo := booking.NewMemoryRepository(booking.OperatingHours{
		OpenMinute:   9 * 60,
		CloseMinute:  18 * 60,
		SlotInterval: 30,
	})

	clientID := uuid.New()
	repo.AddClient(booking.Client{ID: clientID, Name: "Juan Pérez"})

	oilID := uuid.New()
	repo.AddService(booking.ServiceItem{ID: oilID, Name: "Cambio de Aceite", DurationMin: 30, Price: 500})

	svc := booking.NewService(repo, redisclient.NewLocalLocker(), config.Config{})

	router := NewRouter(RouterConfig{
		Service: svc,
		Env:     "test",
		Version: "test",
	})

	return &testEnv{
		router:   router,
		clientID: clientID,
		oilID:    oilID,
		date:     time.Now().AddDate(0, 0, 1).Format("2006-01-02"),
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode request body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) book(t *testing.T, clock string) AppointmentResponse {
	t.Helper()

	rec := e.do(t, http.MethodPost, "/appointments", BookAppointmentRequest{
		ClientID:  e.clientID.String(),
		ServiceID: e.oilID.String(),
		Date:      e.date,
		Time:      clock,
		Vehicle:   VehiclePayload{Make: "Nissan", Model: "Tsuru", Plate: "ABC-1234"},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("book at %s: status %d body %s", clock, rec.Code, rec.Body.String())
	}

	var resp AppointmentResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode booking response: %v", err)
	}
	return resp
}

func TestBookEndpoint(t *testing.T) {
	env := newTestEnv(t)

	resp := env.book(t, "10:00")

	if !booking.ValidFolio(resp.Folio) {
		t.Errorf("folio %q is malformed", resp.Folio)
	}
	if resp.Status != "confirmed" {
		t.Errorf("status %q, want confirmed", resp.Status)
	}
	if resp.Time != "10:00" {
		t.Errorf("time %q, want 10:00", resp.Time)
	}
	if resp.ServiceName != "Cambio de Aceite" || resp.Price != 500 {
		t.Errorf("service snapshot wrong: %+v", resp)
	}
}

func TestBookEndpoint_Conflict(t *testing.T) {
	env := newTestEnv(t)
	env.book(t, "10:00")

	rec := env.do(t, http.MethodPost, "/appointments", BookAppointmentRequest{
		ClientID:  env.clientID.String(),
		ServiceID: env.oilID.String(),
		Date:      env.date,
		Time:      "10:00",
		Vehicle:   VehiclePayload{Make: "VW", Model: "Jetta", Plate: "XYZ-0001"},
	})

	if rec.Code != http.StatusConflict {
		t.Fatalf("status %d, want 409", rec.Code)
	}

	var errResp ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &errResp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	if errResp.Error != "slot_conflict" {
		t.Errorf("error code %q, want slot_conflict", errResp.Error)
	}
}

func TestBookEndpoint_BadInput(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/appointments", BookAppointmentRequest{
		ClientID:  "not-a-uuid",
		ServiceID: env.oilID.String(),
		Date:      env.date,
		Time:      "10:00",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad client_id: status %d, want 400", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/appointments", BookAppointmentRequest{
		ClientID:  env.clientID.String(),
		ServiceID: env.oilID.String(),
		Date:      "2020-01-01",
		Time:      "10:00",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("past date: status %d, want 400", rec.Code)
	}
}

func TestSlotsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.book(t, "10:00")

	rec := env.do(t, http.MethodGet, fmt.Sprintf("/slots?date=%s&service_id=%s", env.date, env.oilID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d body %s", rec.Code, rec.Body.String())
	}

	var slots []SlotResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &slots); err != nil {
		t.Fatalf("decode slots: %v", err)
	}

	// 09:00-18:00, 30-minute grid, 30-minute service: 18 candidates.
	if len(slots) != 18 {
		t.Fatalf("got %d slots, want 18", len(slots))
	}

	byTime := make(map[string]bool)
	for _, s := range slots {
		byTime[s.Time] = s.Available
	}
	if byTime["10:00"] {
		t.Error("10:00 should be unavailable")
	}
	if !byTime["09:30"] || !byTime["10:30"] {
		t.Error("adjacent slots should stay available")
	}
}

func TestStatusEndpoints(t *testing.T) {
	env := newTestEnv(t)
	resp := env.book(t, "11:00")

	rec := env.do(t, http.MethodPost, "/appointments/"+resp.Folio+"/complete", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("complete: status %d body %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodPost, "/appointments/"+resp.Folio+"/cancel", nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("cancel after complete: status %d, want 409", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/appointments/TM-2099-0001/cancel", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown folio: status %d, want 404", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/appointments/garbage/cancel", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed folio: status %d, want 400", rec.Code)
	}
}

func TestQREndpoint(t *testing.T) {
	env := newTestEnv(t)
	resp := env.book(t, "12:00")

	rec := env.do(t, http.MethodGet, "/appointments/"+resp.Folio+"/qr", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d body %s", rec.Code, rec.Body.String())
	}

	var qr QRPayloadResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &qr); err != nil {
		t.Fatalf("decode qr response: %v", err)
	}

	want := fmt.Sprintf("FOLIO:%s|CLIENTE:Juan Pérez|AUTO:Nissan Tsuru|FECHA:%s 12:00", resp.Folio, env.date)
	if qr.Payload != want {
		t.Errorf("payload mismatch:\n got %q\nwant %q", qr.Payload, want)
	}
}

func TestBlockEndpoints(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/blocks", AddBlockRequest{
		Date: env.date,
		Time: WholeDaySentinel,
		Note: "inventario",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("add block: status %d body %s", rec.Code, rec.Body.String())
	}

	var block BlockResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &block); err != nil {
		t.Fatalf("decode block: %v", err)
	}
	if block.Time != WholeDaySentinel {
		t.Errorf("block time %q, want ALL", block.Time)
	}

	// Whole-day block: booking anything now conflicts.
	rec = env.do(t, http.MethodPost, "/appointments", BookAppointmentRequest{
		ClientID:  env.clientID.String(),
		ServiceID: env.oilID.String(),
		Date:      env.date,
		Time:      "09:00",
	})
	if rec.Code != http.StatusConflict {
		t.Errorf("booking on blocked day: status %d, want 409", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/blocks?date="+env.date, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list blocks: status %d", rec.Code)
	}
	var blocks []BlockResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &blocks); err != nil {
		t.Fatalf("decode blocks: %v", err)
	}
	if len(blocks) != 1 {
		t.Fatalf("got %d blocks, want 1", len(blocks))
	}

	rec = env.do(t, http.MethodDelete, "/blocks/"+block.ID, nil)
	if rec.Code != http.StatusNoContent {
		t.Errorf("delete block: status %d, want 204", rec.Code)
	}

	rec = env.do(t, http.MethodDelete, "/blocks/"+block.ID, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("delete missing block: status %d, want 404", rec.Code)
	}
}

func TestSettingsAndStatsEndpoints(t *testing.T) {
	env := newTestEnv(t)
	env.book(t, "09:00")

	rec := env.do(t, http.MethodGet, "/settings", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("settings: status %d", rec.Code)
	}
	var settings SettingsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &settings); err != nil {
		t.Fatalf("decode settings: %v", err)
	}
	if settings.OpeningTime != "09:00" || settings.ClosingTime != "18:00" || settings.SlotInterval != 30 {
		t.Errorf("unexpected settings: %+v", settings)
	}

	rec = env.do(t, http.MethodGet, "/stats?date="+env.date, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("stats: status %d", rec.Code)
	}
	var stats StatsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.Total != 1 || stats.Confirmed != 1 || stats.Revenue != 500 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestListAppointmentsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.book(t, "09:00")
	env.book(t, "10:00")

	rec := env.do(t, http.MethodGet, "/appointments?date="+env.date, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list by date: status %d", rec.Code)
	}
	var appts []AppointmentResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &appts); err != nil {
		t.Fatalf("decode appointments: %v", err)
	}
	if len(appts) != 2 {
		t.Fatalf("got %d appointments, want 2", len(appts))
	}
	if appts[0].Time != "09:00" || appts[1].Time != "10:00" {
		t.Errorf("appointments out of order: %s, %s", appts[0].Time, appts[1].Time)
	}

	rec = env.do(t, http.MethodGet, "/appointments?client_id="+env.clientID.String(), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list by client: status %d", rec.Code)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &appts); err != nil {
		t.Fatalf("decode appointments: %v", err)
	}
	if len(appts) != 2 {
		t.Errorf("got %d appointments for client, want 2", len(appts))
	}

	rec = env.do(t, http.MethodGet, "/appointments", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("no filters: status %d, want 400", rec.Code)
	}
}

func TestHealthLiveEndpoint(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/health/live", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}

	var resp LivenessResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode liveness: %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("status %q, want ok", resp.Status)
	}
}
