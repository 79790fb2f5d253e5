package api

import (
	"time"

	"github.com/donsiko12-rgb/mechanic-workshop/internal/booking"
)

// WholeDaySentinel marks a blocked period covering the full operating
// day. The admin UI has always sent "ALL" for this; keep accepting it.
const WholeDaySentinel = "ALL"

type BookAppointmentRequest struct {
	ClientID  string         `json:"client_id"`
	ServiceID string         `json:"service_id"`
	Date      string         `json:"date"`
	Time      string         `json:"time"`
	Vehicle   VehiclePayload `json:"vehicle"`
}

type VehiclePayload struct {
	Make  string `json:"make"`
	Model string `json:"model"`
	Plate string `json:"plate"`
}

type AppointmentResponse struct {
	Folio       string         `json:"folio"`
	ClientID    string         `json:"client_id"`
	ServiceID   string         `json:"service_id"`
	ServiceName string         `json:"service_name"`
	DurationMin int            `json:"duration_min"`
	Price       int            `json:"price"`
	Date        string         `json:"date"`
	Time        string         `json:"time"`
	Vehicle     VehiclePayload `json:"vehicle"`
	Status      string         `json:"status"`
	CreatedAt   time.Time      `json:"created_at"`
}

func toAppointmentResponse(a *booking.Appointment) AppointmentResponse {
	return AppointmentResponse{
		Folio:       a.Folio,
		ClientID:    a.ClientID.String(),
		ServiceID:   a.ServiceID.String(),
		ServiceName: a.ServiceName,
		DurationMin: a.DurationMin,
		Price:       a.Price,
		Date:        a.Date,
		Time:        booking.ClockFromMinutes(a.StartMinute),
		Vehicle: VehiclePayload{
			Make:  a.Vehicle.Make,
			Model: a.Vehicle.Model,
			Plate: a.Vehicle.Plate,
		},
		Status:    string(a.Status),
		CreatedAt: a.CreatedAt,
	}
}

type SlotResponse struct {
	Time      string `json:"time"`
	Available bool   `json:"available"`
}

type ServiceResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DurationMin int    `json:"duration_min"`
	Price       int    `json:"price"`
	Icon        string `json:"icon,omitempty"`
}

type AddBlockRequest struct {
	Date string `json:"date"`
	Time string `json:"time"` // HH:MM, empty or "ALL" for the whole day
	Note string `json:"note"`
}

type BlockResponse struct {
	ID        string    `json:"id"`
	Date      string    `json:"date"`
	Time      string    `json:"time"` // "ALL" for whole-day blocks
	Note      string    `json:"note,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func toBlockResponse(b *booking.BlockedPeriod) BlockResponse {
	t := WholeDaySentinel
	if !b.WholeDay() {
		t = booking.ClockFromMinutes(*b.StartMinute)
	}
	return BlockResponse{
		ID:        b.ID.String(),
		Date:      b.Date,
		Time:      t,
		Note:      b.Note,
		CreatedAt: b.CreatedAt,
	}
}

type SettingsResponse struct {
	OpeningTime  string `json:"opening_time"`
	ClosingTime  string `json:"closing_time"`
	SlotInterval int    `json:"slot_interval"`
}

type StatsResponse struct {
	Date      string `json:"date"`
	Total     int    `json:"total"`
	Confirmed int    `json:"confirmed"`
	Revenue   int    `json:"revenue"`
}

type QRPayloadResponse struct {
	Folio   string `json:"folio"`
	Payload string `json:"payload"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
