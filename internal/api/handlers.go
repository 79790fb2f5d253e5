package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/donsiko12-rgb/mechanic-workshop/internal/booking"
	redisclient "github.com/donsiko12-rgb/mechanic-workshop/internal/redis"
)

func listServicesHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		services, err := svc.ListServices(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		resp := make([]ServiceResponse, 0, len(services))
		for _, s := range services {
			resp = append(resp, ServiceResponse{
				ID:          s.ID.String(),
				Name:        s.Name,
				DurationMin: s.DurationMin,
				Price:       s.Price,
				Icon:        s.Icon,
			})
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func listSlotsHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		date := r.URL.Query().Get("date")
		if date == "" {
			writeError(w, http.StatusBadRequest, "missing_date", "date query parameter is required")
			return
		}

		serviceID, err := uuid.Parse(r.URL.Query().Get("service_id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_service_id", "service_id must be a valid UUID")
			return
		}

		slots, err := svc.SlotsForDate(r.Context(), date, serviceID)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		resp := make([]SlotResponse, 0, len(slots))
		for _, s := range slots {
			resp = append(resp, SlotResponse{
				Time:      booking.ClockFromMinutes(s.StartMinute),
				Available: s.Available,
			})
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func bookAppointmentHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BookAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		clientID, err := uuid.Parse(req.ClientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_client_id", "client_id must be a valid UUID")
			return
		}

		serviceID, err := uuid.Parse(req.ServiceID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_service_id", "service_id must be a valid UUID")
			return
		}

		appt, err := svc.Book(r.Context(), booking.BookingRequest{
			ClientID:  clientID,
			ServiceID: serviceID,
			Date:      req.Date,
			Time:      req.Time,
			Vehicle: booking.Vehicle{
				Make:  req.Vehicle.Make,
				Model: req.Vehicle.Model,
				Plate: req.Vehicle.Plate,
			},
		})
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func listAppointmentsHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		if clientIDStr := q.Get("client_id"); clientIDStr != "" {
			clientID, err := uuid.Parse(clientIDStr)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_client_id", "client_id must be a valid UUID")
				return
			}

			appts, err := svc.ListByClient(r.Context(), clientID)
			if err != nil {
				handleBookingError(w, err)
				return
			}
			writeAppointmentList(w, appts)
			return
		}

		date := q.Get("date")
		if date == "" {
			writeError(w, http.StatusBadRequest, "missing_date", "date or client_id query parameter is required")
			return
		}

		var status booking.Status
		if s := q.Get("status"); s != "" && s != "all" {
			status = booking.Status(s)
			switch status {
			case booking.StatusConfirmed, booking.StatusCompleted, booking.StatusCancelled:
			default:
				writeError(w, http.StatusBadRequest, "invalid_status", "status must be confirmed, completed or cancelled")
				return
			}
		}

		appts, err := svc.ListByDate(r.Context(), date, status)
		if err != nil {
			handleBookingError(w, err)
			return
		}
		writeAppointmentList(w, appts)
	}
}

func writeAppointmentList(w http.ResponseWriter, appts []booking.Appointment) {
	resp := make([]AppointmentResponse, 0, len(appts))
	for i := range appts {
		resp = append(resp, toAppointmentResponse(&appts[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

func getAppointmentHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		folio := chi.URLParam(r, "folio")
		if !booking.ValidFolio(folio) {
			writeError(w, http.StatusBadRequest, "invalid_folio", "folio must look like TM-2026-0001")
			return
		}

		appt, err := svc.GetAppointment(r.Context(), folio)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func qrPayloadHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		folio := chi.URLParam(r, "folio")
		if !booking.ValidFolio(folio) {
			writeError(w, http.StatusBadRequest, "invalid_folio", "folio must look like TM-2026-0001")
			return
		}

		payload, err := svc.QRPayload(r.Context(), folio)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, QRPayloadResponse{Folio: folio, Payload: payload})
	}
}

func updateStatusHandler(svc *booking.Service, to booking.Status) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		folio := chi.URLParam(r, "folio")
		if !booking.ValidFolio(folio) {
			writeError(w, http.StatusBadRequest, "invalid_folio", "folio must look like TM-2026-0001")
			return
		}

		appt, err := svc.UpdateStatus(r.Context(), folio, to)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func listBlocksHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		blocks, err := svc.ListBlocks(r.Context(), r.URL.Query().Get("date"))
		if err != nil {
			handleBookingError(w, err)
			return
		}

		resp := make([]BlockResponse, 0, len(blocks))
		for i := range blocks {
			resp = append(resp, toBlockResponse(&blocks[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func addBlockHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AddBlockRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		startClock := req.Time
		if startClock == WholeDaySentinel {
			startClock = ""
		}

		block, err := svc.AddBlock(r.Context(), req.Date, startClock, req.Note)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toBlockResponse(block))
	}
}

func removeBlockHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_block_id", "id must be a valid UUID")
			return
		}

		if err := svc.RemoveBlock(r.Context(), id); err != nil {
			handleBookingError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func getSettingsHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		hours, err := svc.OperatingHours(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		writeJSON(w, http.StatusOK, SettingsResponse{
			OpeningTime:  booking.ClockFromMinutes(hours.OpenMinute),
			ClosingTime:  booking.ClockFromMinutes(hours.CloseMinute),
			SlotInterval: hours.SlotInterval,
		})
	}
}

func getStatsHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		date := r.URL.Query().Get("date")
		if date == "" {
			writeError(w, http.StatusBadRequest, "missing_date", "date query parameter is required")
			return
		}

		stats, err := svc.Stats(r.Context(), date)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, StatsResponse{
			Date:      stats.Date,
			Total:     stats.Total,
			Confirmed: stats.Confirmed,
			Revenue:   stats.Revenue,
		})
	}
}

func handleBookingError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, booking.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, booking.ErrClientNotFound):
		writeError(w, http.StatusNotFound, "client_not_found", err.Error())
	case errors.Is(err, booking.ErrServiceNotFound):
		writeError(w, http.StatusNotFound, "service_not_found", err.Error())
	case errors.Is(err, booking.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, booking.ErrBlockNotFound):
		writeError(w, http.StatusNotFound, "block_not_found", err.Error())
	case errors.Is(err, booking.ErrSlotConflict):
		writeError(w, http.StatusConflict, "slot_conflict", err.Error())
	case errors.Is(err, booking.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_status_transition", err.Error())
	case errors.Is(err, booking.ErrDayBeingBooked),
		errors.Is(err, redisclient.ErrLockNotAcquired):
		writeError(w, http.StatusConflict, "day_being_booked", "another booking is in progress, please retry shortly")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
