package booking

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrServiceNotFound     = errors.New("service not found")
	ErrClientNotFound      = errors.New("client not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrBlockNotFound       = errors.New("blocked period not found")

	// ErrSlotTaken is returned by CreateAppointment when another
	// non-cancelled appointment already holds the same (date, start)
	// key. It is the storage-level backstop behind the availability
	// recheck.
	ErrSlotTaken = errors.New("slot already taken")
)

// Repository contains all DB interactions needed by the service.
type Repository interface {
	GetOperatingHours(ctx context.Context) (OperatingHours, error)

	ListServices(ctx context.Context) ([]ServiceItem, error)
	GetServiceByID(ctx context.Context, id uuid.UUID) (*ServiceItem, error)

	GetClientByID(ctx context.Context, id uuid.UUID) (*Client, error)

	ListAppointmentsByDate(ctx context.Context, date string) ([]Appointment, error)
	ListAppointmentsByClient(ctx context.Context, clientID uuid.UUID) ([]Appointment, error)
	GetAppointmentByFolio(ctx context.Context, folio string) (*Appointment, error)

	// Creation and status updates
	CreateAppointment(ctx context.Context, appt *Appointment) (*Appointment, error)
	UpdateAppointmentStatus(ctx context.Context, folio string, from, to Status) (*Appointment, error)

	// Folio sequence, scoped per year
	NextFolioSeq(ctx context.Context, year int) (int, error)

	// Blocked periods
	ListBlocksByDate(ctx context.Context, date string) ([]BlockedPeriod, error)
	ListBlocks(ctx context.Context) ([]BlockedPeriod, error)
	CreateBlock(ctx context.Context, block *BlockedPeriod) (*BlockedPeriod, error)
	DeleteBlock(ctx context.Context, id uuid.UUID) error

	// Janitor
	DeleteBlocksBefore(ctx context.Context, date string) (int64, error)

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error
}
