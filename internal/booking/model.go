package booking

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// OperatingHours describes the bookable span of a shop day in minutes
// since midnight. Open must be strictly before close and both must fall
// within a single day.
type OperatingHours struct {
	OpenMinute   int
	CloseMinute  int
	SlotInterval int
}

func (h OperatingHours) Valid() bool {
	return h.OpenMinute >= 0 &&
		h.OpenMinute < h.CloseMinute &&
		h.CloseMinute <= 24*60 &&
		h.SlotInterval > 0
}

// ServiceItem is one entry of the shop's service catalog. Read-only
// reference data; the engine only consumes its duration.
type ServiceItem struct {
	ID          uuid.UUID
	Name        string
	DurationMin int
	Price       int
	Icon        string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Client struct {
	ID        uuid.UUID
	Name      string
	Email     *string
	Phone     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Vehicle struct {
	Make  string
	Model string
	Plate string
}

// Appointment is a booked service visit. The folio is the primary
// identifier (TM-<year>-<seq>); it never changes and rows are never
// deleted, only moved through status transitions.
type Appointment struct {
	Folio       string
	ClientID    uuid.UUID
	ServiceID   uuid.UUID
	ServiceName string
	DurationMin int
	Price       int
	Date        string // YYYY-MM-DD
	StartMinute int
	Vehicle     Vehicle
	Status      Status
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Occupies reports whether the appointment still renders its time range
// unbookable. Cancelled appointments never occupy; completed ones keep
// their historical range.
func (a Appointment) Occupies() bool {
	return a.Status != StatusCancelled
}

// BlockedPeriod is an administrative reservation of shop time. A nil
// StartMinute blocks the whole operating day. Blocks have no status;
// existence alone makes the range unbookable.
type BlockedPeriod struct {
	ID          uuid.UUID
	Date        string
	StartMinute *int
	Note        string
	CreatedAt   time.Time
}

func (b BlockedPeriod) WholeDay() bool {
	return b.StartMinute == nil
}

// Slot is a derived candidate start time for a given (date, duration)
// query. Slots are recomputed on every query and never persisted.
type Slot struct {
	StartMinute int
	Available   bool
}

type EventLog struct {
	ID        int64
	EventType string
	Folio     *string
	Payload   []byte
	CreatedAt time.Time
}

type DayStats struct {
	Date      string
	Total     int
	Confirmed int
	Revenue   int
}
