package models

import "time"

// EventType tags an attendance event as an arrival or a departure.
type EventType string

const (
	EventTypeArrival   EventType = "arrival"
	EventTypeDeparture EventType = "departure"
)

// Valid returns true when the type is a supported value.
func (t EventType) Valid() bool {
	return t == EventTypeArrival || t == EventTypeDeparture
}

// Label returns the localized report label for the event type.
func (t EventType) Label() string {
	if t == EventTypeArrival {
		return "Arrivée"
	}
	return "Départ"
}

// SignatureConfirmed is the sentinel stored when a submitter gives a simple
// confirmation instead of drawing a signature. Signatures are opaque and
// never validated for authenticity.
const SignatureConfirmed = "confirmed"

// AttendanceEvent is a row of the attendance ledger. Either DriverID points
// at a registered driver (with matricule denormalized for reporting) or the
// inline name pair captures an unregistered kiosk submitter.
type AttendanceEvent struct {
	ID            int64     `db:"id" json:"id"`
	DriverID      *int64    `db:"driver_id" json:"driver_id,omitempty"`
	FirstName     *string   `db:"first_name" json:"first_name,omitempty"`
	LastName      *string   `db:"last_name" json:"last_name,omitempty"`
	Matricule     string    `db:"matricule" json:"matricule"`
	Type          EventType `db:"type" json:"type"`
	OccurredAt    time.Time `db:"occurred_at" json:"occurred_at"`
	Latitude      *float64  `db:"latitude" json:"latitude,omitempty"`
	Longitude     *float64  `db:"longitude" json:"longitude,omitempty"`
	SignatureData *string   `db:"signature_data" json:"signature_data,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// ReportPeriod selects the day range of an export.
type ReportPeriod string

const (
	PeriodToday ReportPeriod = "today"
	PeriodWeek  ReportPeriod = "week"
	PeriodMonth ReportPeriod = "month"
	PeriodAll   ReportPeriod = "all"
)

// Valid returns true when the period is a supported value.
func (p ReportPeriod) Valid() bool {
	switch p {
	case PeriodToday, PeriodWeek, PeriodMonth, PeriodAll:
		return true
	default:
		return false
	}
}

// ReportFormat selects the rendering of an export.
type ReportFormat string

const (
	FormatCSV ReportFormat = "csv"
	FormatPDF ReportFormat = "pdf"
)

// Valid returns true when the format is a supported value.
func (f ReportFormat) Valid() bool {
	return f == FormatCSV || f == FormatPDF
}

// HistoryEntry annotates a ledger row for the driver history view.
type HistoryEntry struct {
	ID      int64     `json:"id"`
	Type    EventType `json:"type"`
	Date    string    `json:"date"`
	Time    string    `json:"time"`
	IsToday bool      `json:"is_today"`
	DaysAgo int       `json:"days_ago"`
}

// PresenceStatus is the derived per-driver status for a given day.
type PresenceStatus struct {
	Present        bool    `json:"present"`
	LastActionTime *string `json:"last_action_time,omitempty"`
}

// DriverStatus is a dashboard row: a driver plus its derived status.
type DriverStatus struct {
	ID             int64   `json:"id"`
	Name           string  `json:"name"`
	Matricule      string  `json:"matricule"`
	Phone          *string `json:"phone,omitempty"`
	IsPresent      bool    `json:"is_present"`
	LastActionTime *string `json:"last_action_time,omitempty"`
	ManagerName    string  `json:"manager_name,omitempty"`
}

// DashboardStats aggregates board-level counters.
type DashboardStats struct {
	TotalDrivers int `json:"total_drivers"`
}

// Dashboard is the full status board payload.
type Dashboard struct {
	Drivers []DriverStatus `json:"drivers"`
	Stats   DashboardStats `json:"stats"`
}
