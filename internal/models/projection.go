package models

import (
	"encoding/json"
	"time"
)

// ProjectionStatus is the forecast for one future date.
type ProjectionStatus string

const (
	ProjectionScheduled       ProjectionStatus = "scheduled"
	ProjectionSkippedPaused   ProjectionStatus = "skipped_paused"
	ProjectionSkippedWeekend  ProjectionStatus = "skipped_weekend"
	ProjectionSkippedNoCredit ProjectionStatus = "skipped_no_credit"
	ProjectionSkippedInactive ProjectionStatus = "skipped_inactive"
)

// ProjectionEntry is ephemeral: it describes one date within one run.
type ProjectionEntry struct {
	Date   time.Time        `json:"date"`
	Status ProjectionStatus `json:"status"`
}

func (e ProjectionEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Date   string           `json:"date"`
		Status ProjectionStatus `json:"status"`
	}{e.Date.Format("2006-01-02"), e.Status})
}

// DayStatus values used by the month view for dates that are not in the
// future.
const (
	DayDelivered = "delivered"
	DayOrdered   = "ordered"
	DayNoOrder   = "none"
	DayToday     = "today"
)

// DayView is one cell of the month calendar.
type DayView struct {
	Date   time.Time `json:"-"`
	Status string    `json:"status"`
	Paused bool      `json:"paused"`
}

func (d DayView) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Date   string `json:"date"`
		Status string `json:"status"`
		Paused bool   `json:"paused"`
	}{d.Date.Format("2006-01-02"), d.Status, d.Paused})
}
