package models

import "time"

const (
	AppointmentChecks = "appointmentChecks"

	CheckStatusSuccess = "success"
	CheckStatusError   = "error"
)

// SystemCheck records the outcome of the latest poller tick.
type SystemCheck struct {
	ID        string `gorm:"primaryKey"`
	LastCheck time.Time
	Status    string
	Error     string

	Active   int
	Due      int
	Checked  int
	Found    int
	Failed   int
	Notified int
}
