package models

import (
	"database/sql"
	"time"
)

type Location struct {
	ID                LocationID `gorm:"primaryKey;autoIncrement:false"`
	Name              string
	ShortName         string
	Address           string
	AddressAdditional string
	City              string `gorm:"index"`
	State             string `gorm:"index"`
	PostalCode        string
	CountryCode       string
	PhoneNumber       string
	TimeZone          string
	Operational       bool

	LastChecked          sql.NullTime
	LastAppointmentFound sql.NullTime
	HasAvailability      bool // Outcome of the most recent successful check

	SubscriberCount int       `gorm:"index"`
	Subscribers     StringSet `gorm:"serializer:json"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

type Locations []Location

// Consistent reports whether the denormalized count matches the subscriber set.
func (l *Location) Consistent() bool {
	return l.SubscriberCount == len(l.Subscribers)
}

func (l *Location) Active() bool {
	return l.Operational && l.SubscriberCount > 0
}

// DisplayName is used in notification messages.
func (l *Location) DisplayName() string {
	if l.Name != "" {
		return l.Name
	}
	return "Unknown Location"
}
