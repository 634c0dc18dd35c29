package models

import (
	"time"
)

// Subscription is a user's interest in one location, keyed by (UserID, LocationID).
type Subscription struct {
	UserID     string     `gorm:"primaryKey"`
	LocationID LocationID `gorm:"primaryKey;autoIncrement:false;index"`
	SelectedAt time.Time
}
