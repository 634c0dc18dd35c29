package models

import (
	"database/sql"
	"time"
)

// User holds notification preferences and quota counters for an
// authenticated account. The ID is issued by the identity provider.
type User struct {
	ID                 string `gorm:"primaryKey"`
	Email              string
	DisplayName        string
	EmailNotifications bool

	NotificationsRemaining int // Lifetime cap
	DailyNotificationsSent int
	LastNotificationReset  sql.NullTime

	CreatedAt time.Time
	UpdatedAt time.Time
}
