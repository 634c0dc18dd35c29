package models

import (
	"time"
)

type Notification struct {
	ID           string     `gorm:"primaryKey"`
	UserID       string     `gorm:"index:idx_user_created"`
	LocationID   LocationID `gorm:"index"`
	LocationName string
	Message      string
	CreatedAt    time.Time `gorm:"index:idx_user_created"`
	Read         bool
}

type Notifications []Notification
