package app

import (
	"database/sql"
	"time"

	"github.com/fiffu/ttquick/lib/models"
)

type LocationView struct {
	ID                   models.LocationID `json:"id"`
	Name                 string            `json:"name"`
	ShortName            string            `json:"short_name"`
	Address              string            `json:"address"`
	AddressAdditional    string            `json:"address_additional"`
	City                 string            `json:"city"`
	State                string            `json:"state"`
	PostalCode           string            `json:"postal_code"`
	CountryCode          string            `json:"country_code"`
	PhoneNumber          string            `json:"phone_number"`
	TimeZone             string            `json:"time_zone"`
	Operational          bool              `json:"operational"`
	SubscriberCount      int               `json:"subscriber_count"`
	HasAvailability      bool              `json:"has_availability"`
	LastChecked          *string           `json:"last_checked"`
	LastAppointmentFound *string           `json:"last_appointment_found"`
}

func (view LocationView) From(entity models.Location) LocationView {
	return LocationView{
		ID:                   entity.ID,
		Name:                 entity.DisplayName(),
		ShortName:            entity.ShortName,
		Address:              entity.Address,
		AddressAdditional:    entity.AddressAdditional,
		City:                 entity.City,
		State:                entity.State,
		PostalCode:           entity.PostalCode,
		CountryCode:          entity.CountryCode,
		PhoneNumber:          entity.PhoneNumber,
		TimeZone:             entity.TimeZone,
		Operational:          entity.Operational,
		SubscriberCount:      entity.SubscriberCount,
		HasAvailability:      entity.HasAvailability,
		LastChecked:          isoformat(entity.LastChecked),
		LastAppointmentFound: isoformat(entity.LastAppointmentFound),
	}
}

type UserView struct {
	ID                     string  `json:"id"`
	Email                  string  `json:"email"`
	DisplayName            string  `json:"display_name"`
	EmailNotifications     bool    `json:"email_notifications"`
	NotificationsRemaining int     `json:"notifications_remaining"`
	DailyNotificationsSent int     `json:"daily_notifications_sent"`
	LastNotificationReset  *string `json:"last_notification_reset"`
}

func (view UserView) From(entity models.User) UserView {
	return UserView{
		ID:                     entity.ID,
		Email:                  entity.Email,
		DisplayName:            entity.DisplayName,
		EmailNotifications:     entity.EmailNotifications,
		NotificationsRemaining: entity.NotificationsRemaining,
		DailyNotificationsSent: entity.DailyNotificationsSent,
		LastNotificationReset:  isoformat(entity.LastNotificationReset),
	}
}

type SubscriptionView struct {
	UserID     string            `json:"user_id"`
	LocationID models.LocationID `json:"location_id"`
	SelectedAt string            `json:"selected_at"`
}

func (view SubscriptionView) From(entity models.Subscription) SubscriptionView {
	return SubscriptionView{
		UserID:     entity.UserID,
		LocationID: entity.LocationID,
		SelectedAt: entity.SelectedAt.UTC().Format(time.RFC3339),
	}
}

type NotificationView struct {
	ID           string            `json:"id"`
	LocationID   models.LocationID `json:"location_id"`
	LocationName string            `json:"location_name"`
	Message      string            `json:"message"`
	CreatedAt    string            `json:"created_at"`
	Read         bool              `json:"read"`
}

func (view NotificationView) From(entity models.Notification) NotificationView {
	return NotificationView{
		ID:           entity.ID,
		LocationID:   entity.LocationID,
		LocationName: entity.LocationName,
		Message:      entity.Message,
		CreatedAt:    entity.CreatedAt.UTC().Format(time.RFC3339),
		Read:         entity.Read,
	}
}

type SystemCheckView struct {
	LastCheck string `json:"last_check"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	Active    int    `json:"active"`
	Due       int    `json:"due"`
	Checked   int    `json:"checked"`
	Found     int    `json:"found"`
	Failed    int    `json:"failed"`
	Notified  int    `json:"notified"`
}

func (view SystemCheckView) From(entity models.SystemCheck) SystemCheckView {
	return SystemCheckView{
		LastCheck: entity.LastCheck.UTC().Format(time.RFC3339),
		Status:    entity.Status,
		Error:     entity.Error,
		Active:    entity.Active,
		Due:       entity.Due,
		Checked:   entity.Checked,
		Found:     entity.Found,
		Failed:    entity.Failed,
		Notified:  entity.Notified,
	}
}

type Fromable[Entity any, Repr any] interface {
	From(Entity) Repr
}

func FromMany[T any, U Fromable[T, U]](elems []T) []U {
	out := make([]U, len(elems))
	for i, t := range elems {
		var u U
		out[i] = u.From(t)
	}
	return out
}

func isoformat(t sql.NullTime) *string {
	if !t.Valid {
		return nil
	}
	s := t.Time.UTC().Format(time.RFC3339)
	return &s
}
