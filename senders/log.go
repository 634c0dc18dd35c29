package senders

import (
	"context"

	"github.com/fiffu/ttquick/lib/models"
	"github.com/fiffu/ttquick/senders/email"
	"github.com/google/uuid"
)

// logSender writes emails to the log instead of delivering them.
type logSender struct {
	base
}

func (e *logSender) SendAvailability(ctx context.Context, user *models.User, n *models.Notification, loc *models.Location, slots []models.SlotInfo) (string, error) {
	format := &email.AvailabilityEmailFormat{
		User:         user,
		Notification: n,
		Location:     loc,
		Slots:        slots,
		ManageURL:    e.cfg.ServerDNS,
	}
	return e.send(format, user.Email), nil
}

func (e *logSender) SendWelcome(ctx context.Context, user *models.User) (string, error) {
	format := &email.WelcomeEmailFormat{User: user, ManageURL: e.cfg.ServerDNS}
	return e.send(format, user.Email), nil
}

func (e *logSender) send(format email.Format, recipient string) string {
	id := uuid.NewString()
	e.log.Sugar().Infow("Email not delivered, no provider configured",
		"message_id", id,
		"recipient", recipient,
		"subject", format.Subject(),
		"text", format.Text(),
	)
	return id
}
