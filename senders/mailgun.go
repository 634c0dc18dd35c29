package senders

import (
	"context"

	"github.com/fiffu/ttquick/lib/models"
	"github.com/fiffu/ttquick/senders/email"
	"github.com/mailgun/mailgun-go/v4"
)

type mailgunSender struct {
	base
}

func (e *mailgunSender) SendAvailability(ctx context.Context, user *models.User, n *models.Notification, loc *models.Location, slots []models.SlotInfo) (string, error) {
	format := &email.AvailabilityEmailFormat{
		User:         user,
		Notification: n,
		Location:     loc,
		Slots:        slots,
		ManageURL:    e.cfg.ServerDNS,
	}
	return e.send(ctx, format, user.Email)
}

func (e *mailgunSender) SendWelcome(ctx context.Context, user *models.User) (string, error) {
	format := &email.WelcomeEmailFormat{User: user, ManageURL: e.cfg.ServerDNS}
	return e.send(ctx, format, user.Email)
}

func (e *mailgunSender) send(ctx context.Context, format email.Format, recipient string) (string, error) {
	mg := mailgun.NewMailgun(e.cfg.Mailgun.Domain, e.cfg.Mailgun.APIKey)
	mg.Client().Transport = e.transport

	// Plain-text part first, then SetHtml so the MIME type is set properly.
	message := mg.NewMessage(e.cfg.Email.SenderFrom, format.Subject(), format.Text(), recipient)
	message.SetHtml(format.Body())

	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	_, id, err := mg.Send(ctx, message)
	return id, err
}
