package senders

import (
	"context"
	"fmt"
	"net/mail"

	"github.com/fiffu/ttquick/lib/models"
	"github.com/fiffu/ttquick/senders/email"
	"github.com/mailjet/mailjet-apiv3-go"
)

type mailjetSender struct {
	base
}

func (e *mailjetSender) SendAvailability(ctx context.Context, user *models.User, n *models.Notification, loc *models.Location, slots []models.SlotInfo) (string, error) {
	format := &email.AvailabilityEmailFormat{
		User:         user,
		Notification: n,
		Location:     loc,
		Slots:        slots,
		ManageURL:    e.cfg.ServerDNS,
	}
	return e.send(ctx, format, user)
}

func (e *mailjetSender) SendWelcome(ctx context.Context, user *models.User) (string, error) {
	format := &email.WelcomeEmailFormat{User: user, ManageURL: e.cfg.ServerDNS}
	return e.send(ctx, format, user)
}

func (e *mailjetSender) send(ctx context.Context, format email.Format, user *models.User) (string, error) {
	from, err := mail.ParseAddress(e.cfg.Email.SenderFrom)
	if err != nil {
		return "", fmt.Errorf("parse sender address: %w", err)
	}

	clt := mailjet.NewMailjetClient(e.cfg.Mailjet.PublicKey, e.cfg.Mailjet.PrivateKey)
	info := []mailjet.InfoMessagesV31{{
		From:     &mailjet.RecipientV31{Email: from.Address, Name: from.Name},
		To:       &mailjet.RecipientsV31{mailjet.RecipientV31{Email: user.Email, Name: user.DisplayName}},
		Subject:  format.Subject(),
		TextPart: format.Text(),
		HTMLPart: format.Body(),
	}}
	msgs := mailjet.MessagesV31{Info: info}

	// The client has no context support, so the timeout only bounds how long we wait.
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	type result struct {
		res *mailjet.ResultsV31
		err error
	}
	done := make(chan result, 1)
	go func() {
		res, err := clt.SendMailV31(&msgs)
		done <- result{res, err}
	}()

	select {
	case <-ctx.Done():
		return "", fmt.Errorf("could not send mail: %w", ctx.Err())
	case r := <-done:
		if r.err != nil {
			return "", fmt.Errorf("could not send mail: %w", r.err)
		}
		return messageUUID(r.res), nil
	}
}

func messageUUID(res *mailjet.ResultsV31) string {
	if res == nil || len(res.ResultsV31) == 0 || len(res.ResultsV31[0].To) == 0 {
		return ""
	}
	return res.ResultsV31[0].To[0].MessageUUID
}
