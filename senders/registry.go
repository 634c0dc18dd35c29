package senders

import (
	"context"
	"net/http"

	"github.com/fiffu/ttquick/config"
	"github.com/fiffu/ttquick/lib/models"
	"go.uber.org/zap"
)

// Email is the registry key of the email sender.
const Email = "email"

type Sender interface {
	SendAvailability(ctx context.Context, user *models.User, n *models.Notification, loc *models.Location, slots []models.SlotInfo) (string, error)
	SendWelcome(ctx context.Context, user *models.User) (string, error)
}

type Registry map[string]Sender

func NewSenderRegistry(log *zap.Logger, cfg *config.Config, transport http.RoundTripper) Registry {
	base := base{log, cfg, transport}

	var email Sender
	switch cfg.Email.Provider {
	case config.EmailProviderMailgun:
		email = &mailgunSender{base}
	case config.EmailProviderMailjet:
		email = &mailjetSender{base}
	default:
		log.Sugar().Info("No email provider configured, emails will only be logged")
		email = &logSender{base}
	}

	return map[string]Sender{
		Email: email,
	}
}

type base struct {
	log       *zap.Logger
	cfg       *config.Config
	transport http.RoundTripper
}

func (b *base) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, b.cfg.Email.Timeout)
}
