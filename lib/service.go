package lib

import (
	"context"
	"errors"
	"strings"

	"github.com/fiffu/ttquick/config"
	"github.com/fiffu/ttquick/lib/models"
	"github.com/fiffu/ttquick/lib/poller"
	"github.com/fiffu/ttquick/lib/registry"
	"github.com/fiffu/ttquick/senders"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrInvalidUserID = errors.New("invalid user id")

const maxUserIDLength = 128

type Service struct {
	cfg      *config.Config
	log      *zap.Logger
	db       *gorm.DB
	registry *registry.Registry
	poller   *poller.Poller

	*onboardUser
	*subscribe
	*inbox
}

func NewService(cfg *config.Config, log *zap.Logger, db *gorm.DB, senders senders.Registry, reg *registry.Registry, poller *poller.Poller) *Service {
	return &Service{
		cfg, log, db, reg, poller,
		&onboardUser{cfg, log, db, senders},
		&subscribe{cfg, log, db, reg},
		&inbox{log, db},
	}
}

func validateUserID(userID string) error {
	if strings.TrimSpace(userID) == "" || len(userID) > maxUserIDLength {
		return ErrInvalidUserID
	}
	return nil
}

func (svc *Service) SearchLocations(ctx context.Context, q registry.Query) (models.Locations, error) {
	return svc.registry.Search(ctx, q)
}

func (svc *Service) Tick(ctx context.Context) (*poller.TickReport, error) {
	return svc.poller.Tick(ctx)
}

func (svc *Service) SyncLocations(ctx context.Context) (*registry.SyncStats, error) {
	return svc.poller.SyncDirectory(ctx)
}

func (svc *Service) LastCheck(ctx context.Context) (*models.SystemCheck, error) {
	return svc.poller.LastCheck(ctx)
}
