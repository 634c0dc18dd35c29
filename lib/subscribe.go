package lib

import (
	"context"
	"fmt"
	"time"

	"github.com/fiffu/ttquick/config"
	"github.com/fiffu/ttquick/lib/models"
	"github.com/fiffu/ttquick/lib/registry"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type subscribe struct {
	cfg      *config.Config
	log      *zap.Logger
	db       *gorm.DB
	registry *registry.Registry
}

// Subscribe starts tracking a location for the user. Subscribing twice is a
// no-op; the subscription record and the location's subscriber set always
// change together.
func (svc *subscribe) Subscribe(ctx context.Context, userID string, locationID models.LocationID) (*models.Subscription, error) {
	if err := validateUserID(userID); err != nil {
		return nil, err
	}
	if !locationID.Valid() {
		return nil, fmt.Errorf("%w: %d", models.ErrInvalidLocationID, locationID)
	}

	var sub models.Subscription
	var created bool
	err := svc.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		find := tx.Where("user_id = ? AND location_id = ?", userID, locationID).Limit(1).Find(&sub)
		if err := find.Error; err != nil {
			return err
		}
		if find.RowsAffected > 0 {
			return nil
		}

		if _, err := svc.registry.In(tx).AddSubscriber(ctx, locationID, userID); err != nil {
			return fmt.Errorf("add subscriber: %w", err)
		}
		if err := svc.ensureUser(tx, userID); err != nil {
			return fmt.Errorf("ensure user: %w", err)
		}

		sub = models.Subscription{UserID: userID, LocationID: locationID, SelectedAt: time.Now().UTC()}
		created = true
		return tx.Create(&sub).Error
	})
	if err != nil {
		return nil, err
	}

	if created {
		svc.log.Sugar().Infow("Subscribed", "user_id", userID, "location_id", locationID)
	}
	return &sub, nil
}

// ensureUser creates the user with default quota unless it already exists.
func (svc *subscribe) ensureUser(tx *gorm.DB, userID string) error {
	user := &models.User{
		ID:                     userID,
		EmailNotifications:     true,
		NotificationsRemaining: svc.cfg.Quota.Initial,
	}
	return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(user).Error
}

// Unsubscribe stops tracking a location. Unsubscribing from a location the
// user does not follow is a no-op.
func (svc *subscribe) Unsubscribe(ctx context.Context, userID string, locationID models.LocationID) error {
	if err := validateUserID(userID); err != nil {
		return err
	}
	if !locationID.Valid() {
		return fmt.Errorf("%w: %d", models.ErrInvalidLocationID, locationID)
	}

	var removed bool
	err := svc.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		del := tx.Where("user_id = ? AND location_id = ?", userID, locationID).Delete(&models.Subscription{})
		if err := del.Error; err != nil {
			return err
		}
		if del.RowsAffected == 0 {
			return nil
		}

		if _, err := svc.registry.In(tx).RemoveSubscriber(ctx, locationID, userID); err != nil {
			return fmt.Errorf("remove subscriber: %w", err)
		}
		removed = true
		return nil
	})
	if err != nil {
		return err
	}

	if removed {
		svc.log.Sugar().Infow("Unsubscribed", "user_id", userID, "location_id", locationID)
	}
	return nil
}

// ListSubscribedLocations returns the user's locations in the order they
// were selected.
func (svc *subscribe) ListSubscribedLocations(ctx context.Context, userID string) (models.Locations, error) {
	if err := validateUserID(userID); err != nil {
		return nil, err
	}

	var locs models.Locations
	tx := svc.db.WithContext(ctx).
		Model(&models.Location{}).
		Select("locations.*").
		Joins("JOIN subscriptions ON subscriptions.location_id = locations.id").
		Where("subscriptions.user_id = ?", userID).
		Order("subscriptions.selected_at, locations.id").
		Find(&locs)
	if err := tx.Error; err != nil {
		return nil, err
	}
	return locs, nil
}
