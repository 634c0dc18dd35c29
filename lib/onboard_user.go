package lib

import (
	"context"

	"github.com/fiffu/ttquick/config"
	"github.com/fiffu/ttquick/lib/models"
	"github.com/fiffu/ttquick/senders"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type onboardUser struct {
	cfg     *config.Config
	log     *zap.Logger
	db      *gorm.DB
	senders senders.Registry
}

// OnboardUser registers the user or refreshes their profile. Quota counters
// of an existing user are left alone. New users with an email address get a
// welcome email.
func (svc *onboardUser) OnboardUser(ctx context.Context, userID, email, displayName string) (*models.User, error) {
	if err := validateUserID(userID); err != nil {
		return nil, err
	}

	user := &models.User{}
	var created bool
	err := svc.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		find := tx.Where("id = ?", userID).Limit(1).Find(user)
		if err := find.Error; err != nil {
			return err
		}

		if find.RowsAffected == 0 {
			*user = models.User{
				ID:                     userID,
				Email:                  email,
				DisplayName:            displayName,
				EmailNotifications:     true,
				NotificationsRemaining: svc.cfg.Quota.Initial,
			}
			created = true
			return tx.Create(user).Error
		}

		user.Email = email
		user.DisplayName = displayName
		return tx.Model(user).Select("email", "display_name").Updates(user).Error
	})
	if err != nil {
		return nil, err
	}

	if created {
		svc.log.Sugar().Infow("Created user", "user_id", userID)
		svc.sendWelcomeEmail(ctx, user)
	}
	return user, nil
}

func (svc *onboardUser) sendWelcomeEmail(ctx context.Context, user *models.User) {
	sender, ok := svc.senders[senders.Email]
	if !ok || user.Email == "" {
		return
	}
	id, err := sender.SendWelcome(ctx, user)
	if err != nil {
		svc.log.Sugar().Infow("Failed to send welcome email", "user_id", user.ID, "err", err)
	} else {
		svc.log.Sugar().Infow("Sent welcome email", "user_id", user.ID, "message_id", id)
	}
}

func (svc *onboardUser) GetUser(ctx context.Context, userID string) (*models.User, error) {
	if err := validateUserID(userID); err != nil {
		return nil, err
	}
	user := &models.User{}
	if err := svc.db.WithContext(ctx).First(user, "id = ?", userID).Error; err != nil {
		return nil, err
	}
	return user, nil
}

func (svc *onboardUser) UpdateNotificationSettings(ctx context.Context, userID string, emailNotifications bool) (*models.User, error) {
	if err := validateUserID(userID); err != nil {
		return nil, err
	}
	tx := svc.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", userID).
		Update("email_notifications", emailNotifications)
	if err := tx.Error; err != nil {
		return nil, err
	}
	if tx.RowsAffected == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return svc.GetUser(ctx, userID)
}
