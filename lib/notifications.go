package lib

import (
	"context"

	"github.com/fiffu/ttquick/lib/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type inbox struct {
	log *zap.Logger
	db  *gorm.DB
}

// ListNotifications returns the user's notifications, newest first.
func (svc *inbox) ListNotifications(ctx context.Context, userID string, unreadOnly bool) (models.Notifications, error) {
	if err := validateUserID(userID); err != nil {
		return nil, err
	}

	tx := svc.db.WithContext(ctx).Where("user_id = ?", userID)
	if unreadOnly {
		tx = tx.Where("read = ?", false)
	}

	var notifs models.Notifications
	if err := tx.Order("created_at desc, id").Find(&notifs).Error; err != nil {
		return nil, err
	}
	return notifs, nil
}

// MarkNotificationRead flags one of the user's notifications as read.
// Notifications of other users are reported as not found.
func (svc *inbox) MarkNotificationRead(ctx context.Context, userID, notificationID string) error {
	if err := validateUserID(userID); err != nil {
		return err
	}
	tx := svc.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("id = ? AND user_id = ?", notificationID, userID).
		Update("read", true)
	if err := tx.Error; err != nil {
		return err
	}
	if tx.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
