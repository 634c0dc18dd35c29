package notifier

import (
	"context"
	"fmt"
	"time"

	"github.com/fiffu/ttquick/config"
	"github.com/fiffu/ttquick/lib/models"
	"github.com/fiffu/ttquick/senders"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Notifier turns found slots into notification records, spending each
// user's quota, and emails the users who opted in.
type Notifier struct {
	db         *gorm.DB
	log        *zap.Logger
	senders    senders.Registry
	dailyLimit int
	now        func() time.Time
}

func NewNotifier(cfg *config.Config, log *zap.Logger, db *gorm.DB, senders senders.Registry) *Notifier {
	return &Notifier{db, log, senders, cfg.Quota.DailyLimit, time.Now}
}

// Message is the text stored on the notification record.
func Message(loc *models.Location, slots []models.SlotInfo) string {
	when := "an upcoming date"
	if len(slots) > 0 && slots[0].StartTimestamp != "" {
		when = slots[0].StartTimestamp
	}
	return fmt.Sprintf("Appointment available for %s on %s", loc.DisplayName(), when)
}

// Notify records one notification for every subscriber with quota left.
// Quota is spent and records are written in a single transaction; emails
// go out only after it commits and their failures do not refund quota.
func (n *Notifier) Notify(ctx context.Context, loc *models.Location, subscriberIDs []string, slots ...models.SlotInfo) (models.Notifications, error) {
	if len(subscriberIDs) == 0 {
		return nil, nil
	}

	createdAt := n.now().UTC()
	message := Message(loc, slots)

	var created models.Notifications
	err := n.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		created = nil
		for _, userID := range subscriberIDs {
			spent := tx.Model(&models.User{}).
				Where("id = ?", userID).
				Where("notifications_remaining > 0").
				Where("daily_notifications_sent < ?", n.dailyLimit).
				Updates(map[string]any{
					"notifications_remaining":  gorm.Expr("notifications_remaining - 1"),
					"daily_notifications_sent": gorm.Expr("daily_notifications_sent + 1"),
				})
			if err := spent.Error; err != nil {
				return fmt.Errorf("spend quota of user %s: %w", userID, err)
			}
			if spent.RowsAffected != 1 {
				n.log.Sugar().Infow("Skipping user without quota", "user_id", userID, "location_id", loc.ID)
				continue
			}

			notif := models.Notification{
				ID:           uuid.NewString(),
				UserID:       userID,
				LocationID:   loc.ID,
				LocationName: loc.DisplayName(),
				Message:      message,
				CreatedAt:    createdAt,
			}
			if err := tx.Create(&notif).Error; err != nil {
				return fmt.Errorf("create notification for user %s: %w", userID, err)
			}
			created = append(created, notif)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	n.log.Sugar().Infow("Recorded notifications",
		"location_id", loc.ID,
		"subscribers", len(subscriberIDs),
		"notified", len(created),
	)
	n.deliver(ctx, loc, created, slots)
	return created, nil
}

func (n *Notifier) deliver(ctx context.Context, loc *models.Location, notifs models.Notifications, slots []models.SlotInfo) {
	if len(notifs) == 0 {
		return
	}
	sender, ok := n.senders[senders.Email]
	if !ok {
		n.log.Sugar().Warn("No email sender registered, skipping delivery")
		return
	}

	userIDs := make([]string, len(notifs))
	for i, notif := range notifs {
		userIDs[i] = notif.UserID
	}
	var users []models.User
	if err := n.db.WithContext(ctx).Where("id IN ?", userIDs).Find(&users).Error; err != nil {
		n.log.Sugar().Errorw("Failed to load users for delivery", "location_id", loc.ID, "err", err)
		return
	}
	byID := make(map[string]*models.User, len(users))
	for i := range users {
		byID[users[i].ID] = &users[i]
	}

	for i := range notifs {
		user, ok := byID[notifs[i].UserID]
		if !ok || !user.EmailNotifications || user.Email == "" {
			continue
		}
		id, err := sender.SendAvailability(ctx, user, &notifs[i], loc, slots)
		if err != nil {
			n.log.Sugar().Errorw("Failed to send availability email", "user_id", user.ID, "location_id", loc.ID, "err", err)
			continue
		}
		n.log.Sugar().Infow("Sent availability email", "user_id", user.ID, "message_id", id)
	}
}

// ResetDailyQuotas zeroes the daily counter of every user not reset since
// boundary, the most recent reset-hour occurrence. Running it again before
// the next boundary changes nothing.
func (n *Notifier) ResetDailyQuotas(ctx context.Context, boundary, now time.Time) (int64, error) {
	// SQLite compares timestamps as text, so both sides stay in UTC.
	boundary, now = boundary.UTC(), now.UTC()
	tx := n.db.WithContext(ctx).
		Model(&models.User{}).
		Where("last_notification_reset IS NULL OR last_notification_reset < ?", boundary).
		Updates(map[string]any{
			"daily_notifications_sent": 0,
			"last_notification_reset":  now,
		})
	if err := tx.Error; err != nil {
		return 0, fmt.Errorf("reset daily quotas: %w", err)
	}
	if tx.RowsAffected > 0 {
		n.log.Sugar().Infow("Reset daily notification quotas", "users", tx.RowsAffected, "boundary", boundary)
	}
	return tx.RowsAffected, nil
}
