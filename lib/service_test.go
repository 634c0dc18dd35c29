package lib

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/fiffu/ttquick/lib/models"
	"github.com/fiffu/ttquick/lib/registry"
	"github.com/fiffu/ttquick/lib/testutil"
	"github.com/fiffu/ttquick/senders"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fakeSender struct {
	mu      sync.Mutex
	welcome []string
	err     error
}

func (f *fakeSender) SendAvailability(ctx context.Context, user *models.User, n *models.Notification, loc *models.Location, slots []models.SlotInfo) (string, error) {
	return "", nil
}

func (f *fakeSender) SendWelcome(ctx context.Context, user *models.User) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.welcome = append(f.welcome, user.ID)
	return "welcome-" + user.ID, f.err
}

func newTestService(t *testing.T) (*Service, *gorm.DB, *fakeSender) {
	cfg := testutil.NewConfig(t)
	db := testutil.NewDB(t)
	log := zap.NewNop()
	sender := &fakeSender{}
	svc := NewService(cfg, log, db, senders.Registry{senders.Email: sender}, registry.NewRegistry(db, log), nil)
	return svc, db, sender
}

func requireConsistent(t *testing.T, db *gorm.DB) {
	t.Helper()

	var locs models.Locations
	require.NoError(t, db.Find(&locs).Error)
	for _, loc := range locs {
		var subs []string
		require.NoError(t, db.Model(&models.Subscription{}).Where("location_id = ?", loc.ID).Order("user_id").Pluck("user_id", &subs).Error)

		assert.Equal(t, len(loc.Subscribers), loc.SubscriberCount, "location %s count", loc.ID)
		assert.ElementsMatch(t, subs, []string(loc.Subscribers), "location %s subscribers", loc.ID)
	}
}

func TestSubscribe(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()

	sub, err := svc.Subscribe(ctx, "u1", 42)
	require.NoError(t, err)
	assert.Equal(t, "u1", sub.UserID)
	assert.Equal(t, models.LocationID(42), sub.LocationID)

	loc, err := svc.registry.Get(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, 1, loc.SubscriberCount)
	assert.Equal(t, models.StringSet{"u1"}, loc.Subscribers)
	assert.True(t, loc.Operational)

	user, err := svc.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 10, user.NotificationsRemaining)
	assert.True(t, user.EmailNotifications)

	again, err := svc.Subscribe(ctx, "u1", 42)
	require.NoError(t, err)
	assert.True(t, again.SelectedAt.Equal(sub.SelectedAt), "resubscribing keeps the original record")

	var count int64
	require.NoError(t, db.Model(&models.Subscription{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
	requireConsistent(t, db)
}

func TestSubscribe_InvalidInput(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Subscribe(ctx, "", 42)
	assert.ErrorIs(t, err, ErrInvalidUserID)

	_, err = svc.Subscribe(ctx, "u1", 0)
	assert.ErrorIs(t, err, models.ErrInvalidLocationID)

	err = svc.Unsubscribe(ctx, "u1", -1)
	assert.ErrorIs(t, err, models.ErrInvalidLocationID)

	var count int64
	require.NoError(t, db.Model(&models.Location{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestSubscribe_RetiredLocation(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()
	require.NoError(t, db.Create(&models.Location{ID: 9, Name: "retired", Subscribers: models.StringSet{}}).Error)

	_, err := svc.Subscribe(ctx, "u1", 9)
	assert.ErrorIs(t, err, registry.ErrLocationRetired)

	var count int64
	require.NoError(t, db.Model(&models.Subscription{}).Count(&count).Error)
	assert.Zero(t, count)
	require.NoError(t, db.Model(&models.User{}).Count(&count).Error)
	assert.Zero(t, count, "no user is created for a refused subscription")
}

func TestUnsubscribe(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Subscribe(ctx, "u1", 42)
	require.NoError(t, err)
	_, err = svc.Subscribe(ctx, "u2", 42)
	require.NoError(t, err)

	require.NoError(t, svc.Unsubscribe(ctx, "u1", 42))
	require.NoError(t, svc.Unsubscribe(ctx, "u1", 42))
	require.NoError(t, svc.Unsubscribe(ctx, "u1", 77), "unknown location is a no-op")

	loc, err := svc.registry.Get(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, models.StringSet{"u2"}, loc.Subscribers)

	require.NoError(t, svc.Unsubscribe(ctx, "u2", 42))
	loc, err = svc.registry.Get(ctx, 42)
	require.NoError(t, err)
	assert.Zero(t, loc.SubscriberCount)
	assert.False(t, loc.Active())
	requireConsistent(t, db)
}

func TestSubscribe_RollsBackOnFailure(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()
	require.NoError(t, db.Migrator().DropTable(&models.User{}))

	_, err := svc.Subscribe(ctx, "u1", 42)
	require.Error(t, err)

	_, err = svc.registry.Get(ctx, 42)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound, "location change is rolled back with the subscription")

	var count int64
	require.NoError(t, db.Model(&models.Subscription{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestSubscribe_Concurrent(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		userID := fmt.Sprintf("u%d", i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 5; j++ {
				_, err := svc.Subscribe(ctx, userID, 42)
				assert.NoError(t, err)
				_, err = svc.Subscribe(ctx, userID, 43)
				assert.NoError(t, err)
				if j%2 == 0 {
					assert.NoError(t, svc.Unsubscribe(ctx, userID, 42))
				}
			}
		}()
	}
	wg.Wait()

	requireConsistent(t, db)
	loc, err := svc.registry.Get(ctx, 43)
	require.NoError(t, err)
	assert.Equal(t, 8, loc.SubscriberCount)
}

func TestListSubscribedLocations(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()

	for _, id := range []models.LocationID{7, 3, 5} {
		_, err := svc.Subscribe(ctx, "u1", id)
		require.NoError(t, err)
	}
	_, err := svc.Subscribe(ctx, "u2", 9)
	require.NoError(t, err)

	// Pin the selection order, timestamps may collide at clock resolution.
	base := time.Date(2026, 10, 15, 8, 0, 0, 0, time.UTC)
	for i, id := range []models.LocationID{7, 3, 5} {
		require.NoError(t, db.Model(&models.Subscription{}).
			Where("user_id = ? AND location_id = ?", "u1", id).
			Update("selected_at", base.Add(time.Duration(i)*time.Minute)).Error)
	}

	locs, err := svc.ListSubscribedLocations(ctx, "u1")
	require.NoError(t, err)
	ids := []models.LocationID{}
	for _, loc := range locs {
		ids = append(ids, loc.ID)
	}
	assert.Equal(t, []models.LocationID{7, 3, 5}, ids)

	none, err := svc.ListSubscribedLocations(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestOnboardUser(t *testing.T) {
	svc, db, sender := newTestService(t)
	ctx := context.Background()

	user, err := svc.OnboardUser(ctx, "u1", "sam@example.com", "Sam")
	require.NoError(t, err)
	assert.Equal(t, 10, user.NotificationsRemaining)
	assert.True(t, user.EmailNotifications)
	assert.Equal(t, []string{"u1"}, sender.welcome)

	require.NoError(t, db.Model(&models.User{}).Where("id = ?", "u1").Update("notifications_remaining", 4).Error)

	user, err = svc.OnboardUser(ctx, "u1", "sam@work.example.com", "Samantha")
	require.NoError(t, err)
	assert.Equal(t, "sam@work.example.com", user.Email)
	assert.Equal(t, "Samantha", user.DisplayName)
	assert.Equal(t, 4, user.NotificationsRemaining, "counters survive re-onboarding")
	assert.Len(t, sender.welcome, 1, "welcome is only sent once")
}

func TestOnboardUser_WelcomeFailureIsNotFatal(t *testing.T) {
	svc, _, sender := newTestService(t)
	sender.err = errors.New("provider down")

	user, err := svc.OnboardUser(context.Background(), "u1", "sam@example.com", "")
	require.NoError(t, err)
	assert.Equal(t, "u1", user.ID)
}

func TestOnboardUser_AfterLazyCreation(t *testing.T) {
	svc, _, sender := newTestService(t)
	ctx := context.Background()

	_, err := svc.Subscribe(ctx, "u1", 42)
	require.NoError(t, err)

	user, err := svc.OnboardUser(ctx, "u1", "sam@example.com", "Sam")
	require.NoError(t, err)
	assert.Equal(t, "sam@example.com", user.Email)
	assert.Empty(t, sender.welcome)
}

func TestUpdateNotificationSettings(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.OnboardUser(ctx, "u1", "sam@example.com", "Sam")
	require.NoError(t, err)

	user, err := svc.UpdateNotificationSettings(ctx, "u1", false)
	require.NoError(t, err)
	assert.False(t, user.EmailNotifications)

	_, err = svc.UpdateNotificationSettings(ctx, "ghost", true)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestNotificationInbox(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()

	base := time.Date(2026, 10, 15, 8, 0, 0, 0, time.UTC)
	older := models.Notification{ID: uuid.NewString(), UserID: "u1", LocationID: 42, Message: "older", CreatedAt: base}
	newer := models.Notification{ID: uuid.NewString(), UserID: "u1", LocationID: 42, Message: "newer", CreatedAt: base.Add(time.Hour)}
	other := models.Notification{ID: uuid.NewString(), UserID: "u2", LocationID: 42, Message: "other", CreatedAt: base}
	require.NoError(t, db.Create(&models.Notifications{older, newer, other}).Error)

	all, err := svc.ListNotifications(ctx, "u1", false)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "newer", all[0].Message)

	require.NoError(t, svc.MarkNotificationRead(ctx, "u1", newer.ID))
	assert.ErrorIs(t, svc.MarkNotificationRead(ctx, "u1", other.ID), gorm.ErrRecordNotFound)
	assert.ErrorIs(t, svc.MarkNotificationRead(ctx, "u1", "missing"), gorm.ErrRecordNotFound)

	unread, err := svc.ListNotifications(ctx, "u1", true)
	require.NoError(t, err)
	require.Len(t, unread, 1)
	assert.Equal(t, "older", unread[0].Message)

	_, err = svc.ListNotifications(ctx, " ", false)
	assert.ErrorIs(t, err, ErrInvalidUserID)
}
