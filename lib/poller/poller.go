package poller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fiffu/ttquick/config"
	"github.com/fiffu/ttquick/lib/models"
	"github.com/fiffu/ttquick/lib/notifier"
	"github.com/fiffu/ttquick/lib/registry"
	"github.com/fiffu/ttquick/lib/slotapi"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SlotAPI is the part of the scheduler API the poller depends on.
type SlotAPI interface {
	CheckAvailability(ctx context.Context, locationID models.LocationID) (*models.Availability, error)
	FetchLocations(ctx context.Context) ([]slotapi.DirectoryLocation, error)
}

func NewPoller(
	lc fx.Lifecycle,
	cfg *config.Config,
	log *zap.Logger,
	db *gorm.DB,
	client *slotapi.Client,
	reg *registry.Registry,
	notif *notifier.Notifier,
) (*Poller, error) {
	poller := newPoller(cfg, log, db, client, reg, notif)

	alarm := poller.alarmClock
	if err := alarm.Schedule(cfg.Poller.Schedule, func(t time.Time) Event { return pollWakeupEvent{event{t}} }); err != nil {
		return nil, &config.ConfigurationError{Field: "POLL_SCHEDULE", Err: err}
	}
	resetSpec := fmt.Sprintf("0 %d * * *", cfg.Poller.ResetHour)
	if err := alarm.Schedule(resetSpec, func(t time.Time) Event { return quotaResetEvent{event{t}} }); err != nil {
		return nil, &config.ConfigurationError{Field: "RESET_HOUR", Err: err}
	}
	if err := alarm.Schedule(cfg.Poller.DirectorySyncSchedule, func(t time.Time) Event { return directorySyncEvent{event{t}} }); err != nil {
		return nil, &config.ConfigurationError{Field: "DIRECTORY_SYNC_SCHEDULE", Err: err}
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			poller.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Sugar().Info("Trying to stop poller")
			poller.Stop()
			return nil
		},
	})

	return poller, nil
}

func newPoller(cfg *config.Config, log *zap.Logger, db *gorm.DB, api SlotAPI, reg *registry.Registry, notif *notifier.Notifier) *Poller {
	ctx, cancel := context.WithCancel(context.Background())
	return &Poller{
		db:       db,
		log:      log,
		api:      api,
		registry: reg,
		notifier: notif,

		schedule:    NewSchedule(cfg),
		concurrency: cfg.Poller.Concurrency,
		tickTimeout: cfg.Poller.TickTimeout,
		syncOnStart: cfg.Poller.SyncOnStart,

		alarmClock: NewAlarmClock(cfg.Location(), log),
		ctx:        ctx,
		cancel:     cancel,
		now:        time.Now,
	}
}

// Poller periodically checks the locations users subscribed to and hands
// found slots to the notifier.
type Poller struct {
	db       *gorm.DB
	log      *zap.Logger
	api      SlotAPI
	registry *registry.Registry
	notifier *notifier.Notifier

	schedule    Schedule
	concurrency int
	tickTimeout time.Duration
	syncOnStart bool

	mu         sync.Mutex // Serializes ticks, quota resets and syncs within the process
	alarmClock *alarmClock
	ctx        context.Context
	cancel     context.CancelFunc
	now        func() time.Time
}

func (p *Poller) Start() {
	now := p.now()
	immediate := []Event{pollWakeupEvent{event{now}}}
	if p.syncOnStart {
		immediate = append([]Event{directorySyncEvent{event{now}}}, immediate...)
	}
	c := p.alarmClock.Start(immediate...)

	go func() {
		for evt := range c {
			p.handleEvent(evt)
			p.alarmClock.Ack(evt)
		}
	}()
}

func (p *Poller) Stop() {
	p.cancel()
	p.alarmClock.Stop()

	// Wait for the in-flight event to finish
	p.mu.Lock()
	defer p.mu.Unlock()
	p.log.Sugar().Info("Poller stopped")
}

func (p *Poller) handleEvent(evt Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ctx.Err() != nil {
		return
	}
	ctx, cancel := context.WithTimeout(p.ctx, p.tickTimeout)
	defer cancel()

	var err error
	switch evt.(type) {
	case pollWakeupEvent:
		_, err = p.tick(ctx)
	case quotaResetEvent:
		_, err = p.resetQuotas(ctx)
	case directorySyncEvent:
		_, err = p.syncDirectory(ctx)
	}
	if err != nil {
		p.log.Sugar().Errorw("Event failed", "kind", evt.Kind(), "scheduled_at", evt.Timestamp(), "err", err)
	}
}

// Tick runs one polling pass right away, waiting for any pass already in
// progress to finish first.
func (p *Poller) Tick(ctx context.Context) (*TickReport, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tick(ctx)
}

// ResetQuotas zeroes the daily counters of users not reset since the most
// recent reset hour.
func (p *Poller) ResetQuotas(ctx context.Context) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.resetQuotas(ctx)
}

func (p *Poller) resetQuotas(ctx context.Context) (int64, error) {
	now := p.now()
	return p.notifier.ResetDailyQuotas(ctx, p.schedule.LastResetAtOrBefore(now), now)
}

// LastCheck returns the outcome of the most recent tick, if any.
func (p *Poller) LastCheck(ctx context.Context) (*models.SystemCheck, error) {
	check := &models.SystemCheck{}
	tx := p.db.WithContext(ctx).First(check, "id = ?", models.AppointmentChecks)
	if err := tx.Error; err != nil {
		return nil, err
	}
	return check, nil
}

func (p *Poller) recordCheck(ctx context.Context, report *TickReport, tickErr error) {
	check := &models.SystemCheck{
		ID:        models.AppointmentChecks,
		LastCheck: report.StartedAt.UTC(),
		Status:    models.CheckStatusSuccess,
		Active:    report.Active,
		Due:       report.Due,
		Checked:   report.Checked,
		Found:     report.Found,
		Failed:    report.Failed,
		Notified:  report.Notified,
	}
	if tickErr != nil {
		check.Status = models.CheckStatusError
		check.Error = tickErr.Error()
	}

	// Recorded even when the tick's own context has expired.
	ctx = context.WithoutCancel(ctx)
	if err := p.db.WithContext(ctx).Save(check).Error; err != nil {
		p.log.Sugar().Errorw("Failed to record system check", "err", err)
	}
}
