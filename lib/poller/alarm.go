package poller

import (
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

type Event interface {
	Timestamp() time.Time
	Kind() string
}

type event struct{ timestamp time.Time }

func (e event) Timestamp() time.Time { return e.timestamp }

type pollWakeupEvent struct {
	event
}

func (pollWakeupEvent) Kind() string { return "poll" }

type quotaResetEvent struct {
	event
}

func (quotaResetEvent) Kind() string { return "quota_reset" }

type directorySyncEvent struct {
	event
}

func (directorySyncEvent) Kind() string { return "directory_sync" }

// alarmClock turns cron entries into events. At most one event of each kind
// is pending at a time; wake-ups that arrive while one is pending are
// dropped.
type alarmClock struct {
	cron *cron.Cron
	log  *zap.Logger

	mu      sync.Mutex
	pending map[string]bool
	stopped bool
	C       chan Event
}

const eventKinds = 3

func NewAlarmClock(loc *time.Location, log *zap.Logger) *alarmClock {
	return &alarmClock{
		cron:    cron.New(cron.WithLocation(loc)),
		log:     log,
		pending: make(map[string]bool),
		C:       make(chan Event, eventKinds),
	}
}

// Schedule rings the alarm with the event built by newEvent whenever spec
// fires. spec uses the standard five-field cron syntax or a descriptor such
// as "@every 5m".
func (a *alarmClock) Schedule(spec string, newEvent func(time.Time) Event) error {
	_, err := a.cron.AddFunc(spec, func() {
		a.Ring(newEvent(time.Now()))
	})
	return err
}

// Ring delivers evt unless an event of the same kind is still queued or
// being handled.
func (a *alarmClock) Ring(evt Event) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.stopped {
		return false
	}
	if a.pending[evt.Kind()] {
		a.log.Sugar().Infow("Dropping wake-up, previous one still pending", "kind", evt.Kind())
		return false
	}
	a.pending[evt.Kind()] = true
	a.C <- evt
	return true
}

// Ack marks evt as handled so that the next event of its kind can be queued.
func (a *alarmClock) Ack(evt Event) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.pending, evt.Kind())
}

func (a *alarmClock) Start(immediate ...Event) <-chan Event {
	a.cron.Start()
	for _, evt := range immediate {
		a.Ring(evt)
	}
	return a.C
}

func (a *alarmClock) Stop() {
	<-a.cron.Stop().Done()

	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.stopped {
		a.stopped = true
		close(a.C)
	}
}
