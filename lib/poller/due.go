package poller

import (
	"time"

	"github.com/fiffu/ttquick/config"
	"github.com/fiffu/ttquick/lib/models"
)

// Schedule decides when a location is due for another availability check
// and when daily quotas roll over.
type Schedule struct {
	RecheckDelay time.Duration
	ResetHour    int
	Location     *time.Location
}

func NewSchedule(cfg *config.Config) Schedule {
	return Schedule{
		RecheckDelay: cfg.Poller.RecheckDelay,
		ResetHour:    cfg.Poller.ResetHour,
		Location:     cfg.Location(),
	}
}

func (s Schedule) resetOn(t time.Time, dayOffset int) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day()+dayOffset, s.ResetHour, 0, 0, 0, s.location())
}

func (s Schedule) location() *time.Location {
	if s.Location == nil {
		return time.UTC
	}
	return s.Location
}

// NextResetAfter returns the first reset-hour occurrence strictly after t.
func (s Schedule) NextResetAfter(t time.Time) time.Time {
	local := t.In(s.location())
	next := s.resetOn(local, 0)
	if !next.After(local) {
		next = s.resetOn(local, 1)
	}
	return next
}

// LastResetAtOrBefore returns the most recent reset-hour occurrence not
// after t.
func (s Schedule) LastResetAtOrBefore(t time.Time) time.Time {
	local := t.In(s.location())
	last := s.resetOn(local, 0)
	if last.After(local) {
		last = s.resetOn(local, -1)
	}
	return last
}

// NextCheck returns when loc should be checked again. A location that has
// never been checked has no next check and is always due.
func (s Schedule) NextCheck(loc *models.Location) (time.Time, bool) {
	if !loc.LastChecked.Valid {
		return time.Time{}, false
	}
	if loc.HasAvailability {
		return s.NextResetAfter(loc.LastChecked.Time), true
	}
	return loc.LastChecked.Time.Add(s.RecheckDelay), true
}

func (s Schedule) IsDue(loc *models.Location, now time.Time) bool {
	next, ok := s.NextCheck(loc)
	if !ok {
		return true
	}
	return !now.Before(next)
}
