package poller

import (
	"fmt"
	"time"
)

// TickReport summarizes one poller tick.
type TickReport struct {
	StartedAt   time.Time     `json:"started_at"`
	Elapsed     time.Duration `json:"elapsed"`
	QuotasReset int64         `json:"quotas_reset"`
	Active      int           `json:"active"`
	Skipped     int           `json:"skipped"`
	Due         int           `json:"due"`
	Checked     int           `json:"checked"`
	Found       int           `json:"found"`
	Failed      int           `json:"failed"`
	Notified    int           `json:"notified"`
}

func (r *TickReport) logArgs() []any {
	args := []any{"elapsed_msecs", int(r.Elapsed.Milliseconds())}
	if r.QuotasReset != 0 {
		args = append(args, "quotas_reset", r.QuotasReset)
	}
	if r.Skipped != 0 {
		args = append(args, "skipped", r.Skipped)
	}
	if r.Checked != 0 {
		args = append(args, "checked", r.Checked)
	}
	if r.Found != 0 {
		args = append(args, "found", r.Found)
	}
	if r.Failed != 0 {
		args = append(args, "failed", r.Failed)
	}
	if r.Notified != 0 {
		args = append(args, "notified", r.Notified)
	}
	return args
}

func (r *TickReport) summary() string {
	return fmt.Sprintf("Tick found %d of %d active locations due", r.Due, r.Active)
}
