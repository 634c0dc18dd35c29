package poller

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/fiffu/ttquick/lib/models"
	"github.com/fiffu/ttquick/lib/slotapi"
	"golang.org/x/sync/errgroup"
)

func (p *Poller) tick(ctx context.Context) (*TickReport, error) {
	report := &TickReport{StartedAt: p.now()}

	err := p.pollLocations(ctx, report)
	report.Elapsed = p.now().Sub(report.StartedAt)
	p.recordCheck(ctx, report, err)

	if err != nil {
		p.log.Sugar().Errorw("Tick failed", "err", err)
		return report, err
	}
	p.log.Sugar().Infow(report.summary(), report.logArgs()...)
	return report, nil
}

func (p *Poller) pollLocations(ctx context.Context, report *TickReport) error {
	reset, err := p.resetQuotas(ctx)
	if err != nil {
		return err
	}
	report.QuotasReset = reset

	active, err := p.registry.ActiveLocations(ctx)
	if err != nil {
		return err
	}
	report.Active = len(active)

	due := p.dueLocations(active, report)
	report.Due = len(due)
	if len(due) == 0 {
		return nil
	}

	results := p.checkLocations(ctx, due, report)
	if err := p.registry.ApplyCheckResults(ctx, results); err != nil {
		return fmt.Errorf("write check results: %w", err)
	}

	byID := make(map[models.LocationID]*models.Location, len(due))
	for i := range due {
		byID[due[i].ID] = &due[i]
	}
	for _, res := range results {
		if !res.HasSlots {
			continue
		}
		report.Found++

		loc := byID[res.LocationID]
		created, err := p.notifier.Notify(ctx, loc, loc.Subscribers, res.Slots...)
		if err != nil {
			p.log.Sugar().Errorw("Failed to notify subscribers", "location_id", loc.ID, "err", err)
			continue
		}
		report.Notified += len(created)
	}
	return nil
}

func (p *Poller) dueLocations(active models.Locations, report *TickReport) models.Locations {
	now := p.now()
	due := make(models.Locations, 0, len(active))
	for _, loc := range active {
		if !loc.ID.Valid() {
			report.Skipped++
			p.log.Sugar().Warnw("Skipping location with invalid id", "location_id", loc.ID, "name", loc.Name)
			continue
		}
		if p.schedule.IsDue(&loc, now) {
			due = append(due, loc)
		}
	}
	return due
}

// checkLocations queries the slot API for every location, at most
// concurrency at a time. Failed checks are logged and left out of the
// results so the location is retried on the next tick.
func (p *Poller) checkLocations(ctx context.Context, locs models.Locations, report *TickReport) []models.CheckResult {
	var mu sync.Mutex
	results := make([]models.CheckResult, 0, len(locs))

	g := new(errgroup.Group)
	g.SetLimit(p.concurrency)
	for _, loc := range locs {
		loc := loc
		g.Go(func() error {
			avail, err := p.api.CheckAvailability(ctx, loc.ID)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failed++
				p.log.Sugar().Warnw("Failed to check availability", "location_id", loc.ID, "transient", slotapi.IsTransient(err), "err", err)
				return nil
			}
			report.Checked++
			results = append(results, models.CheckResult{
				LocationID:   loc.ID,
				CheckedAt:    p.now().UTC(),
				Availability: *avail,
			})
			return nil
		})
	}
	g.Wait()

	slices.SortFunc(results, func(a, b models.CheckResult) int { return cmp.Compare(a.LocationID, b.LocationID) })
	return results
}
