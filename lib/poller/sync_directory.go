package poller

import (
	"context"
	"fmt"

	"github.com/fiffu/ttquick/lib/models"
	"github.com/fiffu/ttquick/lib/registry"
)

// SyncDirectory refreshes location details from the scheduler API's
// directory.
func (p *Poller) SyncDirectory(ctx context.Context) (*registry.SyncStats, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.syncDirectory(ctx)
}

func (p *Poller) syncDirectory(ctx context.Context) (*registry.SyncStats, error) {
	listing, err := p.api.FetchLocations(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch directory: %w", err)
	}

	locs := make(models.Locations, 0, len(listing))
	for _, entry := range listing {
		locs = append(locs, entry.ToLocation())
	}

	stats, err := p.registry.SyncDirectory(ctx, locs, p.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("sync directory: %w", err)
	}
	p.log.Sugar().Infow("Synced location directory",
		"upserted", stats.Upserted,
		"retired", stats.Retired,
		"skipped", stats.Skipped,
	)
	return stats, nil
}
