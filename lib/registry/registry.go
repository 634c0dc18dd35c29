package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fiffu/ttquick/lib/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Registry persists locations together with their subscriber sets and
// polling timestamps.
type Registry struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewRegistry(db *gorm.DB, log *zap.Logger) *Registry {
	return &Registry{db, log}
}

// In binds the registry to a transaction.
func (r *Registry) In(tx *gorm.DB) *Registry {
	return &Registry{tx, r.log}
}

func (r *Registry) Get(ctx context.Context, id models.LocationID) (*models.Location, error) {
	loc := &models.Location{}
	tx := r.db.WithContext(ctx).First(loc, "id = ?", id)
	if err := tx.Error; err != nil {
		return nil, err
	}
	return loc, nil
}

type Query struct {
	State string
	City  string
	Text  string
}

// Search lists operational locations, ordered by state, city and name.
func (r *Registry) Search(ctx context.Context, q Query) (models.Locations, error) {
	tx := r.db.WithContext(ctx).Where("operational = ?", true)
	if q.State != "" {
		tx = tx.Where("UPPER(state) = ?", strings.ToUpper(q.State))
	}
	if q.City != "" {
		tx = tx.Where("LOWER(city) = ?", strings.ToLower(q.City))
	}
	if q.Text != "" {
		like := "%" + strings.ToLower(q.Text) + "%"
		tx = tx.Where("LOWER(name) LIKE ? OR LOWER(short_name) LIKE ? OR LOWER(city) LIKE ?", like, like, like)
	}

	var locs models.Locations
	if err := tx.Order("state, city, name").Find(&locs).Error; err != nil {
		return nil, err
	}
	return locs, nil
}

// ActiveLocations returns operational locations with at least one
// subscriber. Rows whose count has drifted from the subscriber set are
// repaired on the way.
func (r *Registry) ActiveLocations(ctx context.Context) (models.Locations, error) {
	var locs models.Locations
	tx := r.db.WithContext(ctx).
		Where("operational = ?", true).
		Where("subscriber_count > 0 OR (subscribers IS NOT NULL AND subscribers NOT IN ('', '[]', 'null'))").
		Order("id").
		Find(&locs)
	if err := tx.Error; err != nil {
		return nil, fmt.Errorf("find active locations: %w", err)
	}

	active := locs[:0]
	for _, loc := range locs {
		if !loc.Consistent() {
			if err := r.Heal(ctx, &loc); err != nil {
				r.log.Sugar().Errorw("Failed to heal location", "location_id", loc.ID, "err", err)
			}
		}
		if loc.Active() {
			active = append(active, loc)
		}
	}
	return active, nil
}

// Heal recomputes the subscriber count of loc from its subscriber set. The
// row is re-read under lock so a subscribe committed since loc was loaded is
// not overwritten; loc is refreshed with what was stored.
func (r *Registry) Heal(ctx context.Context, loc *models.Location) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		fresh, err := r.In(tx).lockedLocation(ctx, loc.ID)
		if err != nil {
			return err
		}
		if !fresh.Consistent() {
			cerr := &ConsistencyError{fresh.ID, fresh.SubscriberCount, len(fresh.Subscribers)}
			r.log.Sugar().Warnw("Subscriber count mismatch, recomputing", "err", cerr)

			fresh.SubscriberCount = len(fresh.Subscribers)
			err := tx.Model(&models.Location{ID: fresh.ID}).
				Update("subscriber_count", fresh.SubscriberCount).
				Error
			if err != nil {
				return err
			}
		}
		*loc = *fresh
		return nil
	})
}

// AddSubscriber adds userID to the location's subscriber set, creating the
// location if it was never seen before. Retired locations are refused with
// ErrLocationRetired. Run it inside a transaction.
func (r *Registry) AddSubscriber(ctx context.Context, id models.LocationID, userID string) (*models.Location, error) {
	loc, err := r.lockedLocation(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		loc = &models.Location{ID: id, Operational: true, Subscribers: models.StringSet{}}
		if err := r.db.WithContext(ctx).Create(loc).Error; err != nil {
			return nil, fmt.Errorf("create location %s: %w", id, err)
		}
	} else if err != nil {
		return nil, err
	} else if !loc.Operational {
		return nil, fmt.Errorf("location %s: %w", id, ErrLocationRetired)
	}

	loc.Subscribers, _ = loc.Subscribers.Add(userID)
	return loc, r.saveSubscribers(ctx, loc)
}

// RemoveSubscriber drops userID from the location's subscriber set. The
// location stays in place; with no subscribers left it is no longer polled.
func (r *Registry) RemoveSubscriber(ctx context.Context, id models.LocationID, userID string) (*models.Location, error) {
	loc, err := r.lockedLocation(ctx, id)
	if err != nil {
		return nil, err
	}

	loc.Subscribers, _ = loc.Subscribers.Remove(userID)
	return loc, r.saveSubscribers(ctx, loc)
}

func (r *Registry) lockedLocation(ctx context.Context, id models.LocationID) (*models.Location, error) {
	loc := &models.Location{}
	tx := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(loc, "id = ?", id)
	if err := tx.Error; err != nil {
		return nil, err
	}
	return loc, nil
}

func (r *Registry) saveSubscribers(ctx context.Context, loc *models.Location) error {
	loc.SubscriberCount = len(loc.Subscribers)
	return r.db.WithContext(ctx).
		Model(&models.Location{ID: loc.ID}).
		Select("subscribers", "subscriber_count").
		Updates(&models.Location{Subscribers: loc.Subscribers, SubscriberCount: loc.SubscriberCount}).
		Error
}

// ApplyCheckResults writes one tick's results in a single transaction;
// either every location is updated or none is.
func (r *Registry) ApplyCheckResults(ctx context.Context, results []models.CheckResult) error {
	if len(results) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, res := range results {
			checkedAt := res.CheckedAt.UTC()
			updates := map[string]any{
				"last_checked":     checkedAt,
				"has_availability": res.HasSlots,
			}
			if res.HasSlots {
				updates["last_appointment_found"] = checkedAt
			}
			if err := tx.Model(&models.Location{ID: res.LocationID}).Updates(updates).Error; err != nil {
				return fmt.Errorf("update location %s: %w", res.LocationID, err)
			}
		}
		return nil
	})
}

type SyncStats struct {
	Upserted int
	Retired  int
	Skipped  int
}

// SyncDirectory refreshes descriptive fields from the directory listing.
// Subscriber data and poll timestamps are never touched; locations missing
// from the listing are marked non-operational rather than deleted.
func (r *Registry) SyncDirectory(ctx context.Context, listing models.Locations, now time.Time) (*SyncStats, error) {
	stats := &SyncStats{}

	valid := make(models.Locations, 0, len(listing))
	ids := make([]models.LocationID, 0, len(listing))
	for _, loc := range listing {
		if !loc.ID.Valid() {
			stats.Skipped++
			r.log.Sugar().Warnw("Skipping directory entry with invalid id", "location_id", loc.ID, "name", loc.Name)
			continue
		}
		loc.Subscribers = models.StringSet{}
		loc.SubscriberCount = 0
		valid = append(valid, loc)
		ids = append(ids, loc.ID)
	}
	if len(valid) == 0 {
		return nil, errors.New("directory listing has no valid locations, refusing to retire every location")
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		upsert := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"name", "short_name", "address", "address_additional", "city", "state",
				"postal_code", "country_code", "phone_number", "time_zone", "operational", "updated_at",
			}),
		}).CreateInBatches(&valid, 100)
		if err := upsert.Error; err != nil {
			return fmt.Errorf("upsert locations: %w", err)
		}
		stats.Upserted = len(valid)

		retire := tx.Model(&models.Location{}).
			Where("operational = ?", true).
			Where("id NOT IN ?", ids).
			Updates(map[string]any{"operational": false, "updated_at": now})
		if err := retire.Error; err != nil {
			return fmt.Errorf("retire locations: %w", err)
		}
		stats.Retired = int(retire.RowsAffected)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}
