package drills

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/jonboulle/clockwork"
	"github.com/skills-gamification/internal/domain"
)

const defaultCacheSize = 1024

// Source loads drills from one library. Unknown IDs are simply absent
// from the result.
type Source interface {
	FetchDrills(ctx context.Context, library domain.WorkoutType, ids []int64) ([]domain.Drill, error)
}

type cachedDrill struct {
	drill     domain.Drill
	fetchedAt time.Time
}

// Catalog resolves drill IDs against the academy and team libraries,
// caching hits in an LRU.
type Catalog struct {
	source Source
	cache  *lru.Cache
	ttl    time.Duration
	clock  clockwork.Clock
	logger *slog.Logger
}

// NewCatalog wraps source. A zero ttl keeps cached drills until evicted.
func NewCatalog(source Source, cacheSize int, ttl time.Duration, clock clockwork.Clock, logger *slog.Logger) *Catalog {
	if cacheSize <= 0 {
		cacheSize = defaultCacheSize
	}
	cache, _ := lru.New(cacheSize)
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{
		source: source,
		cache:  cache,
		ttl:    ttl,
		clock:  clock,
		logger: logger,
	}
}

// librariesFor maps a workout type to the drill libraries searched, in order
func librariesFor(t domain.WorkoutType) []domain.WorkoutType {
	switch t {
	case domain.WorkoutTeamPractice:
		return []domain.WorkoutType{domain.WorkoutTeamPractice}
	case domain.WorkoutSkillsAcademy:
		return []domain.WorkoutType{domain.WorkoutSkillsAcademy}
	}
	return []domain.WorkoutType{domain.WorkoutSkillsAcademy, domain.WorkoutTeamPractice}
}

// ResolveDrills returns the drills found for ids, deduplicated and in
// request order. Unknown IDs are skipped; an empty result is not an error.
func (c *Catalog) ResolveDrills(ctx context.Context, ids []int64, workoutType domain.WorkoutType) ([]domain.Drill, error) {
	wanted := dedupe(ids)
	found := make(map[int64]domain.Drill, len(wanted))

	missing := wanted
	for _, library := range librariesFor(workoutType) {
		if len(missing) == 0 {
			break
		}
		var uncached []int64
		for _, id := range missing {
			if d, ok := c.cached(library, id); ok {
				found[id] = d
				continue
			}
			uncached = append(uncached, id)
		}
		if len(uncached) > 0 {
			drills, err := c.source.FetchDrills(ctx, library, uncached)
			if err != nil {
				return nil, fmt.Errorf("fetching %s drills: %w", library, err)
			}
			for _, d := range drills {
				d.Source = library
				c.cache.Add(cacheKey(library, d.ID), cachedDrill{drill: d, fetchedAt: c.clock.Now()})
				found[d.ID] = d
			}
		}

		var next []int64
		for _, id := range missing {
			if _, ok := found[id]; !ok {
				next = append(next, id)
			}
		}
		missing = next
	}

	if len(missing) > 0 {
		c.logger.Debug("unknown drill ids skipped", "workout_type", workoutType, "ids", missing)
	}

	out := make([]domain.Drill, 0, len(found))
	for _, id := range wanted {
		if d, ok := found[id]; ok {
			out = append(out, d)
		}
	}
	return out, nil
}

// Purge empties the cache
func (c *Catalog) Purge() {
	c.cache.Purge()
}

func (c *Catalog) cached(library domain.WorkoutType, id int64) (domain.Drill, bool) {
	v, ok := c.cache.Get(cacheKey(library, id))
	if !ok {
		return domain.Drill{}, false
	}
	entry, ok := v.(cachedDrill)
	if !ok {
		return domain.Drill{}, false
	}
	if c.ttl > 0 && c.clock.Since(entry.fetchedAt) >= c.ttl {
		c.cache.Remove(cacheKey(library, id))
		return domain.Drill{}, false
	}
	return entry.drill, true
}

func cacheKey(library domain.WorkoutType, id int64) string {
	return fmt.Sprintf("%s:%d", library, id)
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
