package badge

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gosimple/slug"
	"github.com/skills-gamification/internal/domain"
)

// Catalog is a validated, read-only set of badge definitions
type Catalog struct {
	defs  []domain.BadgeDefinition
	byKey map[string]domain.BadgeDefinition
}

// NormalizeKey turns a display key such as "Wall Ball Warrior" into
// the canonical snake_case badge key.
func NormalizeKey(key string) string {
	return strings.ReplaceAll(slug.Make(key), "-", "_")
}

// NewCatalog normalizes keys and rejects duplicates or malformed
// requirements.
func NewCatalog(defs []domain.BadgeDefinition) (*Catalog, error) {
	c := &Catalog{
		defs:  make([]domain.BadgeDefinition, 0, len(defs)),
		byKey: make(map[string]domain.BadgeDefinition, len(defs)),
	}
	for _, def := range defs {
		def.BadgeKey = NormalizeKey(def.BadgeKey)
		if def.BadgeKey == "" {
			return nil, fmt.Errorf("%w: badge %q has an empty key", domain.ErrCatalogInvalid, def.Name)
		}
		if _, dup := c.byKey[def.BadgeKey]; dup {
			return nil, fmt.Errorf("%w: duplicate badge key %q", domain.ErrCatalogInvalid, def.BadgeKey)
		}
		switch def.RequirementType {
		case domain.RequirementCount, domain.RequirementPoints, domain.RequirementStreak, domain.RequirementAchievement:
		default:
			return nil, fmt.Errorf("%w: badge %q has unknown requirement type %q",
				domain.ErrCatalogInvalid, def.BadgeKey, def.RequirementType)
		}
		if def.RequirementValue < 0 || def.PointsAward < 0 {
			return nil, fmt.Errorf("%w: badge %q has a negative value", domain.ErrCatalogInvalid, def.BadgeKey)
		}
		c.defs = append(c.defs, def)
		c.byKey[def.BadgeKey] = def
	}
	sort.SliceStable(c.defs, func(i, j int) bool { return c.defs[i].SortOrder < c.defs[j].SortOrder })
	return c, nil
}

// Get looks up a badge by key
func (c *Catalog) Get(key string) (domain.BadgeDefinition, error) {
	def, ok := c.byKey[NormalizeKey(key)]
	if !ok {
		return domain.BadgeDefinition{}, fmt.Errorf("%w: %s", domain.ErrUnknownBadge, key)
	}
	return def, nil
}

// All returns every definition in sort order
func (c *Catalog) All() []domain.BadgeDefinition {
	out := make([]domain.BadgeDefinition, len(c.defs))
	copy(out, c.defs)
	return out
}

// Active returns the definitions that can still be earned
func (c *Catalog) Active() []domain.BadgeDefinition {
	out := make([]domain.BadgeDefinition, 0, len(c.defs))
	for _, def := range c.defs {
		if def.IsActive {
			out = append(out, def)
		}
	}
	return out
}

// ByCategory groups active definitions by category
func (c *Catalog) ByCategory() map[string][]domain.BadgeDefinition {
	out := make(map[string][]domain.BadgeDefinition)
	for _, def := range c.Active() {
		out[def.Category] = append(out[def.Category], def)
	}
	return out
}
