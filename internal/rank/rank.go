package rank

import (
	"fmt"
	"sort"

	"github.com/skills-gamification/internal/domain"
)

// DefaultDefinitions is the academy rank ladder for lax_credit
var DefaultDefinitions = []domain.RankDefinition{
	{RankOrder: 1, Title: "Lacrosse Bot", Threshold: 0, IconRef: "ranks/lacrosse-bot.png"},
	{RankOrder: 2, Title: "2nd Bar Syndrome", Threshold: 250, IconRef: "ranks/2nd-bar-syndrome.png"},
	{RankOrder: 3, Title: "Left Bench Hero", Threshold: 600, IconRef: "ranks/left-bench-hero.png"},
	{RankOrder: 4, Title: "Celly King", Threshold: 1000, IconRef: "ranks/celly-king.png"},
	{RankOrder: 5, Title: "D-Mid Rising", Threshold: 1400, IconRef: "ranks/d-mid-rising.png"},
	{RankOrder: 6, Title: "Lacrosse Utility", Threshold: 2000, IconRef: "ranks/lacrosse-utility.png"},
	{RankOrder: 7, Title: "Flow Bro", Threshold: 3000, IconRef: "ranks/flow-bro.png"},
	{RankOrder: 8, Title: "Lax Beast", Threshold: 4500, IconRef: "ranks/lax-beast.png"},
	{RankOrder: 9, Title: "Lax Ninja", Threshold: 6000, IconRef: "ranks/lax-ninja.png"},
	{RankOrder: 10, Title: "Lax God", Threshold: 10000, IconRef: "ranks/lax-god.png"},
}

// Catalog is a validated, read-only rank ladder
type Catalog struct {
	currency domain.Currency
	ranks    []domain.RankDefinition
}

// NewCatalog sorts defs by rank order and checks that orders are unique
// and thresholds never decrease.
func NewCatalog(currency domain.Currency, defs []domain.RankDefinition) (*Catalog, error) {
	if err := currency.Validate(); err != nil {
		return nil, err
	}
	if len(defs) == 0 {
		return nil, fmt.Errorf("%w: rank catalog is empty", domain.ErrCatalogInvalid)
	}

	ranks := make([]domain.RankDefinition, len(defs))
	copy(ranks, defs)
	sort.Slice(ranks, func(i, j int) bool { return ranks[i].RankOrder < ranks[j].RankOrder })

	for i := 1; i < len(ranks); i++ {
		if ranks[i].RankOrder == ranks[i-1].RankOrder {
			return nil, fmt.Errorf("%w: duplicate rank order %d", domain.ErrCatalogInvalid, ranks[i].RankOrder)
		}
		if ranks[i].Threshold < ranks[i-1].Threshold {
			return nil, fmt.Errorf("%w: threshold of rank %d is below rank %d",
				domain.ErrCatalogInvalid, ranks[i].RankOrder, ranks[i-1].RankOrder)
		}
	}
	return &Catalog{currency: currency, ranks: ranks}, nil
}

// Currency is the balance the catalog ranks
func (c *Catalog) Currency() domain.Currency {
	return c.currency
}

// Definitions returns a copy of the ladder in rank order
func (c *Catalog) Definitions() []domain.RankDefinition {
	out := make([]domain.RankDefinition, len(c.ranks))
	copy(out, c.ranks)
	return out
}

// Compute maps balance to its rank and the progress toward the next one
func (c *Catalog) Compute(balance int64) domain.RankState {
	// index of the first rank whose threshold exceeds balance
	idx := sort.Search(len(c.ranks), func(i int) bool { return c.ranks[i].Threshold > balance })

	state := domain.RankState{Currency: c.currency, Balance: balance}
	floor := min(balance, 0)
	if idx > 0 {
		current := c.ranks[idx-1]
		state.Current = &current
		state.CurrentRankOrder = current.RankOrder
		floor = current.Threshold
	}
	if idx == len(c.ranks) {
		state.ProgressPercentage = 100
		return state
	}

	next := c.ranks[idx]
	state.Next = &next
	state.PointsToNext = next.Threshold - balance
	state.ProgressPercentage = progress(balance, floor, next.Threshold)
	return state
}

// TitleFor returns the title of the rank balance falls into
func (c *Catalog) TitleFor(balance int64) string {
	state := c.Compute(balance)
	if state.Current == nil {
		return ""
	}
	return state.Current.Title
}

func progress(balance, floor, ceiling int64) float64 {
	if ceiling <= floor {
		return 100
	}
	p := float64(balance-floor) / float64(ceiling-floor) * 100
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
