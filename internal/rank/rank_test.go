package rank

import (
	"testing"

	"github.com/skills-gamification/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := NewCatalog(domain.CurrencyLaxCredit, DefaultDefinitions)
	require.NoError(t, err)
	return c
}

func TestComputeDefaultLadder(t *testing.T) {
	c := defaultCatalog(t)

	tests := []struct {
		balance  int64
		order    int
		title    string
		toNext   int64
		progress float64
	}{
		{0, 1, "Lacrosse Bot", 250, 0},
		{125, 1, "Lacrosse Bot", 125, 50},
		{249, 1, "Lacrosse Bot", 1, 99.6},
		{250, 2, "2nd Bar Syndrome", 350, 0},
		{800, 3, "Left Bench Hero", 200, 50},
		{9999, 9, "Lax Ninja", 1, 99.975},
	}
	for _, tt := range tests {
		state := c.Compute(tt.balance)
		require.NotNil(t, state.Current, "balance %d", tt.balance)
		assert.Equal(t, tt.order, state.CurrentRankOrder, "balance %d", tt.balance)
		assert.Equal(t, tt.title, state.Current.Title)
		assert.Equal(t, tt.toNext, state.PointsToNext)
		assert.InDelta(t, tt.progress, state.ProgressPercentage, 0.0001)
	}
}

func TestComputeTopRank(t *testing.T) {
	state := defaultCatalog(t).Compute(25000)

	assert.Equal(t, 10, state.CurrentRankOrder)
	assert.Nil(t, state.Next)
	assert.Equal(t, float64(100), state.ProgressPercentage)
	assert.Zero(t, state.PointsToNext)
}

func TestComputeRankUpBoundary(t *testing.T) {
	c := defaultCatalog(t)
	for _, def := range DefaultDefinitions[1:] {
		below := c.Compute(def.Threshold - 1)
		at := c.Compute(def.Threshold)

		assert.Equal(t, def.RankOrder-1, below.CurrentRankOrder)
		assert.Equal(t, def.RankOrder, at.CurrentRankOrder)
		if at.Next == nil {
			assert.Equal(t, float64(100), at.ProgressPercentage)
		} else {
			assert.Zero(t, at.ProgressPercentage)
		}
	}
}

func TestComputeProgressIsMonotonicWithinBracket(t *testing.T) {
	c := defaultCatalog(t)
	for i, def := range DefaultDefinitions {
		upper := def.Threshold + 500
		if i+1 < len(DefaultDefinitions) {
			upper = DefaultDefinitions[i+1].Threshold
		}
		prev := -1.0
		for b := def.Threshold; b < upper; b++ {
			p := c.Compute(b).ProgressPercentage
			require.GreaterOrEqual(t, p, prev, "balance %d", b)
			require.GreaterOrEqual(t, p, 0.0)
			require.LessOrEqual(t, p, 100.0)
			prev = p
		}
	}
}

func TestComputeEqualThresholds(t *testing.T) {
	c, err := NewCatalog(domain.CurrencyLaxCredit, []domain.RankDefinition{
		{RankOrder: 1, Title: "A", Threshold: 0},
		{RankOrder: 2, Title: "B", Threshold: 100},
		{RankOrder: 3, Title: "C", Threshold: 100},
		{RankOrder: 4, Title: "D", Threshold: 200},
	})
	require.NoError(t, err)

	state := c.Compute(100)
	assert.Equal(t, 3, state.CurrentRankOrder)
	assert.Equal(t, "D", state.Next.Title)
	assert.Zero(t, state.ProgressPercentage)
}

func TestComputeBelowLowestThreshold(t *testing.T) {
	c, err := NewCatalog(domain.CurrencyAttackToken, []domain.RankDefinition{
		{RankOrder: 1, Title: "Rookie", Threshold: 100},
		{RankOrder: 2, Title: "Starter", Threshold: 300},
	})
	require.NoError(t, err)

	state := c.Compute(40)
	assert.Nil(t, state.Current)
	assert.Zero(t, state.CurrentRankOrder)
	assert.Equal(t, "Rookie", state.Next.Title)
	assert.Equal(t, int64(60), state.PointsToNext)
	assert.InDelta(t, 40, state.ProgressPercentage, 0.0001)
	assert.Empty(t, c.TitleFor(40))
}

func TestNewCatalogValidation(t *testing.T) {
	_, err := NewCatalog(domain.CurrencyLaxCredit, nil)
	assert.ErrorIs(t, err, domain.ErrCatalogInvalid)

	_, err = NewCatalog(domain.CurrencyLaxCredit, []domain.RankDefinition{
		{RankOrder: 1, Threshold: 0},
		{RankOrder: 1, Threshold: 10},
	})
	assert.ErrorIs(t, err, domain.ErrCatalogInvalid)

	_, err = NewCatalog(domain.CurrencyLaxCredit, []domain.RankDefinition{
		{RankOrder: 2, Threshold: 50},
		{RankOrder: 1, Threshold: 100},
	})
	assert.ErrorIs(t, err, domain.ErrCatalogInvalid)

	_, err = NewCatalog("Bad Currency", DefaultDefinitions)
	assert.ErrorIs(t, err, domain.ErrInvalidCurrency)
}

func TestNewCatalogSortsByOrder(t *testing.T) {
	c, err := NewCatalog(domain.CurrencyLaxCredit, []domain.RankDefinition{
		{RankOrder: 3, Title: "C", Threshold: 30},
		{RankOrder: 1, Title: "A", Threshold: 0},
		{RankOrder: 2, Title: "B", Threshold: 10},
	})
	require.NoError(t, err)

	defs := c.Definitions()
	assert.Equal(t, []string{"A", "B", "C"}, []string{defs[0].Title, defs[1].Title, defs[2].Title})
	assert.Equal(t, "B", c.TitleFor(15))
}
