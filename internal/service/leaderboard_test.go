package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/skills-gamification/internal/domain"
	"github.com/skills-gamification/internal/ledger"
	"github.com/skills-gamification/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLeaderboard struct {
	mu       sync.Mutex
	err      error
	set      map[string]map[domain.Currency]int64
	rebuilt  map[domain.Currency]map[string]int64
	topCalls int
}

func newFakeLeaderboard() *fakeLeaderboard {
	return &fakeLeaderboard{
		set:     make(map[string]map[domain.Currency]int64),
		rebuilt: make(map[domain.Currency]map[string]int64),
	}
}

func (f *fakeLeaderboard) SetBalances(_ context.Context, userID string, balances map[domain.Currency]int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.set[userID] = balances
	return f.err
}

func (f *fakeLeaderboard) Top(context.Context, domain.Currency, int) ([]domain.LeaderboardEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.topCalls++
	return nil, f.err
}

func (f *fakeLeaderboard) Position(_ context.Context, currency domain.Currency, userID string) (*domain.LeaderboardEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	b, ok := f.set[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &domain.LeaderboardEntry{Position: 1, UserID: userID, Currency: currency, Balance: b[currency]}, nil
}

func (f *fakeLeaderboard) CountRange(context.Context, domain.Currency, int64, int64) (int64, error) {
	return 0, f.err
}

func (f *fakeLeaderboard) Rebuild(_ context.Context, currency domain.Currency, balances map[string]int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rebuilt[currency] = balances
	return f.err
}

func seedBalance(t *testing.T, f *fixture, userID string, amount int64) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.repo.InTx(ctx, func(tx store.Tx) error {
		_, err := ledger.New(tx, f.clock).Earn(ctx, userID, domain.CurrencyLaxCredit, amount, "import", "")
		return err
	}))
}

func TestGetTopNFallsBackToRepository(t *testing.T) {
	f := newFixture(t, nil, nil)
	lb := newFakeLeaderboard()
	lb.err = errors.New("redis down")
	f.svc.SetLeaderboard(lb)

	seedBalance(t, f, "a", 50)
	seedBalance(t, f, "b", 700)
	seedBalance(t, f, "c", 300)

	entries, err := f.svc.GetTopN(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, 1, lb.topCalls)

	assert.Equal(t, "b", entries[0].UserID)
	assert.Equal(t, int64(1), entries[0].Position)
	assert.Equal(t, "Left Bench Hero", entries[0].Title)
	assert.Equal(t, "c", entries[1].UserID)
	assert.Equal(t, "2nd Bar Syndrome", entries[1].Title)
}

func TestGetTopNClampsLimit(t *testing.T) {
	f := newFixture(t, nil, nil)
	for i := 0; i < 120; i++ {
		seedBalance(t, f, string(rune('a'+i%26))+string(rune('a'+i/26)), int64(i+1))
	}

	entries, err := f.svc.GetTopN(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, entries, 10)

	entries, err = f.svc.GetTopN(context.Background(), 500)
	require.NoError(t, err)
	assert.Len(t, entries, 100)
}

func TestGetPosition(t *testing.T) {
	f := newFixture(t, nil, nil)
	assert.Nil(t, f.svc.GetPosition(context.Background(), "u1"))

	lb := newFakeLeaderboard()
	f.svc.SetLeaderboard(lb)
	_, err := f.svc.CompleteWorkout(context.Background(), submission("u1"))
	require.NoError(t, err)

	entry := f.svc.GetPosition(context.Background(), "u1")
	require.NotNil(t, entry)
	assert.Equal(t, int64(10), entry.Balance)
	assert.Equal(t, "Lacrosse Bot", entry.Title)
	assert.Nil(t, f.svc.GetPosition(context.Background(), "nobody"))
}

func TestGetRankDistribution(t *testing.T) {
	f := newFixture(t, nil, nil)
	seedBalance(t, f, "a", 10)
	seedBalance(t, f, "b", 249)
	seedBalance(t, f, "c", 250)
	seedBalance(t, f, "d", 20000)

	brackets, err := f.svc.GetRankDistribution(context.Background())
	require.NoError(t, err)
	require.Len(t, brackets, 10)
	assert.Equal(t, int64(2), brackets[0].Users)
	assert.Equal(t, int64(1), brackets[1].Users)
	assert.Equal(t, "Lax God", brackets[9].Title)
	assert.Equal(t, int64(1), brackets[9].Users)
}

func TestReconcileRebuildsLeaderboard(t *testing.T) {
	f := newFixture(t, nil, nil)
	lb := newFakeLeaderboard()
	f.svc.SetLeaderboard(lb)

	_, err := f.svc.CompleteWorkout(context.Background(), submission("u1"))
	require.NoError(t, err)
	assert.Equal(t, int64(10), lb.set["u1"][domain.CurrencyLaxCredit])

	f.repo.InvalidateBalance("u1", domain.CurrencyLaxCredit)
	changed, err := f.svc.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), changed)

	assert.Len(t, lb.rebuilt, len(domain.KnownCurrencies))
	assert.Equal(t, int64(10), lb.rebuilt[domain.CurrencyLaxCredit]["u1"])
	assert.Equal(t, int64(2), lb.rebuilt[domain.CurrencyAttackToken]["u1"])
}

func TestReconcileSurfacesLeaderboardError(t *testing.T) {
	f := newFixture(t, nil, nil)
	lb := newFakeLeaderboard()
	lb.err = errors.New("redis down")
	f.svc.SetLeaderboard(lb)

	_, err := f.svc.Reconcile(context.Background())
	assert.Error(t, err)
}
