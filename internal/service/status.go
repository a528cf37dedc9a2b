package service

import (
	"context"
	"fmt"

	"github.com/skills-gamification/internal/badge"
	"github.com/skills-gamification/internal/domain"
	"github.com/skills-gamification/internal/ledger"
	"github.com/skills-gamification/internal/store"
	"github.com/skills-gamification/internal/streak"
	"github.com/skills-gamification/internal/tier"
	"golang.org/x/sync/errgroup"
)

// EarnedBadge pairs an award with its catalog entry
type EarnedBadge struct {
	domain.UserBadge
	Badge *domain.BadgeDefinition `json:"badge,omitempty"`
}

// AccessSummary lists what a member can use on one axis
type AccessSummary struct {
	Axis        domain.Axis          `json:"axis"`
	Tier        domain.Tier          `json:"tier,omitempty"`
	DisplayName string               `json:"display_name,omitempty"`
	Features    []string             `json:"features"`
	Next        *domain.NextTierInfo `json:"next,omitempty"`
}

// FeatureAccess is the answer to a single feature check
type FeatureAccess struct {
	Feature   string             `json:"feature"`
	Axis      domain.Axis        `json:"axis"`
	HasAccess bool               `json:"has_access"`
	Upgrade   domain.UpgradeInfo `json:"upgrade"`
}

// GetStatus loads balances, rank, streak and badge count concurrently
func (s *GamificationService) GetStatus(ctx context.Context, userID string) (*domain.Status, error) {
	status := &domain.Status{UserID: userID}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		balances, err := s.repo.Balances(gctx, userID)
		if err != nil {
			return err
		}
		status.Balances = balances
		return nil
	})
	g.Go(func() error {
		state, err := s.GetRank(gctx, userID)
		if err != nil {
			return err
		}
		status.Rank = state
		return nil
	})
	g.Go(func() error {
		res, err := s.GetStreak(gctx, userID)
		if err != nil {
			return err
		}
		status.Streak = res
		return nil
	})
	g.Go(func() error {
		badges, err := s.repo.ListUserBadges(gctx, userID)
		if err != nil {
			return err
		}
		status.BadgeCount = len(badges)
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("loading status: %w", err)
	}
	return status, nil
}

// GetBalances returns every cached balance of a user
func (s *GamificationService) GetBalances(ctx context.Context, userID string) (map[domain.Currency]int64, error) {
	return s.repo.Balances(ctx, userID)
}

// GetBalance reads one balance, rebuilding a missing cache row from the ledger
func (s *GamificationService) GetBalance(ctx context.Context, userID string, currency domain.Currency) (int64, error) {
	if err := currency.Validate(); err != nil {
		return 0, err
	}
	var balance int64
	err := s.repo.InTx(ctx, func(tx store.Tx) error {
		var err error
		balance, err = ledger.New(tx, s.clock).GetBalance(ctx, userID, currency)
		return err
	})
	return balance, err
}

// GetRank computes the user's rank from the rank currency balance
func (s *GamificationService) GetRank(ctx context.Context, userID string) (domain.RankState, error) {
	balance, err := s.GetBalance(ctx, userID, s.ranks.Currency())
	if err != nil {
		return domain.RankState{}, err
	}
	return s.ranks.Compute(balance), nil
}

// GetStreak describes the streak as it stands today. A streak whose
// last activity is older than yesterday reads as zero.
func (s *GamificationService) GetStreak(ctx context.Context, userID string) (domain.StreakResult, error) {
	state, err := s.repo.GetStreak(ctx, userID)
	if err != nil {
		return domain.StreakResult{}, err
	}
	today := domain.DateOf(s.clock.Now(), s.opts.Location)
	return streak.Describe(state, today, s.opts.Milestones), nil
}

// ListUserBadges returns a user's awards joined with the catalog
func (s *GamificationService) ListUserBadges(ctx context.Context, userID string) ([]EarnedBadge, error) {
	awards, err := s.repo.ListUserBadges(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]EarnedBadge, len(awards))
	for i, a := range awards {
		out[i] = EarnedBadge{UserBadge: a}
		if def, err := s.badges.Get(a.BadgeKey); err == nil {
			out[i].Badge = &def
		}
	}
	return out, nil
}

// GetBadgeEligibility reports progress toward every unearned badge
func (s *GamificationService) GetBadgeEligibility(ctx context.Context, userID string) ([]domain.BadgeEligibility, error) {
	var out []domain.BadgeEligibility
	err := s.repo.InTx(ctx, func(tx store.Tx) error {
		stats, err := tx.UserStats(ctx, userID)
		if err != nil {
			return err
		}
		earned, err := tx.EarnedBadgeKeys(ctx, userID)
		if err != nil {
			return err
		}
		out = badge.Evaluate(stats, s.badges.All(), earned)
		return nil
	})
	return out, err
}

// GetBadgeCatalog returns active badges grouped by category
func (s *GamificationService) GetBadgeCatalog() map[string][]domain.BadgeDefinition {
	return s.badges.ByCategory()
}

// GetAccess lists the features a user holds on axis and what the next
// tier would add.
func (s *GamificationService) GetAccess(ctx context.Context, userID string, axis domain.Axis) (*AccessSummary, error) {
	if !axis.Valid() {
		return nil, domain.ErrUnknownAxis
	}
	m, err := s.repo.GetMembership(ctx, userID)
	if err != nil {
		return nil, err
	}
	summary := &AccessSummary{
		Axis:     axis,
		Tier:     m.TierOn(axis),
		Features: tier.AvailableFeatures(m, axis),
		Next:     tier.NextTier(m, axis),
	}
	if summary.Tier != "" {
		summary.DisplayName = tier.DisplayName(summary.Tier)
	}
	return summary, nil
}

// CheckFeature answers whether a user may use feature on axis
func (s *GamificationService) CheckFeature(ctx context.Context, userID string, axis domain.Axis, feature string) (*FeatureAccess, error) {
	if !axis.Valid() {
		return nil, domain.ErrUnknownAxis
	}
	m, err := s.repo.GetMembership(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &FeatureAccess{
		Feature:   feature,
		Axis:      axis,
		HasAccess: tier.HasFeatureAccess(m, feature, axis),
		Upgrade:   tier.GetUpgradeInfo(m, feature, axis),
	}, nil
}

// CheckRosterLimit checks a team size against the academy roster cap
func (s *GamificationService) CheckRosterLimit(size int) (domain.RosterLimit, error) {
	if size < 0 {
		return domain.RosterLimit{}, fmt.Errorf("%w: roster size must not be negative", domain.ErrValidation)
	}
	return tier.CheckRosterLimit(size), nil
}

// Ping checks the persistence collaborator
func (s *GamificationService) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}
