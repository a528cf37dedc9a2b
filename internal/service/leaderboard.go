package service

import (
	"context"
	"fmt"
	"math"

	"github.com/skills-gamification/internal/domain"
)

// GetTopN returns the top n users by rank currency with their rank titles
func (s *GamificationService) GetTopN(ctx context.Context, n int) ([]domain.LeaderboardEntry, error) {
	// Validate limit
	if n <= 0 {
		n = s.opts.LeaderboardLimit
	}
	if n > s.opts.LeaderboardMax {
		n = s.opts.LeaderboardMax
	}
	currency := s.ranks.Currency()

	var entries []domain.LeaderboardEntry
	if s.leaderboard != nil {
		top, err := s.leaderboard.Top(ctx, currency, n)
		if err == nil {
			entries = top
		} else {
			s.logger.Warn("leaderboard cache read failed, using database", "error", err)
		}
	}
	if entries == nil {
		balances, err := s.repo.TopBalances(ctx, currency, n)
		if err != nil {
			return nil, fmt.Errorf("getting top balances: %w", err)
		}
		entries = make([]domain.LeaderboardEntry, len(balances))
		for i, b := range balances {
			entries[i] = domain.LeaderboardEntry{
				Position: int64(i + 1),
				UserID:   b.UserID,
				Currency: currency,
				Balance:  b.Balance,
			}
		}
	}

	for i := range entries {
		entries[i].Title = s.ranks.TitleFor(entries[i].Balance)
	}
	return entries, nil
}

// GetPosition returns a user's leaderboard position, or nil when the
// realtime leaderboard is disabled or does not list the user.
func (s *GamificationService) GetPosition(ctx context.Context, userID string) *domain.LeaderboardEntry {
	if s.leaderboard == nil {
		return nil
	}
	entry, err := s.leaderboard.Position(ctx, s.ranks.Currency(), userID)
	if err != nil {
		if !domain.IsNotFoundError(err) {
			s.logger.Warn("leaderboard position read failed", "user_id", userID, "error", err)
		}
		return nil
	}
	entry.Title = s.ranks.TitleFor(entry.Balance)
	return entry
}

// GetRankDistribution counts users per rank bracket. A bracket spans
// from its threshold up to the next rank's threshold.
func (s *GamificationService) GetRankDistribution(ctx context.Context) ([]domain.RankBracket, error) {
	defs := s.ranks.Definitions()
	currency := s.ranks.Currency()

	brackets := make([]domain.RankBracket, len(defs))
	for i, def := range defs {
		upper := int64(math.MaxInt64)
		if i+1 < len(defs) {
			upper = defs[i+1].Threshold
		}
		users, err := s.countRange(ctx, currency, def.Threshold, upper)
		if err != nil {
			return nil, err
		}
		brackets[i] = domain.RankBracket{
			RankOrder: def.RankOrder,
			Title:     def.Title,
			Threshold: def.Threshold,
			Users:     users,
		}
	}
	return brackets, nil
}

func (s *GamificationService) countRange(ctx context.Context, currency domain.Currency, min, max int64) (int64, error) {
	if s.leaderboard != nil {
		n, err := s.leaderboard.CountRange(ctx, currency, min, max)
		if err == nil {
			return n, nil
		}
		s.logger.Warn("leaderboard cache count failed, using database", "error", err)
	}
	n, err := s.repo.CountBalancesInRange(ctx, currency, min, max)
	if err != nil {
		return 0, fmt.Errorf("counting rank bracket: %w", err)
	}
	return n, nil
}

// GetRankCatalog returns the rank ladder
func (s *GamificationService) GetRankCatalog() []domain.RankDefinition {
	return s.ranks.Definitions()
}

// Reconcile re-sums every balance from the ledger and rebuilds the
// realtime leaderboard from the corrected cache.
func (s *GamificationService) Reconcile(ctx context.Context) (int64, error) {
	changed, err := s.repo.ReconcileBalances(ctx)
	if err != nil {
		return 0, fmt.Errorf("reconciling balances: %w", err)
	}
	if changed > 0 {
		s.logger.Warn("balance cache drift corrected", "rows", changed)
	}

	if s.leaderboard == nil {
		return changed, nil
	}
	for _, currency := range domain.KnownCurrencies {
		balances, err := s.repo.AllBalances(ctx, currency)
		if err != nil {
			return changed, fmt.Errorf("loading %s balances: %w", currency, err)
		}
		if err := s.leaderboard.Rebuild(ctx, currency, balances); err != nil {
			return changed, fmt.Errorf("rebuilding %s leaderboard: %w", currency, err)
		}
	}
	return changed, nil
}
