package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/skills-gamification/internal/badge"
	"github.com/skills-gamification/internal/domain"
	"github.com/skills-gamification/internal/ledger"
	"github.com/skills-gamification/internal/rank"
	"github.com/skills-gamification/internal/scoring"
	"github.com/skills-gamification/internal/store"
	"github.com/skills-gamification/internal/streak"
)

// DrillResolver looks up the drills named by a submission
type DrillResolver interface {
	ResolveDrills(ctx context.Context, ids []int64, workoutType domain.WorkoutType) ([]domain.Drill, error)
}

// Leaderboard is the realtime balance cache
type Leaderboard interface {
	SetBalances(ctx context.Context, userID string, balances map[domain.Currency]int64) error
	Top(ctx context.Context, currency domain.Currency, n int) ([]domain.LeaderboardEntry, error)
	Position(ctx context.Context, currency domain.Currency, userID string) (*domain.LeaderboardEntry, error)
	CountRange(ctx context.Context, currency domain.Currency, min, max int64) (int64, error)
	Rebuild(ctx context.Context, currency domain.Currency, balances map[string]int64) error
}

// Notifier receives the events of a committed completion
type Notifier interface {
	PublishEvents(ctx context.Context, events []domain.GamificationEvent) error
}

// Options holds the tunable parts of the service
type Options struct {
	Location           *time.Location
	Milestones         []int
	MilestoneBonus     map[int]int64
	BadgeAwardCurrency domain.Currency
	DrillLookupTimeout time.Duration
	LeaderboardLimit   int
	LeaderboardMax     int
}

func (o *Options) applyDefaults() {
	if o.Location == nil {
		o.Location = time.UTC
	}
	if o.Milestones == nil {
		o.Milestones = streak.DefaultMilestones
	}
	o.Milestones = streak.NormalizeMilestones(o.Milestones)
	if o.BadgeAwardCurrency == "" {
		o.BadgeAwardCurrency = domain.CurrencyLaxCredit
	}
	if o.DrillLookupTimeout <= 0 {
		o.DrillLookupTimeout = 3 * time.Second
	}
	if o.LeaderboardLimit <= 0 {
		o.LeaderboardLimit = 10
	}
	if o.LeaderboardMax <= 0 {
		o.LeaderboardMax = 100
	}
	if o.LeaderboardMax < o.LeaderboardLimit {
		o.LeaderboardMax = o.LeaderboardLimit
	}
}

// GamificationService orchestrates workout completions and serves
// the read side of points, ranks, streaks, badges and tiers.
type GamificationService struct {
	repo        store.Repository
	drills      DrillResolver
	policy      scoring.Policy
	ranks       *rank.Catalog
	badges      *badge.Catalog
	leaderboard Leaderboard
	notifiers   []Notifier
	opts        Options
	clock       clockwork.Clock
	logger      *slog.Logger
}

// NewGamificationService creates a new gamification service
func NewGamificationService(
	repo store.Repository,
	drills DrillResolver,
	policy scoring.Policy,
	ranks *rank.Catalog,
	badges *badge.Catalog,
	opts Options,
	clock clockwork.Clock,
	logger *slog.Logger,
) *GamificationService {
	opts.applyDefaults()
	if policy == nil {
		policy = scoring.NewDefaultPolicy()
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GamificationService{
		repo:   repo,
		drills: drills,
		policy: policy,
		ranks:  ranks,
		badges: badges,
		opts:   opts,
		clock:  clock,
		logger: logger,
	}
}

// SetLeaderboard enables the realtime leaderboard cache
func (s *GamificationService) SetLeaderboard(lb Leaderboard) {
	s.leaderboard = lb
}

// AddNotifier registers a receiver for committed events
func (s *GamificationService) AddNotifier(n Notifier) {
	s.notifiers = append(s.notifiers, n)
}

// CompleteWorkout scores a workout, records it with its points and
// streak update in one transaction, then awards badges and recomputes
// the rank. Badge failures are reported in the result, not returned.
func (s *GamificationService) CompleteWorkout(ctx context.Context, sub domain.WorkoutSubmission) (*domain.WorkoutResult, error) {
	if err := sub.Validate(); err != nil {
		return nil, err
	}

	lookupCtx, cancel := context.WithTimeout(ctx, s.opts.DrillLookupTimeout)
	drills, err := s.drills.ResolveDrills(lookupCtx, sub.DrillIDs, sub.WorkoutType)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("resolving drills: %w", err)
	}
	if len(drills) == 0 {
		return nil, domain.ErrDrillsNotFound
	}

	now := s.clock.Now()
	today := domain.DateOf(now, s.opts.Location)
	userID := sub.UserID
	rankCurrency := s.ranks.Currency()

	result := &domain.WorkoutResult{Badges: []domain.AwardedBadge{}}
	var rankBefore int

	err = s.repo.InTx(ctx, func(tx store.Tx) error {
		l := ledger.New(tx, s.clock)

		state, err := tx.LockStreak(ctx, userID)
		if err != nil {
			return fmt.Errorf("locking streak: %w", err)
		}
		if sub.RequestID != "" {
			exists, err := tx.CompletionExists(ctx, userID, sub.RequestID)
			if err != nil {
				return err
			}
			if exists {
				return domain.ErrDuplicateRequest
			}
		}

		firstToday := state.LastActivityDate != today
		score := s.policy.Score(drills, streak.Effective(state, today), firstToday)

		before, err := l.GetBalance(ctx, userID, rankCurrency)
		if err != nil {
			return fmt.Errorf("reading rank balance: %w", err)
		}
		rankBefore = s.ranks.Compute(before).CurrentRankOrder

		completion := domain.WorkoutCompletion{
			ID:                uuid.New().String(),
			UserID:            userID,
			RequestID:         sub.RequestID,
			WorkoutType:       sub.WorkoutType,
			DrillIDs:          drillIDs(drills),
			Categories:        categories(drills),
			Points:            score.Points,
			TotalPoints:       score.Total,
			AverageDifficulty: score.AverageDifficulty,
			DurationMinutes:   sub.SessionMetadata.DurationMinutes,
			Notes:             sub.SessionMetadata.Notes,
			ActivityDate:      today,
			LocalHour:         now.In(s.opts.Location).Hour(),
			CompletedAt:       now,
		}
		if err := tx.InsertCompletion(ctx, completion); err != nil {
			return err
		}

		for _, currency := range sortedCurrencies(score.Points) {
			if _, err := l.Earn(ctx, userID, currency, score.Points[currency], domain.SourceWorkoutCompletion, completion.ID); err != nil {
				return fmt.Errorf("recording %s: %w", currency, err)
			}
		}

		res, err := streak.NewTracker(tx, s.opts.Milestones).RecordActivity(ctx, userID, today)
		if err != nil {
			return err
		}

		var bonus int64
		if res.MilestoneReached {
			bonus = s.opts.MilestoneBonus[res.Milestone]
			if bonus > 0 {
				sourceID := fmt.Sprintf("streak_%d", res.Milestone)
				if _, err := l.Earn(ctx, userID, rankCurrency, bonus, domain.SourceStreakMilestone, sourceID); err != nil {
					return fmt.Errorf("recording milestone bonus: %w", err)
				}
			}
		}

		result.CompletionID = completion.ID
		result.Streak = res
		result.Points = domain.PointsAwarded{
			Total:             score.Total,
			ByCategory:        score.Points,
			AverageDifficulty: score.AverageDifficulty,
			Multipliers:       score.Multipliers,
			MilestoneBonus:    bonus,
		}
		result.Summary = domain.Summary{
			DrillsCompleted: len(drills),
			WorkoutType:     sub.WorkoutType,
			PointsEarned:    score.Points,
			IsFirstToday:    firstToday,
			StreakStatus:    streakStatus(res.Current),
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateRequest) {
			return nil, err
		}
		return nil, fmt.Errorf("recording completion: %w", err)
	}

	awarded, err := s.awardBadges(ctx, userID)
	if err != nil {
		s.logger.Warn("badge evaluation failed", "user_id", userID, "completion_id", result.CompletionID, "error", err)
		result.BadgesPartialFailure = true
	}
	for _, def := range awarded {
		result.Badges = append(result.Badges, domain.AwardedBadge{
			BadgeKey:    def.BadgeKey,
			Name:        def.Name,
			PointsAward: def.PointsAward,
		})
	}

	balances := s.refreshRank(ctx, userID, result, rankBefore)
	s.publish(ctx, userID, result, balances, now)

	s.logger.Info("workout completed",
		"user_id", userID,
		"completion_id", result.CompletionID,
		"points", result.Points.Total,
		"streak", result.Streak.Current,
		"badges", len(result.Badges),
	)
	return result, nil
}

// awardBadges grants every newly met badge in its own transaction
func (s *GamificationService) awardBadges(ctx context.Context, userID string) ([]domain.BadgeDefinition, error) {
	var granted []domain.BadgeDefinition
	err := s.repo.InTx(ctx, func(tx store.Tx) error {
		awarder := badge.NewAwarder(s.badges, tx, ledger.New(tx, s.clock), s.opts.BadgeAwardCurrency, s.clock, s.logger)
		var err error
		granted, err = awarder.AwardEligible(ctx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return granted, nil
}

// refreshRank fills the post-commit rank into result. Failures are
// logged: the completion is already durable.
func (s *GamificationService) refreshRank(ctx context.Context, userID string, result *domain.WorkoutResult, rankBefore int) map[domain.Currency]int64 {
	var balance int64
	err := s.repo.InTx(ctx, func(tx store.Tx) error {
		var err error
		balance, err = ledger.New(tx, s.clock).GetBalance(ctx, userID, s.ranks.Currency())
		return err
	})
	if err != nil {
		s.logger.Warn("rank refresh failed", "user_id", userID, "error", err)
		return nil
	}

	state := s.ranks.Compute(balance)
	result.Rank = &state
	result.RankedUp = state.CurrentRankOrder > rankBefore
	if state.Current != nil {
		result.Summary.RankTitle = state.Current.Title
	}

	balances, err := s.repo.Balances(ctx, userID)
	if err != nil {
		s.logger.Warn("reading balances failed", "user_id", userID, "error", err)
		return nil
	}
	return balances
}

// publish runs the best-effort side effects of a committed completion
func (s *GamificationService) publish(ctx context.Context, userID string, result *domain.WorkoutResult, balances map[domain.Currency]int64, at time.Time) {
	if s.leaderboard != nil && balances != nil {
		if err := s.leaderboard.SetBalances(ctx, userID, balances); err != nil {
			s.logger.Warn("leaderboard update failed", "user_id", userID, "error", err)
		}
	}
	if len(s.notifiers) == 0 {
		return
	}
	events := domain.EventsFor(userID, result, at)
	for _, n := range s.notifiers {
		if err := n.PublishEvents(ctx, events); err != nil {
			s.logger.Warn("event publication failed", "user_id", userID, "error", err)
		}
	}
}

func drillIDs(drills []domain.Drill) []int64 {
	ids := make([]int64, len(drills))
	for i, d := range drills {
		ids[i] = d.ID
	}
	return ids
}

// categories lists the distinct primary categories of drills, sorted
func categories(drills []domain.Drill) []string {
	seen := make(map[string]bool)
	var out []string
	for _, d := range drills {
		if d.Category == "" || seen[d.Category] {
			continue
		}
		seen[d.Category] = true
		out = append(out, d.Category)
	}
	sort.Strings(out)
	return out
}

func sortedCurrencies(points map[domain.Currency]int64) []domain.Currency {
	out := make([]domain.Currency, 0, len(points))
	for c, amount := range points {
		if amount > 0 {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func streakStatus(current int) string {
	if current == 1 {
		return "1 day streak"
	}
	return fmt.Sprintf("%d day streak", current)
}
