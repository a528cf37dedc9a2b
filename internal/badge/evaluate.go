package badge

import (
	"sort"

	"github.com/skills-gamification/internal/domain"
)

// Achievement keys understood by achievement requirements
const (
	AchievementPerfectWeek  = "perfect_week"
	AchievementEarlyMorning = "early_morning"
	AchievementLateEvening  = "late_evening"
)

// achievementFunc returns the user's current value for an achievement
// and the value required when the definition leaves it at zero.
type achievementFunc func(stats domain.UserStats) (current int64, fallback int64)

var achievements = map[string]achievementFunc{
	AchievementPerfectWeek: func(s domain.UserStats) (int64, int64) {
		return int64(longestRun(s.ActivityDates)), 7
	},
	AchievementEarlyMorning: func(s domain.UserStats) (int64, int64) {
		return s.EarlyMorningWorkouts, 1
	},
	AchievementLateEvening: func(s domain.UserStats) (int64, int64) {
		return s.LateEveningWorkouts, 1
	},
}

// Evaluate checks every active, unearned definition against stats.
// It is pure: nothing is read or written.
func Evaluate(stats domain.UserStats, defs []domain.BadgeDefinition, earned map[string]bool) []domain.BadgeEligibility {
	out := make([]domain.BadgeEligibility, 0, len(defs))
	for _, def := range defs {
		if !def.IsActive || earned[def.BadgeKey] {
			continue
		}
		out = append(out, Check(stats, def))
	}
	return out
}

// Check evaluates a single definition. Unknown achievements are never met.
func Check(stats domain.UserStats, def domain.BadgeDefinition) domain.BadgeEligibility {
	current, required, known := measure(stats, def)
	e := domain.BadgeEligibility{Badge: def}
	if !known {
		return e
	}
	e.RequirementMet = current >= required
	e.Progress = &domain.BadgeProgress{
		Current:    current,
		Required:   required,
		Percentage: percentage(current, required),
	}
	return e
}

func measure(stats domain.UserStats, def domain.BadgeDefinition) (int64, int64, bool) {
	switch def.RequirementType {
	case domain.RequirementCount:
		return stats.Counter(def.RequirementContext), def.RequirementValue, true
	case domain.RequirementPoints:
		currency := domain.Currency(def.RequirementContext)
		if currency == "" {
			currency = domain.CurrencyLaxCredit
		}
		return stats.Balance(currency), def.RequirementValue, true
	case domain.RequirementStreak:
		return int64(stats.CurrentStreak), def.RequirementValue, true
	case domain.RequirementAchievement:
		fn, ok := achievements[def.RequirementContext]
		if !ok {
			return 0, 0, false
		}
		current, fallback := fn(stats)
		required := def.RequirementValue
		if required == 0 {
			required = fallback
		}
		return current, required, true
	}
	return 0, 0, false
}

func percentage(current, required int64) float64 {
	if required <= 0 {
		return 100
	}
	p := float64(current) / float64(required) * 100
	if p > 100 {
		return 100
	}
	if p < 0 {
		return 0
	}
	return p
}

// longestRun is the longest stretch of consecutive days in dates
func longestRun(dates []domain.Date) int {
	if len(dates) == 0 {
		return 0
	}
	sorted := make([]domain.Date, len(dates))
	copy(sorted, dates)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })

	best, run := 1, 1
	for i := 1; i < len(sorted); i++ {
		switch sorted[i].DaysSince(sorted[i-1]) {
		case 0:
		case 1:
			run++
		default:
			run = 1
		}
		if run > best {
			best = run
		}
	}
	return best
}
