package scoring

import (
	"math"
	"strings"

	"github.com/skills-gamification/internal/domain"
)

const (
	MinDifficulty = 1
	MaxDifficulty = 5
)

// Multiplier names echoed in results
const (
	BonusDifficulty = "difficulty"
	BonusStreak     = "streak"
	BonusFirstToday = "first_today"
)

// Score is the output of a scoring policy. Points holds only nonzero,
// nonnegative currency deltas.
type Score struct {
	Points            map[domain.Currency]int64
	Total             int64
	AverageDifficulty float64
	Multipliers       map[string]float64
}

// Policy turns completed drills into currency deltas
type Policy interface {
	Score(drills []domain.Drill, currentStreak int, firstToday bool) Score
}

// DefaultPolicy awards the clamped difficulty of every drill as
// lax_credit, spreads it over category currencies by relevance, and
// applies difficulty, streak and first-of-day multipliers.
type DefaultPolicy struct{}

// NewDefaultPolicy returns the standard scoring curve
func NewDefaultPolicy() DefaultPolicy {
	return DefaultPolicy{}
}

// Score implements Policy
func (DefaultPolicy) Score(drills []domain.Drill, currentStreak int, firstToday bool) Score {
	score := Score{
		Points:      make(map[domain.Currency]int64),
		Multipliers: make(map[string]float64),
	}
	if len(drills) == 0 {
		return score
	}

	raw := make(map[domain.Currency]float64)
	var base int64
	for _, d := range drills {
		difficulty := ClampDifficulty(d.DifficultyScore)
		base += int64(difficulty)
		for category, weight := range relevance(d) {
			if weight <= 0 {
				continue
			}
			raw[CurrencyForCategory(category)] += math.Round(float64(difficulty) * weight)
		}
	}
	raw[domain.CurrencyLaxCredit] = float64(base)

	avg := float64(base) / float64(len(drills))
	score.AverageDifficulty = math.Round(avg*10) / 10

	if m := difficultyMultiplier(avg); m > 1 {
		score.Multipliers[BonusDifficulty] = m
	}
	if m := streakMultiplier(currentStreak); m > 1 {
		score.Multipliers[BonusStreak] = m
	}
	if firstToday {
		score.Multipliers[BonusFirstToday] = 1.1
	}

	total := 1.0
	for _, name := range []string{BonusDifficulty, BonusStreak, BonusFirstToday} {
		if m, ok := score.Multipliers[name]; ok {
			total *= m
		}
	}
	for currency, points := range raw {
		awarded := int64(math.Round(points * total))
		if awarded > 0 {
			score.Points[currency] = awarded
		}
	}
	score.Total = score.Points[domain.CurrencyLaxCredit]
	return score
}

// ClampDifficulty bounds a difficulty score to the supported range
func ClampDifficulty(d int) int {
	if d < MinDifficulty {
		return MinDifficulty
	}
	if d > MaxDifficulty {
		return MaxDifficulty
	}
	return d
}

func difficultyMultiplier(avg float64) float64 {
	switch {
	case avg >= 4.0:
		return 1.5
	case avg >= 3.5:
		return 1.25
	}
	return 1
}

func streakMultiplier(streak int) float64 {
	switch {
	case streak >= 30:
		return 1.3
	case streak >= 7:
		return 1.15
	case streak >= 3:
		return 1.05
	}
	return 1
}

func relevance(d domain.Drill) map[string]float64 {
	if len(d.CategoryRelevance) > 0 {
		return d.CategoryRelevance
	}
	if d.Category == "" {
		return nil
	}
	return map[string]float64{d.Category: 1}
}

// CurrencyForCategory maps a drill category to the currency it earns.
// Unrecognised categories earn flex points.
func CurrencyForCategory(category string) domain.Currency {
	c := strings.ToLower(strings.TrimSpace(category))
	switch {
	case c == "attack" || c == "offense" || strings.Contains(c, "offensive") || strings.Contains(c, "settled offense"):
		return domain.CurrencyAttackToken
	case c == "defense" || strings.Contains(c, "defensive") || strings.Contains(c, "settled defense"):
		return domain.CurrencyDefenseDollar
	case c == "midfield" || strings.Contains(c, "transition"):
		return domain.CurrencyMidfieldMedal
	case strings.Contains(c, "wall ball") || strings.Contains(c, "wall_ball") || c == "goalie":
		return domain.CurrencyReboundReward
	case strings.Contains(c, "strategy") || c == "iq" || strings.Contains(c, "lax iq") || strings.Contains(c, "lax_iq"):
		return domain.CurrencyLaxIQPoint
	}
	return domain.CurrencyFlexPoint
}
