package domain

import "time"

// RequirementType selects how a badge requirement is evaluated
type RequirementType string

const (
	RequirementCount       RequirementType = "count"
	RequirementPoints      RequirementType = "points"
	RequirementStreak      RequirementType = "streak"
	RequirementAchievement RequirementType = "achievement"
)

// BadgeDefinition is an immutable catalog entry
type BadgeDefinition struct {
	BadgeKey           string          `json:"badge_key"`
	Name               string          `json:"name"`
	Description        string          `json:"description,omitempty"`
	Category           string          `json:"category"`
	RequirementType    RequirementType `json:"requirement_type"`
	RequirementContext string          `json:"requirement_context"`
	RequirementValue   int64           `json:"requirement_value"`
	PointsAward        int64           `json:"points_award"`
	Rarity             string          `json:"rarity,omitempty"`
	IconRef            string          `json:"icon_ref,omitempty"`
	SortOrder          int             `json:"sort_order"`
	IsActive           bool            `json:"is_active"`
}

// UserBadge is an append-only award record
type UserBadge struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	BadgeKey  string    `json:"badge_key"`
	AwardedAt time.Time `json:"awarded_at"`
	Source    string    `json:"source"`
}

// BadgeProgress is partial credit toward a requirement
type BadgeProgress struct {
	Current    int64   `json:"current"`
	Required   int64   `json:"required"`
	Percentage float64 `json:"percentage"`
}

// BadgeEligibility is the evaluation of one unearned badge
type BadgeEligibility struct {
	Badge          BadgeDefinition `json:"badge"`
	RequirementMet bool            `json:"requirement_met"`
	Progress       *BadgeProgress  `json:"progress,omitempty"`
}

// UserStats is the snapshot badge requirements are checked against.
// Counters holds "workouts", "drills", "<workout_type>_workouts" and
// "<category>_workouts".
type UserStats struct {
	UserID               string             `json:"user_id"`
	Counters             map[string]int64   `json:"counters"`
	Balances             map[Currency]int64 `json:"balances"`
	CurrentStreak        int                `json:"current_streak"`
	LongestStreak        int                `json:"longest_streak"`
	ActivityDates        []Date             `json:"activity_dates,omitempty"`
	EarlyMorningWorkouts int64              `json:"early_morning_workouts"`
	LateEveningWorkouts  int64              `json:"late_evening_workouts"`
}

// Counter returns a named counter, zero when absent
func (s UserStats) Counter(name string) int64 {
	return s.Counters[name]
}

// Balance returns a currency balance, zero when absent
func (s UserStats) Balance(c Currency) int64 {
	return s.Balances[c]
}

// BadgeAward is the outcome of one award attempt
type BadgeAward struct {
	Awarded bool            `json:"awarded"`
	Badge   BadgeDefinition `json:"badge"`
}
