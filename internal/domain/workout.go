package domain

import "time"

// WorkoutType identifies where a workout came from
type WorkoutType string

const (
	WorkoutCustom        WorkoutType = "custom"
	WorkoutSkillsAcademy WorkoutType = "skills_academy"
	WorkoutTeamPractice  WorkoutType = "team_practice"
)

// Valid reports whether t is a known workout type
func (t WorkoutType) Valid() bool {
	switch t {
	case WorkoutCustom, WorkoutSkillsAcademy, WorkoutTeamPractice:
		return true
	}
	return false
}

// Drill is a read-only catalog record
type Drill struct {
	ID                int64              `json:"id"`
	Title             string             `json:"title"`
	DifficultyScore   int                `json:"difficulty_score"`
	Category          string             `json:"category,omitempty"`
	CategoryRelevance map[string]float64 `json:"category_relevance,omitempty"`
	Source            WorkoutType        `json:"source,omitempty"`
}

// SessionMetadata is optional context supplied with a completion
type SessionMetadata struct {
	DurationMinutes *int   `json:"duration_minutes,omitempty" validate:"omitempty,min=0,max=1440"`
	Notes           string `json:"notes,omitempty" validate:"max=2000"`
}

// WorkoutSubmission is an inbound completion request
type WorkoutSubmission struct {
	UserID          string          `json:"user_id" validate:"required,max=128"`
	DrillIDs        []int64         `json:"drill_ids" validate:"required,min=1,max=200,dive,gt=0"`
	WorkoutType     WorkoutType     `json:"workout_type" validate:"required,oneof=custom skills_academy team_practice"`
	SessionMetadata SessionMetadata `json:"session_metadata"`
	RequestID       string          `json:"request_id,omitempty" validate:"omitempty,max=128"`
}

// Validate performs the structural checks every transport relies on
func (s WorkoutSubmission) Validate() error {
	if s.UserID == "" {
		return ErrMissingUser
	}
	if len(s.DrillIDs) == 0 {
		return ErrEmptyDrillList
	}
	if !s.WorkoutType.Valid() {
		return ErrInvalidWorkout
	}
	return nil
}

// WorkoutCompletion is the append-only history row of one workout
type WorkoutCompletion struct {
	ID                string             `json:"id"`
	UserID            string             `json:"user_id"`
	RequestID         string             `json:"request_id,omitempty"`
	WorkoutType       WorkoutType        `json:"workout_type"`
	DrillIDs          []int64            `json:"drill_ids"`
	Categories        []string           `json:"categories,omitempty"`
	Points            map[Currency]int64 `json:"points"`
	TotalPoints       int64              `json:"total_points"`
	AverageDifficulty float64            `json:"average_difficulty"`
	DurationMinutes   *int               `json:"duration_minutes,omitempty"`
	Notes             string             `json:"notes,omitempty"`
	ActivityDate      Date               `json:"activity_date"`
	LocalHour         int                `json:"local_hour"`
	CompletedAt       time.Time          `json:"completed_at"`
}

// Local hour windows for the early-morning and late-evening achievements
const (
	EarlyMorningBefore = 7
	LateEveningFrom    = 21
)

// PointsAwarded is the scoring part of a workout result
type PointsAwarded struct {
	Total             int64              `json:"total"`
	ByCategory        map[Currency]int64 `json:"by_category"`
	AverageDifficulty float64            `json:"average_difficulty"`
	Multipliers       map[string]float64 `json:"multipliers,omitempty"`
	MilestoneBonus    int64              `json:"milestone_bonus,omitempty"`
}

// AwardedBadge is a badge granted during a completion
type AwardedBadge struct {
	BadgeKey    string `json:"badge_key"`
	Name        string `json:"name"`
	PointsAward int64  `json:"points_award,omitempty"`
}

// Summary is the human-facing recap of a completion
type Summary struct {
	DrillsCompleted int                `json:"drills_completed"`
	WorkoutType     WorkoutType        `json:"workout_type"`
	PointsEarned    map[Currency]int64 `json:"points_earned"`
	IsFirstToday    bool               `json:"is_first_today"`
	StreakStatus    string             `json:"streak_status"`
	RankTitle       string             `json:"rank_title,omitempty"`
}

// WorkoutResult aggregates everything a completion changed
type WorkoutResult struct {
	CompletionID         string         `json:"completion_id"`
	Points               PointsAwarded  `json:"points"`
	Streak               StreakResult   `json:"streak"`
	Badges               []AwardedBadge `json:"badges"`
	BadgesPartialFailure bool           `json:"badges_partial_failure"`
	Rank                 *RankState     `json:"rank,omitempty"`
	RankedUp             bool           `json:"ranked_up"`
	Summary              Summary        `json:"summary"`
}

// Status is a user's gamification snapshot
type Status struct {
	UserID     string             `json:"user_id"`
	Balances   map[Currency]int64 `json:"balances"`
	Rank       RankState          `json:"rank"`
	Streak     StreakResult       `json:"streak"`
	BadgeCount int                `json:"badge_count"`
}
