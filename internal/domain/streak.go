package domain

// StreakState is the per-user daily activity aggregate
type StreakState struct {
	UserID           string `json:"user_id"`
	CurrentStreak    int    `json:"current_streak"`
	LongestStreak    int    `json:"longest_streak"`
	LastActivityDate Date   `json:"last_activity_date"`
}

// StreakResult describes the outcome of recording one activity
type StreakResult struct {
	Current             int    `json:"current"`
	Longest             int    `json:"longest"`
	IsNewDay            bool   `json:"is_new_day"`
	MilestoneReached    bool   `json:"milestone_reached"`
	Milestone           int    `json:"milestone,omitempty"`
	Title               string `json:"title"`
	NextMilestone       int    `json:"next_milestone,omitempty"`
	DaysToNextMilestone int    `json:"days_to_next_milestone,omitempty"`
	LastActivityDate    Date   `json:"last_activity_date"`
}
