package domain

// RankDefinition is one entry of the ordered rank catalog
type RankDefinition struct {
	RankOrder int    `json:"rank_order"`
	Title     string `json:"title"`
	Threshold int64  `json:"threshold"`
	IconRef   string `json:"icon_ref,omitempty"`
}

// RankState is a user's rank derived from one currency balance.
// Current is nil when the balance sits below the lowest threshold.
type RankState struct {
	Currency           Currency        `json:"currency"`
	Balance            int64           `json:"balance"`
	CurrentRankOrder   int             `json:"current_rank_order"`
	Current            *RankDefinition `json:"current,omitempty"`
	Next               *RankDefinition `json:"next,omitempty"`
	ProgressPercentage float64         `json:"progress_percentage"`
	PointsToNext       int64           `json:"points_to_next"`
}

// LeaderboardEntry is one row of the rank leaderboard
type LeaderboardEntry struct {
	Position int64    `json:"position"`
	UserID   string   `json:"user_id"`
	Currency Currency `json:"currency"`
	Balance  int64    `json:"balance"`
	Title    string   `json:"title,omitempty"`
}

// RankBracket counts users whose balance falls inside one rank
type RankBracket struct {
	RankOrder int    `json:"rank_order"`
	Title     string `json:"title"`
	Threshold int64  `json:"threshold"`
	Users     int64  `json:"users"`
}
