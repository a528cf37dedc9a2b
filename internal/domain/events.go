package domain

import "time"

// EventType names a gamification event
type EventType string

const (
	EventPointsAwarded   EventType = "points_awarded"
	EventBadgeAwarded    EventType = "badge_awarded"
	EventRankUp          EventType = "rank_up"
	EventStreakMilestone EventType = "streak_milestone"
)

// GamificationEvent is published after a completion commits
type GamificationEvent struct {
	Type       EventType   `json:"type"`
	UserID     string      `json:"user_id"`
	Data       interface{} `json:"data,omitempty"`
	OccurredAt time.Time   `json:"occurred_at"`
}

// EventsFor derives the events a committed result should publish
func EventsFor(userID string, result *WorkoutResult, at time.Time) []GamificationEvent {
	events := []GamificationEvent{{
		Type:       EventPointsAwarded,
		UserID:     userID,
		Data:       result.Points,
		OccurredAt: at,
	}}
	for _, b := range result.Badges {
		events = append(events, GamificationEvent{
			Type:       EventBadgeAwarded,
			UserID:     userID,
			Data:       b,
			OccurredAt: at,
		})
	}
	if result.RankedUp && result.Rank != nil {
		events = append(events, GamificationEvent{
			Type:       EventRankUp,
			UserID:     userID,
			Data:       result.Rank,
			OccurredAt: at,
		})
	}
	if result.Streak.MilestoneReached {
		events = append(events, GamificationEvent{
			Type:       EventStreakMilestone,
			UserID:     userID,
			Data:       result.Streak,
			OccurredAt: at,
		})
	}
	return events
}
