package streak

import (
	"context"
	"fmt"
	"sort"

	"github.com/skills-gamification/internal/domain"
)

// DefaultMilestones are the streak lengths that trigger a milestone
var DefaultMilestones = []int{7, 30, 100}

// Store persists per-user streak state. LockStreak must create the row
// when missing and hold a per-user lock until the surrounding unit of
// work ends.
type Store interface {
	LockStreak(ctx context.Context, userID string) (domain.StreakState, error)
	SaveStreak(ctx context.Context, state domain.StreakState) error
}

// Advance applies one activity on day to state. A day equal to or
// before the last recorded activity leaves the state untouched.
func Advance(state domain.StreakState, day domain.Date, milestones []int) (domain.StreakState, domain.StreakResult) {
	last := state.LastActivityDate
	if !last.IsZero() && !last.Before(day) {
		return state, result(state, false, 0, milestones)
	}

	previous := state.CurrentStreak
	next := state
	if !last.IsZero() && day.DaysSince(last) == 1 {
		next.CurrentStreak++
	} else {
		next.CurrentStreak = 1
	}
	if next.CurrentStreak > next.LongestStreak {
		next.LongestStreak = next.CurrentStreak
	}
	next.LastActivityDate = day

	crossed := crossedMilestone(previous, next.CurrentStreak, milestones)
	return next, result(next, true, crossed, milestones)
}

// Effective is the streak still alive on day: the stored value when the
// last activity was on day or the day before, otherwise zero.
func Effective(state domain.StreakState, day domain.Date) int {
	if state.LastActivityDate.IsZero() {
		return 0
	}
	gap := day.DaysSince(state.LastActivityDate)
	if gap < 0 || gap > 1 {
		return 0
	}
	return state.CurrentStreak
}

// Describe reports the streak as seen on day without mutating it
func Describe(state domain.StreakState, day domain.Date, milestones []int) domain.StreakResult {
	view := state
	view.CurrentStreak = Effective(state, day)
	return result(view, false, 0, milestones)
}

// Title names a streak length
func Title(streak int) string {
	switch {
	case streak >= 100:
		return "Century Club"
	case streak >= 30:
		return "Monthly Master"
	case streak >= 14:
		return "Two Week Warrior"
	case streak >= 7:
		return "Weekly Warrior"
	case streak >= 3:
		return "Building Momentum"
	case streak >= 1:
		return "Getting Started"
	}
	return "Ready to Begin"
}

// NormalizeMilestones returns a sorted copy without duplicates or
// non-positive values.
func NormalizeMilestones(milestones []int) []int {
	out := make([]int, 0, len(milestones))
	seen := make(map[int]bool, len(milestones))
	for _, m := range milestones {
		if m <= 0 || seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	sort.Ints(out)
	return out
}

func crossedMilestone(before, after int, milestones []int) int {
	crossed := 0
	for _, m := range milestones {
		if before < m && after >= m {
			crossed = m
		}
	}
	return crossed
}

func result(state domain.StreakState, isNewDay bool, milestone int, milestones []int) domain.StreakResult {
	r := domain.StreakResult{
		Current:          state.CurrentStreak,
		Longest:          state.LongestStreak,
		IsNewDay:         isNewDay,
		MilestoneReached: milestone > 0,
		Milestone:        milestone,
		Title:            Title(state.CurrentStreak),
		LastActivityDate: state.LastActivityDate,
	}
	for _, m := range milestones {
		if m > state.CurrentStreak {
			r.NextMilestone = m
			r.DaysToNextMilestone = m - state.CurrentStreak
			break
		}
	}
	return r
}

// Tracker records daily activity against a Store
type Tracker struct {
	store      Store
	milestones []int
}

// NewTracker creates a tracker. A nil milestone list uses DefaultMilestones.
func NewTracker(store Store, milestones []int) *Tracker {
	if milestones == nil {
		milestones = DefaultMilestones
	}
	return &Tracker{store: store, milestones: NormalizeMilestones(milestones)}
}

// RecordActivity advances the user's streak for day under the store's
// per-user lock. Repeats on the same day are no-ops.
func (t *Tracker) RecordActivity(ctx context.Context, userID string, day domain.Date) (domain.StreakResult, error) {
	state, err := t.store.LockStreak(ctx, userID)
	if err != nil {
		return domain.StreakResult{}, fmt.Errorf("locking streak: %w", err)
	}
	state.UserID = userID

	next, res := Advance(state, day, t.milestones)
	if !res.IsNewDay {
		return res, nil
	}
	if err := t.store.SaveStreak(ctx, next); err != nil {
		return domain.StreakResult{}, fmt.Errorf("saving streak: %w", err)
	}
	return res, nil
}

// Milestones returns the tracker's milestone list
func (t *Tracker) Milestones() []int {
	return t.milestones
}
