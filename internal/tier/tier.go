package tier

import (
	"github.com/skills-gamification/internal/domain"
)

// RosterLimit is the per-team cap on academy access
const RosterLimit = 25

// FeatureAcademyAccess is the feature the roster cap applies to
const FeatureAcademyAccess = "academy_access"

type level struct {
	tier     domain.Tier
	name     string
	features []string
}

// ladders lists each axis from lowest to highest tier with the features
// that tier adds on top of the one below it.
var ladders = map[domain.Axis][]level{
	domain.AxisClub: {
		{domain.TierFoundation, "Club OS Foundation", []string{"basic_settings", "team_overview", "billing_view", "basic_support"}},
		{domain.TierGrowth, "Club OS Growth", []string{"advanced_settings", "team_management", "analytics", "bulk_operations", "priority_support"}},
		{domain.TierCommand, "Club OS Command", []string{"full_admin", "custom_features", "api_access", "white_label", "dedicated_support"}},
	},
	domain.AxisTeam: {
		{domain.TierStructure, "Team Structure", []string{"roster_management", "basic_scheduling", "basic_communication"}},
		{domain.TierLeadership, "Team Leadership", []string{"playbook_access", "advanced_scheduling", "parent_communication", "team_stats"}},
		{domain.TierActivated, "Team Activated", []string{"full_analytics", "custom_playbooks", "advanced_features", "performance_tracking", FeatureAcademyAccess}},
	},
	domain.AxisCoaching: {
		{domain.TierEssentialsKit, "Coach Essentials Kit", []string{"practice_planner", "basic_resources", "drill_library", "basic_training"}},
		{domain.TierConfidenceKit, "Coach Confidence Kit", []string{"custom_content", "advanced_training", "personal_coaching", "certification_tracking"}},
	},
}

// Tiers returns the tiers of axis in ascending order
func Tiers(axis domain.Axis) []domain.Tier {
	ladder := ladders[axis]
	out := make([]domain.Tier, len(ladder))
	for i, l := range ladder {
		out[i] = l.tier
	}
	return out
}

// Features returns every feature tier grants on axis, including those
// inherited from lower tiers. Unknown tiers grant nothing.
func Features(axis domain.Axis, t domain.Tier) []string {
	var out []string
	for _, l := range ladders[axis] {
		out = append(out, l.features...)
		if l.tier == t {
			return out
		}
	}
	return nil
}

// HasFeatureAccess reports whether membership unlocks feature on axis
func HasFeatureAccess(m domain.Membership, feature string, axis domain.Axis) bool {
	if m.IsAdmin {
		return true
	}
	t := m.TierOn(axis)
	if t == "" {
		return false
	}
	return contains(Features(axis, t), feature)
}

// GetUpgradeInfo finds the lowest tier on axis that includes feature.
// An unknown feature requires an upgrade with no target.
func GetUpgradeInfo(m domain.Membership, feature string, axis domain.Axis) domain.UpgradeInfo {
	if HasFeatureAccess(m, feature, axis) {
		return domain.UpgradeInfo{}
	}
	for _, l := range ladders[axis] {
		if contains(l.features, feature) {
			return domain.UpgradeInfo{RequiresUpgrade: true, TargetTier: l.tier, DisplayName: l.name}
		}
	}
	return domain.UpgradeInfo{RequiresUpgrade: true}
}

// AvailableFeatures lists the features membership holds on axis.
// Admins get the top tier's set.
func AvailableFeatures(m domain.Membership, axis domain.Axis) []string {
	ladder := ladders[axis]
	if m.IsAdmin && len(ladder) > 0 {
		return Features(axis, ladder[len(ladder)-1].tier)
	}
	t := m.TierOn(axis)
	if t == "" {
		return []string{}
	}
	if f := Features(axis, t); f != nil {
		return f
	}
	return []string{}
}

// NextTier returns the tier above membership's current one on axis and
// the features it adds, or nil at the top. A member with no tier on the
// axis is offered the lowest tier.
func NextTier(m domain.Membership, axis domain.Axis) *domain.NextTierInfo {
	if m.IsAdmin {
		return nil
	}
	ladder := ladders[axis]
	current := m.TierOn(axis)
	next := 0
	if current != "" {
		next = -1
		for i, l := range ladder {
			if l.tier == current {
				next = i + 1
				break
			}
		}
		if next < 0 {
			return nil
		}
	}
	if next >= len(ladder) {
		return nil
	}
	l := ladder[next]
	features := make([]string, len(l.features))
	copy(features, l.features)
	return &domain.NextTierInfo{Tier: l.tier, DisplayName: l.name, Features: features}
}

// DisplayName returns the marketing name of a tier
func DisplayName(t domain.Tier) string {
	for _, ladder := range ladders {
		for _, l := range ladder {
			if l.tier == t {
				return l.name
			}
		}
	}
	return string(t)
}

// AxisOf returns the axis a tier belongs to
func AxisOf(t domain.Tier) (domain.Axis, bool) {
	for axis, ladder := range ladders {
		for _, l := range ladder {
			if l.tier == t {
				return axis, true
			}
		}
	}
	return "", false
}

// CheckRosterLimit compares a team size against the academy roster cap
func CheckRosterLimit(size int) domain.RosterLimit {
	return domain.RosterLimit{
		WithinLimit: size <= RosterLimit,
		Remaining:   max(0, RosterLimit-size),
		Limit:       RosterLimit,
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
