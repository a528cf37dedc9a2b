package domain

// Axis is one independent membership dimension
type Axis string

const (
	AxisClub     Axis = "club"
	AxisTeam     Axis = "team"
	AxisCoaching Axis = "coaching"
)

// Valid reports whether a is a known axis
func (a Axis) Valid() bool {
	switch a {
	case AxisClub, AxisTeam, AxisCoaching:
		return true
	}
	return false
}

// Tier is a subscription level on one axis
type Tier string

const (
	TierFoundation    Tier = "foundation"
	TierGrowth        Tier = "growth"
	TierCommand       Tier = "command"
	TierStructure     Tier = "structure"
	TierLeadership    Tier = "leadership"
	TierActivated     Tier = "activated"
	TierEssentialsKit Tier = "essentials_kit"
	TierConfidenceKit Tier = "confidence_kit"
)

// Membership is read from the billing collaborator, never written here
type Membership struct {
	UserID       string `json:"user_id"`
	ClubTier     Tier   `json:"club_tier,omitempty"`
	TeamTier     Tier   `json:"team_tier,omitempty"`
	CoachingTier Tier   `json:"coaching_tier,omitempty"`
	IsAdmin      bool   `json:"is_admin"`
}

// TierOn returns the tier held on axis, empty when none
func (m Membership) TierOn(axis Axis) Tier {
	switch axis {
	case AxisClub:
		return m.ClubTier
	case AxisTeam:
		return m.TeamTier
	case AxisCoaching:
		return m.CoachingTier
	}
	return ""
}

// UpgradeInfo tells a caller which tier unlocks a feature
type UpgradeInfo struct {
	RequiresUpgrade bool   `json:"requires_upgrade"`
	TargetTier      Tier   `json:"target_tier,omitempty"`
	DisplayName     string `json:"display_name,omitempty"`
}

// NextTierInfo lists what the next tier on an axis adds
type NextTierInfo struct {
	Tier        Tier     `json:"tier"`
	DisplayName string   `json:"display_name"`
	Features    []string `json:"features"`
}

// RosterLimit is the result of a roster cap check
type RosterLimit struct {
	WithinLimit bool `json:"within_limit"`
	Remaining   int  `json:"remaining"`
	Limit       int  `json:"limit"`
}
