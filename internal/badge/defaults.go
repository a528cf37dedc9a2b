package badge

import "github.com/skills-gamification/internal/domain"

// DefaultDefinitions is the stock academy badge set
var DefaultDefinitions = []domain.BadgeDefinition{
	countBadge(1, "first_workout", "First Steps", "Completed your first workout", "workouts", 1, 0, "common"),
	countBadge(2, "five_workouts", "Getting Started", "Completed 5 workouts", "workouts", 5, 25, "common"),
	countBadge(3, "ten_workouts", "Committed", "Completed 10 workouts", "workouts", 10, 50, "common"),
	countBadge(4, "twenty_five_workouts", "Dedicated", "Completed 25 workouts", "workouts", 25, 100, "rare"),
	countBadge(5, "fifty_workouts", "Grinder", "Completed 50 workouts", "workouts", 50, 250, "epic"),

	pointsBadge(10, "points_100", "Point Getter", 100, 10, "common"),
	pointsBadge(11, "points_500", "Point Collector", 500, 25, "common"),
	pointsBadge(12, "points_1000", "Point Master", 1000, 50, "rare"),
	pointsBadge(13, "points_5000", "Point Champion", 5000, 100, "epic"),
	pointsBadge(14, "points_10000", "Point Legend", 10000, 250, "legendary"),

	streakBadge(20, "streak_3", "On a Roll", 3, 15, "common"),
	streakBadge(21, "streak_7", "Weekly Warrior", 7, 50, "rare"),
	streakBadge(22, "streak_30", "Monthly Master", 30, 200, "epic"),
	streakBadge(23, "streak_100", "Century Club", 100, 1000, "legendary"),

	specialistBadge(30, "attack_master", "Attack Master", "attack_workouts"),
	specialistBadge(31, "defense_expert", "Defense Expert", "defense_workouts"),
	specialistBadge(32, "midfield_champion", "Midfield Champion", "midfield_workouts"),
	specialistBadge(33, "wall_ball_warrior", "Wall Ball Warrior", "wall_ball_workouts"),

	achievementBadge(40, "perfect_week", "Perfect Week", "Worked out 7 days in a row", AchievementPerfectWeek, 7, 75),
	achievementBadge(41, "early_bird", "Early Bird", "5 workouts before 7am", AchievementEarlyMorning, 5, 25),
	achievementBadge(42, "night_owl", "Night Owl", "5 workouts after 9pm", AchievementLateEvening, 5, 25),
}

func countBadge(order int, key, name, desc, counter string, value, award int64, rarity string) domain.BadgeDefinition {
	return domain.BadgeDefinition{
		BadgeKey: key, Name: name, Description: desc, Category: "workout_completion",
		RequirementType: domain.RequirementCount, RequirementContext: counter, RequirementValue: value,
		PointsAward: award, Rarity: rarity, SortOrder: order, IsActive: true,
	}
}

func pointsBadge(order int, key, name string, value, award int64, rarity string) domain.BadgeDefinition {
	return domain.BadgeDefinition{
		BadgeKey: key, Name: name, Description: "Earned lax credits", Category: "points",
		RequirementType: domain.RequirementPoints, RequirementContext: string(domain.CurrencyLaxCredit), RequirementValue: value,
		PointsAward: award, Rarity: rarity, SortOrder: order, IsActive: true,
	}
}

func streakBadge(order int, key, name string, value, award int64, rarity string) domain.BadgeDefinition {
	return domain.BadgeDefinition{
		BadgeKey: key, Name: name, Description: "Daily workout streak", Category: "streaks",
		RequirementType: domain.RequirementStreak, RequirementContext: "daily_workouts", RequirementValue: value,
		PointsAward: award, Rarity: rarity, SortOrder: order, IsActive: true,
	}
}

func specialistBadge(order int, key, name, counter string) domain.BadgeDefinition {
	return domain.BadgeDefinition{
		BadgeKey: key, Name: name, Description: "Completed 10 position workouts", Category: "specialist",
		RequirementType: domain.RequirementCount, RequirementContext: counter, RequirementValue: 10,
		PointsAward: 100, Rarity: "rare", SortOrder: order, IsActive: true,
	}
}

func achievementBadge(order int, key, name, desc, achievement string, value, award int64) domain.BadgeDefinition {
	return domain.BadgeDefinition{
		BadgeKey: key, Name: name, Description: desc, Category: "special",
		RequirementType: domain.RequirementAchievement, RequirementContext: achievement, RequirementValue: value,
		PointsAward: award, Rarity: "rare", SortOrder: order, IsActive: true,
	}
}
