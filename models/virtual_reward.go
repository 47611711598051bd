package models

import "time"

// RewardType groups unlockable rewards in the catalog
type RewardType string

const (
	RewardTypeBadge       RewardType = "badge"
	RewardTypeTitle       RewardType = "title"
	RewardTypeAchievement RewardType = "achievement"
	RewardTypeMilestone   RewardType = "milestone"
)

// VirtualReward represents an unlocked catalog reward for a user.
// Uniqueness key: (UserID, RewardType, RewardName).
type VirtualReward struct {
	ID          string     `gorm:"primaryKey;type:uuid" json:"id"`
	UserID      string     `gorm:"not null;uniqueIndex:idx_user_reward" json:"user_id"`
	RewardType  RewardType `gorm:"type:varchar(16);not null;uniqueIndex:idx_user_reward" json:"reward_type"`
	RewardName  string     `gorm:"not null;uniqueIndex:idx_user_reward" json:"reward_name"`
	RewardValue int64      `json:"reward_value"` // threshold that triggered the unlock
	Emoji       string     `gorm:"size:10" json:"emoji"`
	Description string     `gorm:"type:text" json:"description"`
	UnlockedAt  time.Time  `gorm:"autoCreateTime" json:"unlocked_at"`
}

// StatField names a single counter in the stats snapshot a reward threshold
// is evaluated against.
type StatField string

const (
	StatTotalBooks          StatField = "total_books"
	StatFinishedBooks       StatField = "finished_books"
	StatCurrentLevel        StatField = "current_level"
	StatCurrentStreak       StatField = "current_streak"
	StatBooksThisMonth      StatField = "books_this_month"
	StatCompletedChallenges StatField = "completed_challenges"
)

// RewardEntry: static catalog entry. Evaluated generically against a stats
// snapshot — no per-type branching.
type RewardEntry struct {
	Type        RewardType
	Name        string
	Field       StatField
	Threshold   int64
	Emoji       string
	Description string
}

// Predefined reward catalog (extensible)
var RewardCatalog = []RewardEntry{
	// Reading milestones
	{Type: RewardTypeBadge, Name: "First Steps", Field: StatFinishedBooks, Threshold: 1, Emoji: "👣", Description: "Finish your first book"},
	{Type: RewardTypeBadge, Name: "Page Turner", Field: StatFinishedBooks, Threshold: 5, Emoji: "📚", Description: "Finish 5 books"},
	{Type: RewardTypeMilestone, Name: "Shelf Filler", Field: StatFinishedBooks, Threshold: 25, Emoji: "🗄️", Description: "Finish 25 books"},
	{Type: RewardTypeMilestone, Name: "Library Builder", Field: StatTotalBooks, Threshold: 50, Emoji: "🏛️", Description: "Collect 50 books"},
	{Type: RewardTypeMilestone, Name: "Speed Reader", Field: StatBooksThisMonth, Threshold: 5, Emoji: "⚡", Description: "Finish 5 books in one month"},

	// Streak tiers
	{Type: RewardTypeAchievement, Name: "Warming Up", Field: StatCurrentStreak, Threshold: 3, Emoji: "🔥", Description: "Read 3 days in a row"},
	{Type: RewardTypeAchievement, Name: "On Fire", Field: StatCurrentStreak, Threshold: 7, Emoji: "🔥", Description: "Read 7 days in a row"},
	{Type: RewardTypeAchievement, Name: "Unstoppable", Field: StatCurrentStreak, Threshold: 30, Emoji: "🌋", Description: "Read 30 days in a row"},

	// Level titles
	{Type: RewardTypeTitle, Name: "Apprentice Reader", Field: StatCurrentLevel, Threshold: 5, Emoji: "🎓", Description: "Reach level 5"},
	{Type: RewardTypeTitle, Name: "Seasoned Reader", Field: StatCurrentLevel, Threshold: 10, Emoji: "🧙", Description: "Reach level 10"},
	{Type: RewardTypeTitle, Name: "Master Librarian", Field: StatCurrentLevel, Threshold: 25, Emoji: "👑", Description: "Reach level 25"},

	// Challenge completions
	{Type: RewardTypeBadge, Name: "Challenger", Field: StatCompletedChallenges, Threshold: 1, Emoji: "🎯", Description: "Complete a reading challenge"},
	{Type: RewardTypeBadge, Name: "Challenge Champion", Field: StatCompletedChallenges, Threshold: 5, Emoji: "🏅", Description: "Complete 5 reading challenges"},
}
