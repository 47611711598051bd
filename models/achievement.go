package models

import "time"

// BadgeType identifies a one-time achievement in the catalog.
type BadgeType string

const (
	BadgeFirstBook     BadgeType = "first_book"
	BadgeBookworm      BadgeType = "bookworm"
	BadgeSpeedReader   BadgeType = "speed_reader"
	BadgeWeekWarrior   BadgeType = "week_warrior"
	BadgeMonthlyMaster BadgeType = "monthly_master"
)

// Achievement: awarded instance, one per (user, badge type). Immutable once created.
type Achievement struct {
	ID               string    `gorm:"primaryKey;type:uuid" json:"id"`
	UserID           string    `gorm:"not null;uniqueIndex:idx_user_badge" json:"user_id"`
	BadgeType        BadgeType `gorm:"type:varchar(32);not null;uniqueIndex:idx_user_badge" json:"badge_type"`
	BadgeName        string    `gorm:"not null" json:"badge_name"`
	BadgeEmoji       string    `gorm:"size:10" json:"badge_emoji"`
	BadgeDescription string    `json:"badge_description"`
	EarnedAt         time.Time `gorm:"autoCreateTime" json:"earned_at"`
}

// BadgeSpec: static catalog entry. XP is a property of the badge, not a caller parameter.
type BadgeSpec struct {
	Type        BadgeType
	Name        string
	Emoji       string
	Description string
	XP          int64
}

// Predefined badge catalog
var BadgeCatalog = map[BadgeType]BadgeSpec{
	BadgeFirstBook: {
		Type:        BadgeFirstBook,
		Name:        "First Book",
		Emoji:       "📖",
		Description: "Finished your very first book",
		XP:          25,
	},
	BadgeBookworm: {
		Type:        BadgeBookworm,
		Name:        "Bookworm",
		Emoji:       "🐛",
		Description: "Finished 10 books",
		XP:          100,
	},
	BadgeSpeedReader: {
		Type:        BadgeSpeedReader,
		Name:        "Speed Reader",
		Emoji:       "⚡",
		Description: "Finished 5 books in a single month",
		XP:          50,
	},
	BadgeWeekWarrior: {
		Type:        BadgeWeekWarrior,
		Name:        "Week Warrior",
		Emoji:       "🗓️",
		Description: "Started a reading streak",
		XP:          30,
	},
	BadgeMonthlyMaster: {
		Type:        BadgeMonthlyMaster,
		Name:        "Monthly Master",
		Emoji:       "🏆",
		Description: "Kept a reading streak going strong",
		XP:          75,
	},
}
