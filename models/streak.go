package models

import "time"

// StreakRecord tracks consecutive reading days with a one-day freeze grace.
// LastActivityDate is stored date-only (midnight UTC); FreezeUsed resets to
// false on a successful consecutive day.
type StreakRecord struct {
	ID     string `gorm:"primaryKey;type:uuid" json:"id"`
	UserID string `gorm:"uniqueIndex;not null" json:"user_id"`

	CurrentStreak    int        `json:"current_streak" gorm:"default:0"`
	LongestStreak    int        `json:"longest_streak" gorm:"default:0"`
	LastActivityDate *time.Time `json:"last_activity_date,omitempty"`
	FreezeUsed       bool       `json:"freeze_used" gorm:"default:false"`

	Timestamps
}
