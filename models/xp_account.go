package models

import (
	"time"

	"gorm.io/gorm"
)

// XPAccount tracks gamified progression for each reader (denormalized for performance)
type XPAccount struct {
	ID     string `gorm:"primaryKey;type:uuid" json:"id"`
	UserID string `gorm:"uniqueIndex;not null" json:"user_id"` // links to profile service

	// Core progression
	TotalXP       int64 `json:"total_xp" gorm:"default:0"`
	CurrentLevel  int   `json:"current_level" gorm:"default:1"`
	XPToNextLevel int64 `json:"xp_to_next_level" gorm:"default:100"`

	// Milestones
	LastLevelUpAt *time.Time `json:"last_level_up_at,omitempty"`

	Timestamps
}

// XPTransaction is the append-only audit trail of every grant. DedupKey, when
// set, makes the grant apply-at-most-once under retried events.
type XPTransaction struct {
	ID        string    `gorm:"primaryKey;type:uuid" json:"id"`
	UserID    string    `gorm:"index;not null" json:"user_id"`
	Amount    int64     `gorm:"not null" json:"amount"`
	Reason    string    `gorm:"type:varchar(255)" json:"reason"`
	DedupKey  *string   `gorm:"uniqueIndex" json:"dedup_key,omitempty"`
	GrantedAt time.Time `gorm:"autoCreateTime" json:"granted_at"`
}

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}
