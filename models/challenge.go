package models

import (
	"time"

	"gorm.io/datatypes"
)

// ChallengeConditions restrict which books count toward a challenge.
// Absent fields impose no constraint; a challenge with no conditions
// accepts any finished book.
type ChallengeConditions struct {
	Genres    []string `json:"genres,omitempty"`  // any-of, case-insensitive
	Authors   []string `json:"authors,omitempty"` // any-of
	Formats   []string `json:"formats,omitempty"` // any-of
	MinRating *float64 `json:"min_rating,omitempty"`
	YearMin   *int     `json:"year_min,omitempty"`
	YearMax   *int     `json:"year_max,omitempty"`
}

// Empty reports whether no condition is set at all.
func (c ChallengeConditions) Empty() bool {
	return len(c.Genres) == 0 && len(c.Authors) == 0 && len(c.Formats) == 0 &&
		c.MinRating == nil && c.YearMin == nil && c.YearMax == nil
}

// Challenge represents a time-boxed, optionally shared reading goal.
// Completion is per-participant (ChallengeProgress); closure is derived
// purely from the date window, there is no global completed flag.
type Challenge struct {
	ID          string `json:"id" gorm:"primaryKey;type:uuid"`
	OwnerID     string `json:"owner_id" gorm:"not null;index"`
	Name        string `json:"name" gorm:"not null"`
	Description string `json:"description" gorm:"type:text"`
	JoinCode    string `json:"join_code" gorm:"uniqueIndex;not null"`

	TargetCount int       `json:"target_count" gorm:"not null"`
	StartDate   time.Time `json:"start_date" gorm:"not null"`
	EndDate     time.Time `json:"end_date" gorm:"not null"`
	RewardXP    int64     `json:"reward_xp" gorm:"default:0"`

	SharedWith datatypes.JSONSlice[string]             `json:"shared_with"`
	Conditions datatypes.JSONType[ChallengeConditions] `json:"conditions"`

	Timestamps

	// Calculated fields (not stored in DB)
	Progress []ChallengeProgress `json:"progress,omitempty" gorm:"-"`
	Active   bool                `json:"active" gorm:"-"`
}

// ActiveOn reports whether the challenge window contains day (inclusive bounds,
// date granularity).
func (ch *Challenge) ActiveOn(day time.Time) bool {
	d := DateOnly(day)
	return !d.Before(DateOnly(ch.StartDate)) && !d.After(DateOnly(ch.EndDate))
}

// HasParticipant reports whether userID is the owner or a shared member.
func (ch *Challenge) HasParticipant(userID string) bool {
	if ch.OwnerID == userID {
		return true
	}
	for _, id := range ch.SharedWith {
		if id == userID {
			return true
		}
	}
	return false
}

// ChallengeProgress = one participant's counted books for one challenge
type ChallengeProgress struct {
	ID          string `gorm:"primaryKey;type:uuid" json:"id"`
	ChallengeID string `gorm:"not null;uniqueIndex:idx_challenge_participant" json:"challenge_id"`
	UserID      string `gorm:"not null;uniqueIndex:idx_challenge_participant" json:"user_id"`

	CompletedBookCount int        `json:"completed_book_count" gorm:"default:0"`
	Completed          bool       `json:"completed" gorm:"default:false"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`

	Timestamps
}

// ChallengeBook links a counted book to a challenge so the same book can
// never be counted twice toward the same goal.
type ChallengeBook struct {
	ID          string    `gorm:"primaryKey;type:uuid" json:"id"`
	ChallengeID string    `gorm:"not null;uniqueIndex:idx_challenge_book" json:"challenge_id"`
	BookID      string    `gorm:"not null;uniqueIndex:idx_challenge_book" json:"book_id"`
	UserID      string    `gorm:"index;not null" json:"user_id"`
	CountedAt   time.Time `gorm:"autoCreateTime" json:"counted_at"`
}
