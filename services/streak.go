package services

import (
	"fmt"
	"log"
	"time"

	"reading-progress-system/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type StreakService struct {
	DB *gorm.DB
}

func NewStreakService(db *gorm.DB) *StreakService {
	return &StreakService{DB: db}
}

// EnsureStreak ensures a StreakRecord row exists with all-zero defaults — idempotent
func (s *StreakService) EnsureStreak(userID string) (*models.StreakRecord, error) {
	var rec models.StreakRecord
	err := s.DB.Where("user_id = ?", userID).First(&rec).Error
	if err == gorm.ErrRecordNotFound {
		rec = models.StreakRecord{
			ID:     uuid.NewString(),
			UserID: userID,
		}
		if err := s.DB.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoNothing: true,
		}).Create(&rec).Error; err != nil {
			return nil, err
		}
		if err := s.DB.Where("user_id = ?", userID).First(&rec).Error; err != nil {
			return nil, err
		}
		return &rec, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// RecordActivity applies one day of reading activity to the streak.
// Day rules, in order:
//  1. no prior activity        → streak = 1
//  2. same day                 → no-op
//  3. next day                 → streak+1, freeze re-earned
//  4. one missed day, unfrozen → streak+1, freeze spent
//  5. anything else            → streak resets to 1
//
// LongestStreak only ever grows. The freeze forgives a single gap and must be
// re-earned by a consecutive day before it can forgive another.
func (s *StreakService) RecordActivity(userID string, activityDate time.Time) (*models.StreakRecord, bool, error) {
	if activityDate.IsZero() {
		activityDate = time.Now()
	}
	day := models.DateOnly(activityDate)

	if _, err := s.EnsureStreak(userID); err != nil {
		return nil, false, err
	}

	var updated *models.StreakRecord
	increased := false
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var rec models.StreakRecord
		if err := lockForUpdate(tx).
			Where("user_id = ?", userID).First(&rec).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return fmt.Errorf("%w: streak for %s", ErrNotFound, userID)
			}
			return err
		}

		before := rec.CurrentStreak

		switch {
		case rec.LastActivityDate == nil:
			rec.CurrentStreak = 1
			rec.LastActivityDate = &day

		default:
			daysDiff := int(day.Sub(models.DateOnly(*rec.LastActivityDate)).Hours() / 24)
			switch {
			case daysDiff == 0:
				// Already counted today — leave everything untouched.
				out := rec
				updated = &out
				return nil
			case daysDiff == 1:
				rec.CurrentStreak++
				rec.FreezeUsed = false
				rec.LastActivityDate = &day
			case daysDiff == 2 && !rec.FreezeUsed:
				rec.CurrentStreak++
				rec.FreezeUsed = true
				rec.LastActivityDate = &day
				log.Printf("🧊 Streak freeze spent for %s (gap day forgiven)", userID)
			default:
				rec.CurrentStreak = 1
				rec.FreezeUsed = false
				rec.LastActivityDate = &day
			}
		}

		if rec.CurrentStreak > rec.LongestStreak {
			rec.LongestStreak = rec.CurrentStreak
		}

		if err := tx.Save(&rec).Error; err != nil {
			return err
		}

		increased = rec.CurrentStreak > before
		out := rec
		updated = &out

		log.Printf("🔥 Streak updated: %s → current=%d, longest=%d, freeze_used=%t",
			userID, rec.CurrentStreak, rec.LongestStreak, rec.FreezeUsed)

		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return updated, increased, nil
}

// GetStreak returns the user's streak record, lazily creating it.
func (s *StreakService) GetStreak(userID string) (*models.StreakRecord, error) {
	return s.EnsureStreak(userID)
}
