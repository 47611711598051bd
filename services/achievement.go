package services

import (
	"errors"
	"fmt"
	"log"

	"reading-progress-system/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AchievementService struct {
	DB       *gorm.DB
	Leveling *LevelingService
}

func NewAchievementService(db *gorm.DB, leveling *LevelingService) *AchievementService {
	return &AchievementService{DB: db, Leveling: leveling}
}

// AwardIfUnearned awards the catalog badge once per (user, badge type).
// Re-award attempts return the existing record with alreadyEarned = true and
// perform no write and no XP grant. Safe under concurrent retries: the insert
// is gated on the natural uniqueness key.
func (s *AchievementService) AwardIfUnearned(userID string, badgeType models.BadgeType) (*models.Achievement, bool, error) {
	spec, ok := models.BadgeCatalog[badgeType]
	if !ok {
		return nil, false, invalid("badge_type", fmt.Sprintf("unknown badge %q", badgeType))
	}

	rec := models.Achievement{
		ID:               uuid.NewString(),
		UserID:           userID,
		BadgeType:        badgeType,
		BadgeName:        spec.Name,
		BadgeEmoji:       spec.Emoji,
		BadgeDescription: spec.Description,
	}
	res := s.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "badge_type"}},
		DoNothing: true,
	}).Create(&rec)
	if res.Error != nil {
		return nil, false, res.Error
	}

	alreadyEarned := res.RowsAffected == 0
	if alreadyEarned {
		// Already earned — hand back the stored record.
		var existing models.Achievement
		if err := s.DB.Where("user_id = ? AND badge_type = ?", userID, badgeType).
			First(&existing).Error; err != nil {
			return nil, false, err
		}
		rec = existing
	} else {
		log.Printf("🎖️ Achievement earned: %s %s → %s (+%d XP)", spec.Emoji, spec.Name, userID, spec.XP)
	}

	// The grant is keyed on (user, badge) in the XP ledger and attempted on
	// the already-earned path too: a retry whose badge committed but whose
	// grant was lost pays it here, and a repeat award can never pay twice.
	if spec.XP > 0 {
		_, err := s.Leveling.GrantXPOnce(userID, spec.XP,
			fmt.Sprintf("achievement_%s", badgeType),
			fmt.Sprintf("achievement:%s:%s", userID, badgeType))
		if err != nil {
			return &rec, alreadyEarned, err
		}
	}
	return &rec, alreadyEarned, nil
}

// EvaluateTriggers checks every badge trigger against a fresh library
// snapshot and streak. Each trigger is independent and safe to re-run on
// every finished-book event.
func (s *AchievementService) EvaluateTriggers(userID string, snap models.StatsSnapshot) ([]models.Achievement, error) {
	type trigger struct {
		badge models.BadgeType
		met   bool
	}
	triggers := []trigger{
		{models.BadgeFirstBook, snap.FinishedBooks == 1},
		{models.BadgeBookworm, snap.FinishedBooks == 10},
		{models.BadgeSpeedReader, snap.BooksThisMonth >= 5},
		{models.BadgeWeekWarrior, snap.CurrentStreak == 1},
		{models.BadgeMonthlyMaster, snap.CurrentStreak == 4},
	}

	// Triggers are independent: one failing award never blocks the rest.
	var earned []models.Achievement
	var errs []error
	for _, t := range triggers {
		if !t.met {
			continue
		}
		rec, already, err := s.AwardIfUnearned(userID, t.badge)
		if err != nil {
			errs = append(errs, fmt.Errorf("badge %s: %w", t.badge, err))
		}
		if rec != nil && !already {
			earned = append(earned, *rec)
		}
	}
	return earned, errors.Join(errs...)
}

// ListAchievements returns the user's achievements, newest first.
func (s *AchievementService) ListAchievements(userID string, limit int) ([]models.Achievement, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	var records []models.Achievement
	err := s.DB.Where("user_id = ?", userID).
		Order("earned_at DESC").
		Limit(limit).
		Find(&records).Error
	return records, err
}
