package services

import (
	"log"

	"reading-progress-system/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type RewardService struct {
	DB      *gorm.DB
	Catalog []models.RewardEntry
}

func NewRewardService(db *gorm.DB) *RewardService {
	return &RewardService{DB: db, Catalog: models.RewardCatalog}
}

// EvaluateAndUnlock walks the catalog against the stats snapshot and unlocks
// every entry whose threshold is met. Entries already unlocked are skipped
// silently via the (user, type, name) uniqueness key. Returns exactly the set
// unlocked in this call, never previously-unlocked ones.
func (s *RewardService) EvaluateAndUnlock(userID string, snap models.StatsSnapshot) ([]models.VirtualReward, error) {
	var unlocked []models.VirtualReward
	for _, entry := range s.Catalog {
		if snap.Stat(entry.Field) < entry.Threshold {
			continue
		}

		reward := models.VirtualReward{
			ID:          uuid.NewString(),
			UserID:      userID,
			RewardType:  entry.Type,
			RewardName:  entry.Name,
			RewardValue: entry.Threshold,
			Emoji:       entry.Emoji,
			Description: entry.Description,
		}
		res := s.DB.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "reward_type"}, {Name: "reward_name"}},
			DoNothing: true,
		}).Create(&reward)
		if res.Error != nil {
			return unlocked, res.Error
		}
		if res.RowsAffected == 0 {
			continue // already unlocked
		}

		log.Printf("🎁 Reward unlocked: %s %s [%s] → %s", entry.Emoji, entry.Name, entry.Type, userID)
		unlocked = append(unlocked, reward)
	}
	return unlocked, nil
}

// ListRewards returns the user's unlocked rewards, optionally filtered by type.
func (s *RewardService) ListRewards(userID string, rewardType models.RewardType) ([]models.VirtualReward, error) {
	query := s.DB.Where("user_id = ?", userID)
	if rewardType != "" {
		query = query.Where("reward_type = ?", rewardType)
	}
	var rewards []models.VirtualReward
	err := query.Order("unlocked_at DESC").Find(&rewards).Error
	return rewards, err
}

// CountCompletedChallenges counts the snapshot's completed-challenge stat for
// a participant.
func (s *RewardService) CountCompletedChallenges(userID string) (int64, error) {
	var count int64
	err := s.DB.Model(&models.ChallengeProgress{}).
		Where("user_id = ? AND completed = ?", userID, true).
		Count(&count).Error
	return count, err
}
