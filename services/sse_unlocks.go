package services

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"reading-progress-system/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// StreamUnlocksSSE streams newly unlocked rewards and achievements for the
// authenticated user as server-sent events. Polls on a short ticker; the
// cursor starts at the latest existing row so reconnects don't replay history.
func (s *RewardService) StreamUnlocksSSE(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	// SSE headers
	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no") // nginx

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()

		rewardCursor := time.Now()
		achievementCursor := rewardCursor

		var latestReward models.VirtualReward
		if err := s.DB.
			Where("user_id = ?", userID).
			Order("unlocked_at DESC").
			First(&latestReward).Error; err == nil {
			rewardCursor = latestReward.UnlockedAt
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("SSE init error for user %s: %v", userID, err)
		}

		var latestAchievement models.Achievement
		if err := s.DB.
			Where("user_id = ?", userID).
			Order("earned_at DESC").
			First(&latestAchievement).Error; err == nil {
			achievementCursor = latestAchievement.EarnedAt
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("SSE init error for user %s: %v", userID, err)
		}

		// Initial keepalive (comment event)
		w.WriteString(":\n\n")
		w.Flush()

		for {
			select {
			case <-ticker.C:
				wrote := false

				var rewards []models.VirtualReward
				err := s.DB.
					Where("user_id = ? AND unlocked_at > ?", userID, rewardCursor).
					Order("unlocked_at ASC").
					Find(&rewards).Error
				if err != nil {
					log.Printf("SSE query error for user %s: %v", userID, err)
				} else if len(rewards) > 0 {
					rewardCursor = rewards[len(rewards)-1].UnlockedAt
					for _, r := range rewards {
						payload, _ := json.Marshal(r)
						fmt.Fprintf(w, "event: reward\ndata: %s\n\n", payload)
					}
					wrote = true
				}

				var achievements []models.Achievement
				err = s.DB.
					Where("user_id = ? AND earned_at > ?", userID, achievementCursor).
					Order("earned_at ASC").
					Find(&achievements).Error
				if err != nil {
					log.Printf("SSE query error for user %s: %v", userID, err)
				} else if len(achievements) > 0 {
					achievementCursor = achievements[len(achievements)-1].EarnedAt
					for _, a := range achievements {
						payload, _ := json.Marshal(a)
						fmt.Fprintf(w, "event: achievement\ndata: %s\n\n", payload)
					}
					wrote = true
				}

				if !wrote {
					continue
				}
				if err := w.Flush(); err != nil {
					// Client disconnected
					return
				}

			case <-c.Context().Done():
				// Client closed connection
				return
			}
		}
	})

	return nil
}
