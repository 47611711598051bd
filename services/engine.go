package services

import (
	"fmt"
	"log"
	"time"

	"reading-progress-system/models"

	"gorm.io/gorm"
)

// BookFinishedXP is the fixed grant for every finished book.
const BookFinishedXP = 50

// EngineService is the single write entry point: given a finished-book event
// it fans out to leveling, streaks, achievements, challenges and rewards, and
// fans the results back as one OrchestrationResult.
type EngineService struct {
	DB           *gorm.DB
	Leveling     *LevelingService
	Streaks      *StreakService
	Achievements *AchievementService
	Rewards      *RewardService
	Challenges   *ChallengeService
}

func NewEngineService(db *gorm.DB) *EngineService {
	leveling := NewLevelingService(db)
	return &EngineService{
		DB:           db,
		Leveling:     leveling,
		Streaks:      NewStreakService(db),
		Achievements: NewAchievementService(db, leveling),
		Rewards:      NewRewardService(db),
		Challenges:   NewChallengeService(db, leveling),
	}
}

// OrchestrationResult aggregates everything one finished-book event
// triggered. The presentation layer decides what to surface as notifications.
type OrchestrationResult struct {
	Account         *models.XPAccount      `json:"account,omitempty"`
	LevelUps        []XPGrantResult        `json:"level_ups,omitempty"`
	Streak          *models.StreakRecord   `json:"streak,omitempty"`
	StreakIncreased bool                   `json:"streak_increased"`
	NewAchievements []models.Achievement   `json:"new_achievements,omitempty"`
	Challenges      *ChallengeApplication  `json:"challenges,omitempty"`
	NewRewards      []models.VirtualReward `json:"new_rewards,omitempty"`
	Warnings        []string               `json:"warnings,omitempty"`
}

func (r *OrchestrationResult) warn(step string, err error) {
	r.Warnings = append(r.Warnings, fmt.Sprintf("%s: %v", step, err))
	log.Printf("⚠️  [Engine] %s failed: %v", step, err)
}

func (r *OrchestrationResult) recordGrant(g *XPGrantResult) {
	if g == nil {
		return
	}
	r.Account = g.Account
	if g.LeveledUp {
		r.LevelUps = append(r.LevelUps, *g)
	}
}

// HandleBookFinished runs the fixed orchestration sequence for one
// finished-book event. Each step is best-effort: a failure is recorded as a
// warning and never aborts the later steps, because every sub-step is
// idempotent and the caller may safely re-invoke the whole event.
func (e *EngineService) HandleBookFinished(userID string, book *models.Book, library []models.Book) (*OrchestrationResult, error) {
	if userID == "" {
		return nil, invalid("user_id", "required")
	}
	if book == nil || book.ID == "" {
		return nil, invalid("book", "required")
	}
	if !book.Finished() {
		return nil, invalid("book.finish_date", "required — only finished books are processed")
	}

	result := &OrchestrationResult{}

	// 1. Fixed per-book XP, deduplicated so a retried event never double-pays
	dedupKey := fmt.Sprintf("book_finished:%s:%s", userID, book.ID)
	if grant, err := e.Leveling.GrantXPOnce(userID, BookFinishedXP, fmt.Sprintf("book_finished_%s", book.ID), dedupKey); err != nil {
		result.warn("xp_grant", err)
	} else {
		result.recordGrant(grant)
	}

	// 2. Streak on the book's finish date
	if streak, increased, err := e.Streaks.RecordActivity(userID, *book.FinishDate); err != nil {
		result.warn("streak", err)
	} else {
		result.Streak = streak
		result.StreakIncreased = increased
	}

	// 3. Achievement triggers against the refreshed snapshot
	snap := e.buildSnapshot(userID, library, result)
	earned, err := e.Achievements.EvaluateTriggers(userID, snap)
	result.NewAchievements = earned
	if err != nil {
		result.warn("achievements", err)
	}

	// 4. Active challenges; aggregate reward-XP level-ups into the result
	app, err := e.Challenges.ApplyBookToChallenges(userID, book)
	result.Challenges = app
	if err != nil {
		result.warn("challenges", err)
	}
	if result.Challenges != nil {
		for i := range result.Challenges.XPGrants {
			result.recordGrant(&result.Challenges.XPGrants[i])
		}
	}

	// 5. Virtual rewards against the final snapshot. The account is re-read
	// first: achievement and challenge payouts have moved it since step 1.
	if acct, err := e.Leveling.GetAccount(userID); err == nil {
		result.Account = acct
	}
	snap = e.buildSnapshot(userID, library, result)
	if unlocked, err := e.Rewards.EvaluateAndUnlock(userID, snap); err != nil {
		result.warn("rewards", err)
	} else {
		result.NewRewards = unlocked
	}

	log.Printf("📚 Book finished processed: user=%s book=%q level_ups=%d achievements=%d rewards=%d warnings=%d",
		userID, book.Title, len(result.LevelUps), len(result.NewAchievements),
		len(result.NewRewards), len(result.Warnings))

	return result, nil
}

// buildSnapshot merges the caller-provided library snapshot with the engine's
// own latest state (level, streak, completed challenges).
func (e *EngineService) buildSnapshot(userID string, library []models.Book, result *OrchestrationResult) models.StatsSnapshot {
	snap := BuildLibraryStats(library, time.Now())

	if result.Account != nil {
		snap.CurrentLevel = int64(result.Account.CurrentLevel)
	} else if acct, err := e.Leveling.GetAccount(userID); err == nil {
		snap.CurrentLevel = int64(acct.CurrentLevel)
	}

	if result.Streak != nil {
		snap.CurrentStreak = int64(result.Streak.CurrentStreak)
	} else if streak, err := e.Streaks.GetStreak(userID); err == nil {
		snap.CurrentStreak = int64(streak.CurrentStreak)
	}

	if completed, err := e.Rewards.CountCompletedChallenges(userID); err == nil {
		snap.CompletedChallenges = completed
	}

	return snap
}

// BuildLibraryStats computes the book counters from a library snapshot.
// "This month" means the current calendar month of now.
func BuildLibraryStats(library []models.Book, now time.Time) models.StatsSnapshot {
	snap := models.StatsSnapshot{TotalBooks: int64(len(library))}
	year, month, _ := now.UTC().Date()
	for i := range library {
		b := &library[i]
		if !b.Finished() {
			continue
		}
		snap.FinishedBooks++
		fy, fm, _ := b.FinishDate.UTC().Date()
		if fy == year && fm == month {
			snap.BooksThisMonth++
		}
	}
	return snap
}
