package services

import (
	"fmt"
	"log"
	"strings"
	"time"

	"reading-progress-system/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Level curve: advancing from level L to L+1 costs BaseXPPerLevel + (L-1)*XPStepPerLevel
const (
	BaseXPPerLevel = 100
	XPStepPerLevel = 50
)

// levelCost returns the XP required to advance from level L to L+1
func levelCost(level int) int64 {
	if level < 1 {
		level = 1
	}
	return int64(BaseXPPerLevel + (level-1)*XPStepPerLevel)
}

// cumulativeXP returns the total XP required to have reached level+1,
// i.e. the sum of levelCost(1..level). cumulativeXP(0) == 0.
// Closed form: 100L + 25L(L-1).
func cumulativeXP(level int) int64 {
	if level <= 0 {
		return 0
	}
	l := int64(level)
	return int64(BaseXPPerLevel)*l + int64(XPStepPerLevel)/2*l*(l-1)
}

// levelForXP returns the largest level whose cumulative threshold totalXP has
// crossed. 0 XP is level 1.
func levelForXP(totalXP int64) int {
	level := 1
	for totalXP >= cumulativeXP(level) {
		level++
	}
	return level
}

type LevelingService struct {
	DB *gorm.DB
}

func NewLevelingService(db *gorm.DB) *LevelingService {
	return &LevelingService{DB: db}
}

// XPGrantResult carries everything the caller needs for level-up notifications.
type XPGrantResult struct {
	Account   *models.XPAccount `json:"account"`
	LeveledUp bool              `json:"leveled_up"`
	NewLevel  int               `json:"new_level"`
}

// EnsureAccount ensures an XPAccount row exists with defaults (0, 1, 100) — idempotent
func (s *LevelingService) EnsureAccount(userID string) (*models.XPAccount, error) {
	var acct models.XPAccount
	err := s.DB.Where("user_id = ?", userID).First(&acct).Error
	if err == gorm.ErrRecordNotFound {
		acct = models.XPAccount{
			ID:            uuid.NewString(),
			UserID:        userID,
			TotalXP:       0,
			CurrentLevel:  1,
			XPToNextLevel: cumulativeXP(1),
		}
		if err := s.DB.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoNothing: true,
		}).Create(&acct).Error; err != nil {
			return nil, err
		}
		// Re-read in case a concurrent create won the race
		if err := s.DB.Where("user_id = ?", userID).First(&acct).Error; err != nil {
			return nil, err
		}
		return &acct, nil
	}
	if err != nil {
		return nil, err
	}
	return &acct, nil
}

// GrantXP atomically adds XP and recomputes level + XP-to-next under the
// curve. The account row is locked for the whole read-modify-write and
// replaced, never incremented in place. Retries once on a detected
// concurrent-update conflict before surfacing it.
func (s *LevelingService) GrantXP(userID string, amount int64, reason string) (*XPGrantResult, error) {
	return s.grant(userID, amount, reason, "")
}

// GrantXPOnce is GrantXP gated on dedupKey: a retried event whose key was
// already recorded in the transaction ledger changes nothing and reports no
// level-up.
func (s *LevelingService) GrantXPOnce(userID string, amount int64, reason, dedupKey string) (*XPGrantResult, error) {
	if dedupKey == "" {
		return nil, invalid("dedup_key", "required")
	}
	return s.grant(userID, amount, reason, dedupKey)
}

func (s *LevelingService) grant(userID string, amount int64, reason, dedupKey string) (*XPGrantResult, error) {
	if amount < 0 {
		return nil, invalid("amount", "must be >= 0")
	}
	if _, err := s.EnsureAccount(userID); err != nil {
		return nil, err
	}

	result, err := s.grantTx(userID, amount, reason, dedupKey)
	if err != nil && isRetryableConflict(err) {
		log.Printf("⚠️  XP grant conflict for %s, retrying once (reason: %s)", userID, reason)
		result, err = s.grantTx(userID, amount, reason, dedupKey)
		if err != nil && isRetryableConflict(err) {
			return nil, fmt.Errorf("%w: xp grant for %s: %v", ErrConflict, userID, err)
		}
	}
	return result, err
}

func (s *LevelingService) grantTx(userID string, amount int64, reason, dedupKey string) (*XPGrantResult, error) {
	var result *XPGrantResult
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var acct models.XPAccount
		if err := lockForUpdate(tx).
			Where("user_id = ?", userID).First(&acct).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return fmt.Errorf("%w: xp account for %s", ErrNotFound, userID)
			}
			return err
		}

		// Audit every grant; the dedup key makes retried events no-ops.
		txn := models.XPTransaction{
			ID:     uuid.NewString(),
			UserID: userID,
			Amount: amount,
			Reason: reason,
		}
		if dedupKey != "" {
			txn.DedupKey = &dedupKey
			res := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "dedup_key"}},
				DoNothing: true,
			}).Create(&txn)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				// Already applied — return the account untouched.
				out := acct
				result = &XPGrantResult{Account: &out, LeveledUp: false, NewLevel: acct.CurrentLevel}
				return nil
			}
		} else if err := tx.Create(&txn).Error; err != nil {
			return err
		}

		oldLevel := acct.CurrentLevel

		acct.TotalXP += amount
		acct.CurrentLevel = levelForXP(acct.TotalXP)
		acct.XPToNextLevel = cumulativeXP(acct.CurrentLevel) - acct.TotalXP

		leveledUp := acct.CurrentLevel > oldLevel
		if leveledUp {
			now := time.Now()
			acct.LastLevelUpAt = &now
		}

		if err := tx.Save(&acct).Error; err != nil {
			return err
		}

		// Copy for return (avoid pointer to tx-scoped var)
		out := acct
		result = &XPGrantResult{
			Account:   &out,
			LeveledUp: leveledUp,
			NewLevel:  acct.CurrentLevel,
		}

		log.Printf("🎮 XP Granted: %s +%d → XP=%d, Lvl=%d (reason: %s)",
			userID, amount, acct.TotalXP, acct.CurrentLevel, reason)

		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// GetAccount returns the user's XP account, lazily creating it with defaults.
func (s *LevelingService) GetAccount(userID string) (*models.XPAccount, error) {
	return s.EnsureAccount(userID)
}

// isRetryableConflict matches the row-race failures Postgres reports when two
// grants collide despite the row lock.
func isRetryableConflict(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "deadlock detected") ||
		strings.Contains(msg, "could not serialize access") ||
		strings.Contains(msg, "database is locked") // sqlite, under test
}
