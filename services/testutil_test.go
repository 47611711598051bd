package services

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"reading-progress-system/models"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupTestDB opens a private in-memory database and migrates the full
// engine schema. Each test func gets its own database.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	if err := db.AutoMigrate(
		&models.XPAccount{},
		&models.XPTransaction{},
		&models.StreakRecord{},
		&models.Achievement{},
		&models.VirtualReward{},
		&models.Challenge{},
		&models.ChallengeProgress{},
		&models.ChallengeBook{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// day returns midnight UTC n days after a fixed base date.
func day(n int) time.Time {
	base := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	return base.AddDate(0, 0, n)
}

func floatPtr(f float64) *float64 { return &f }

func intPtr(i int) *int { return &i }

func timePtr(t time.Time) *time.Time { return &t }
