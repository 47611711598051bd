package handlers

import (
	"errors"
	"strconv"

	"reading-progress-system/middleware"
	"reading-progress-system/models"
	"reading-progress-system/services"

	"github.com/gofiber/fiber/v2"
)

// statusForError maps the service error taxonomy onto HTTP statuses.
func statusForError(err error) int {
	switch {
	case errors.Is(err, services.ErrValidation):
		return fiber.StatusBadRequest
	case errors.Is(err, services.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, services.ErrConflict):
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}

func SetupEngineRoutes(app *fiber.App, engine *services.EngineService, bookshelf *services.BookshelfClient) {
	securedGroup := app.Group("/", middleware.UserContextMiddleware())

	// The sole write entry point: the bookshelf service raises this event
	// whenever a finish date is newly set on a book.
	securedGroup.Post("/s/user/books/finished", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)

		var req struct {
			Book    models.Book   `json:"book"`
			Library []models.Book `json:"library"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON", "cause": err.Error()})
		}

		// Events may omit the library snapshot; fall back to fetching it.
		if len(req.Library) == 0 && bookshelf.Configured() {
			library, err := bookshelf.FetchLibrary(userID)
			if err != nil {
				return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "library fetch failed", "cause": err.Error()})
			}
			req.Library = library
		}

		result, err := engine.HandleBookFinished(userID, &req.Book, req.Library)
		if err != nil {
			return c.Status(statusForError(err)).JSON(fiber.Map{
				"error": "book finished event rejected",
				"cause": err.Error(),
			})
		}
		return c.JSON(result)
	})

	securedGroup.Get("/s/user/progress", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)

		acct, err := engine.Leveling.GetAccount(userID)
		if err != nil {
			return c.Status(statusForError(err)).JSON(fiber.Map{"error": "failed to load progress", "cause": err.Error()})
		}
		streak, err := engine.Streaks.GetStreak(userID)
		if err != nil {
			return c.Status(statusForError(err)).JSON(fiber.Map{"error": "failed to load streak", "cause": err.Error()})
		}

		return c.JSON(fiber.Map{
			"id":               acct.ID,
			"xp":               acct.TotalXP,
			"level":            acct.CurrentLevel,
			"xp_to_next_level": acct.XPToNextLevel,
			"last_level_up_at": acct.LastLevelUpAt,
			"current_streak":   streak.CurrentStreak,
			"longest_streak":   streak.LongestStreak,
			"freeze_used":      streak.FreezeUsed,
		})
	})

	securedGroup.Get("/s/user/streak", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		streak, err := engine.Streaks.GetStreak(userID)
		if err != nil {
			return c.Status(statusForError(err)).JSON(fiber.Map{"error": "failed to load streak", "cause": err.Error()})
		}
		return c.JSON(streak)
	})

	securedGroup.Get("/s/user/achievements", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		limit, _ := strconv.Atoi(c.Query("limit", "50"))
		records, err := engine.Achievements.ListAchievements(userID, limit)
		if err != nil {
			return c.Status(statusForError(err)).JSON(fiber.Map{"error": "failed to load achievements", "cause": err.Error()})
		}
		return c.JSON(records)
	})

	securedGroup.Get("/s/user/rewards", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		rewards, err := engine.Rewards.ListRewards(userID, models.RewardType(c.Query("type", "")))
		if err != nil {
			return c.Status(statusForError(err)).JSON(fiber.Map{"error": "failed to load rewards", "cause": err.Error()})
		}
		return c.JSON(rewards)
	})

	securedGroup.Get("/s/user/rewards/stream", engine.Rewards.StreamUnlocksSSE)

	// Admin endpoints
	adminGroup := app.Group("/s/admin", middleware.UserContextMiddleware(), middleware.RequireRole("admin"))

	adminGroup.Post("/xp/grant", func(c *fiber.Ctx) error {
		type Req struct {
			UserID string `json:"user_id" validate:"required,uuid"`
			XP     int64  `json:"xp" validate:"required,min=1"`
			Reason string `json:"reason" validate:"max=255"`
		}
		var req Req
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON", "cause": err.Error()})
		}

		grant, err := engine.Leveling.GrantXP(req.UserID, req.XP, req.Reason)
		if err != nil {
			return c.Status(statusForError(err)).JSON(fiber.Map{"error": "XP grant failed", "cause": err.Error()})
		}

		return c.JSON(fiber.Map{
			"message":    "XP granted successfully",
			"user_id":    req.UserID,
			"xp":         req.XP,
			"leveled_up": grant.LeveledUp,
			"new_level":  grant.NewLevel,
		})
	})
}
