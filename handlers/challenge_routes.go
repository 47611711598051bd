package handlers

import (
	"strings"

	"reading-progress-system/middleware"
	"reading-progress-system/services"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

func SetupChallengeRoutes(app *fiber.App, challenges *services.ChallengeService) {
	securedGroup := app.Group("/", middleware.UserContextMiddleware())

	securedGroup.Get("/s/user/challenges", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		activeOnly := strings.EqualFold(c.Query("active", "false"), "true")

		list, err := challenges.ListChallengesForUser(userID, activeOnly)
		if err != nil {
			return c.Status(statusForError(err)).JSON(fiber.Map{"error": "failed to list challenges", "cause": err.Error()})
		}
		return c.JSON(list)
	})

	securedGroup.Post("/s/user/challenges", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)

		var req services.ChallengeInput
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON", "cause": err.Error()})
		}

		ch, err := challenges.CreateChallenge(userID, &req)
		if err != nil {
			return c.Status(statusForError(err)).JSON(fiber.Map{"error": "failed to create challenge", "cause": err.Error()})
		}
		return c.Status(fiber.StatusCreated).JSON(ch)
	})

	securedGroup.Get("/s/user/challenges/:id", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		id := c.Params("id")
		if _, err := uuid.Parse(id); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid challenge ID"})
		}

		ch, err := challenges.GetChallenge(id, userID)
		if err != nil {
			return c.Status(statusForError(err)).JSON(fiber.Map{"error": "failed to load challenge", "cause": err.Error()})
		}
		return c.JSON(ch)
	})

	securedGroup.Put("/s/user/challenges/:id", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		id := c.Params("id")
		if _, err := uuid.Parse(id); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid challenge ID"})
		}

		var req services.ChallengeInput
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON", "cause": err.Error()})
		}

		ch, err := challenges.UpdateChallenge(userID, id, &req)
		if err != nil {
			return c.Status(statusForError(err)).JSON(fiber.Map{"error": "failed to update challenge", "cause": err.Error()})
		}
		return c.JSON(ch)
	})

	securedGroup.Delete("/s/user/challenges/:id", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		id := c.Params("id")
		if _, err := uuid.Parse(id); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid challenge ID"})
		}

		if err := challenges.DeleteChallenge(userID, id); err != nil {
			return c.Status(statusForError(err)).JSON(fiber.Map{"error": "failed to delete challenge", "cause": err.Error()})
		}
		return c.JSON(fiber.Map{"message": "Challenge deleted successfully"})
	})

	securedGroup.Post("/s/user/challenges/:id/share", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		id := c.Params("id")
		if _, err := uuid.Parse(id); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid challenge ID"})
		}

		var req struct {
			UserIDs []string `json:"user_ids"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON", "cause": err.Error()})
		}
		if len(req.UserIDs) == 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "user_ids is required"})
		}

		ch, err := challenges.ShareChallenge(userID, id, req.UserIDs)
		if err != nil {
			return c.Status(statusForError(err)).JSON(fiber.Map{"error": "failed to share challenge", "cause": err.Error()})
		}
		return c.JSON(ch)
	})

	securedGroup.Post("/s/user/challenges/join/:code", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		code := c.Params("code")
		if code == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "join code is required"})
		}

		ch, err := challenges.JoinByCode(userID, code)
		if err != nil {
			return c.Status(statusForError(err)).JSON(fiber.Map{"error": "failed to join challenge", "cause": err.Error()})
		}
		return c.JSON(ch)
	})
}
