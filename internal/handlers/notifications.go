package handlers

import (
	"net/http"

	"chathub/internal/models"
	"chathub/internal/store"

	"github.com/gofiber/fiber/v2"
)

// ListNotificationsHandler returns one page of the caller's
// notifications, newest first.
func ListNotificationsHandler(notifs *store.NotificationStore) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := boundIdentity(c)
		page, err := notifs.ListForUser(c.Context(), id.UserID, c.QueryInt("page", 1))
		if err != nil {
			return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(page)
	}
}

// SubscribeHandler stores a Web Push subscription for the caller.
func SubscribeHandler(notifs *store.NotificationStore) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := boundIdentity(c)

		var req models.SubscribeRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request"})
		}
		if req.Endpoint == "" || req.Keys.P256dh == "" || req.Keys.Auth == "" {
			return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "endpoint and keys required"})
		}

		sub, err := notifs.SaveSubscription(c.Context(), id.UserID, req)
		if err != nil {
			return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		}
		return c.Status(http.StatusCreated).JSON(sub)
	}
}
