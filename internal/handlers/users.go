package handlers

import (
	"context"
	"net/http"

	"chathub/internal/models"

	"github.com/gofiber/fiber/v2"
)

// UserLister is the read surface the user listing needs.
type UserLister interface {
	ListUsers(ctx context.Context) ([]models.User, error)
}

// LiveStatus reports whether a user currently holds a live connection.
type LiveStatus interface {
	Online(userID string) bool
}

// ListUsersHandler returns every user except the caller, each with
// their live status from the registry.
func ListUsersHandler(users UserLister, live LiveStatus) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := boundIdentity(c)

		all, err := users.ListUsers(c.Context())
		if err != nil {
			return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "failed to fetch users"})
		}

		resp := make([]map[string]interface{}, 0, len(all))
		for _, u := range all {
			if u.ID == id.UserID {
				continue
			}
			status := "offline"
			if live.Online(u.ID) {
				status = "online"
			}
			resp = append(resp, map[string]interface{}{
				"id":         u.ID,
				"name":       u.Name,
				"created_at": u.CreatedAt,
				"status":     status,
			})
		}

		return c.JSON(resp)
	}
}
