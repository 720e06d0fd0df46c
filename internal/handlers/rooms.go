package handlers

import (
	"errors"
	"net/http"

	"chathub/internal/engine"
	"chathub/internal/models"
	"chathub/internal/store"

	"github.com/gofiber/fiber/v2"
)

func boundIdentity(c *fiber.Ctx) models.Identity {
	return c.Locals("identity").(models.Identity)
}

// CreateRoomHandler creates a room; the creator becomes its approved
// admin member.
func CreateRoomHandler(rooms *store.RoomStore) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := boundIdentity(c)

		var req models.CreateRoomRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request"})
		}
		if req.Name == "" {
			return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "name required"})
		}

		room, err := rooms.CreateRoom(c.Context(), id.UserID, req)
		if err != nil {
			return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		}
		return c.Status(http.StatusCreated).JSON(room)
	}
}

func ListRoomsHandler(rooms *store.RoomStore) fiber.Handler {
	return func(c *fiber.Ctx) error {
		page, err := rooms.ListRooms(c.Context(), c.QueryInt("page", 1))
		if err != nil {
			return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(page)
	}
}

func ListUserRoomsHandler(rooms *store.RoomStore) fiber.Handler {
	return func(c *fiber.Ctx) error {
		page, err := rooms.ListUserRooms(c.Context(), c.Params("user_id"), c.QueryInt("page", 1))
		if err != nil {
			return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(page)
	}
}

// GetRoomHandler returns one room with its member list.
func GetRoomHandler(rooms *store.RoomStore) fiber.Handler {
	return func(c *fiber.Ctx) error {
		room, err := rooms.GetRoom(c.Context(), c.Params("room_id"))
		if err != nil {
			return roomError(c, err)
		}
		users, err := rooms.RoomMembers(c.Context(), room.ID)
		if err != nil {
			return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(fiber.Map{"room": room, "users": users})
	}
}

func UpdateRoomHandler(rooms *store.RoomStore) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := boundIdentity(c)
		roomID := c.Params("room_id")

		room, err := rooms.GetRoom(c.Context(), roomID)
		if err != nil {
			return roomError(c, err)
		}
		if room.AdminID != id.UserID {
			return c.Status(http.StatusForbidden).JSON(fiber.Map{"error": "only the room admin can update the room"})
		}

		var req models.UpdateRoomRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request"})
		}

		updated, err := rooms.UpdateRoom(c.Context(), roomID, req)
		if err != nil {
			return roomError(c, err)
		}
		return c.JSON(updated)
	}
}

func DeleteRoomHandler(rooms *store.RoomStore) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := boundIdentity(c)
		roomID := c.Params("room_id")

		room, err := rooms.GetRoom(c.Context(), roomID)
		if err != nil {
			return roomError(c, err)
		}
		if room.AdminID != id.UserID {
			return c.Status(http.StatusForbidden).JSON(fiber.Map{"error": "only the room admin can delete the room"})
		}

		if err := rooms.DeleteRoom(c.Context(), roomID); err != nil {
			return roomError(c, err)
		}
		return c.JSON(fiber.Map{"message": "deleted successfully"})
	}
}

// ListRoomRequestsHandler lists a room's open invitations and join
// requests; admin only.
func ListRoomRequestsHandler(rooms *store.RoomStore) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := boundIdentity(c)
		roomID := c.Params("room_id")

		room, err := rooms.GetRoom(c.Context(), roomID)
		if err != nil {
			return roomError(c, err)
		}
		if room.AdminID != id.UserID {
			return c.Status(http.StatusForbidden).JSON(fiber.Map{"error": "only the room admin can list requests"})
		}

		pending, err := rooms.PendingMemberships(c.Context(), roomID)
		if err != nil {
			return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(pending)
	}
}

// ListRoomMessagesHandler returns the caller's messages in the room.
func ListRoomMessagesHandler(messages *store.MessageStore) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := boundIdentity(c)
		msgs, err := messages.UserMessages(c.Context(), c.Params("room_id"), id.UserID)
		if err != nil {
			return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(msgs)
	}
}

// UnreadCountHandler returns the caller's unread count for the room.
func UnreadCountHandler(messages *store.MessageStore) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := boundIdentity(c)
		count, err := messages.UnreadCount(c.Context(), c.Params("room_id"), id.UserID)
		if err != nil {
			return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(fiber.Map{"unread": count})
	}
}

func roomError(c *fiber.Ctx, err error) error {
	if errors.Is(err, engine.ErrNotFound) {
		return c.Status(http.StatusNotFound).JSON(fiber.Map{"error": "No Room Found"})
	}
	return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
}
