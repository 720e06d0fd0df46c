package handlers

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"chathub/internal/engine"
	"chathub/internal/models"
	"chathub/internal/registry"
	"chathub/internal/services"
	"chathub/internal/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

const dispatchTimeout = 10 * time.Second

// wsConn adapts a fiber websocket connection to registry.Conn. Fiber's
// websocket is not safe for concurrent writes, and fanout from other
// users' events runs on their goroutines, so every write takes the
// mutex.
type wsConn struct {
	mu sync.Mutex
	c  *websocket.Conn
}

func (w *wsConn) WriteJSON(v interface{}) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.c.WriteJSON(v)
}

func (w *wsConn) Close() error {
	return w.c.Close()
}

// WebSocketHandler owns one authenticated connection: it registers the
// user, processes inbound events strictly in the order received, and
// unregisters on disconnect.
func WebSocketHandler(eng *engine.Engine, reg registry.Registry) fiber.Handler {
	return websocket.New(func(c *websocket.Conn) {
		// Bound once at handshake; payloads never re-assert it.
		identity := c.Locals("identity").(models.Identity)

		conn := &wsConn{c: c}
		reg.Register(identity.UserID, conn)
		defer func() {
			reg.Unregister(identity.UserID, conn)
			c.Close()
		}()

		_ = conn.WriteJSON(engine.Outbound{
			Event: "connected",
			Data:  map[string]string{"userId": identity.UserID},
		})

		for {
			msgType, msg, err := c.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					log.Printf("error: %v", err)
				}
				break
			}
			if msgType != websocket.TextMessage {
				continue
			}

			HandleFrame(conn, eng, identity, msg)
		}
	})
}

// HandleFrame decodes and dispatches one inbound frame. Terminal errors
// are reported to the actor only; a bad frame never tears down the
// connection.
func HandleFrame(conn *wsConn, eng *engine.Engine, identity models.Identity, msg []byte) {
	evt, err := engine.ParseEvent(msg)
	if err != nil {
		_ = conn.WriteJSON(errorOut("", err.Error()))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
	defer cancel()

	ack, err := eng.Dispatch(ctx, identity, evt)
	if err != nil {
		switch {
		case errors.Is(err, engine.ErrForbidden):
			_ = conn.WriteJSON(errorOut(evt.EventName(), "not allowed"))
		case errors.Is(err, engine.ErrNotFound):
			_ = conn.WriteJSON(errorOut(evt.EventName(), "not found"))
		default:
			utils.LogError(err, "dispatch "+evt.EventName())
			_ = conn.WriteJSON(errorOut(evt.EventName(), "internal error"))
		}
		return
	}

	if ack != nil {
		_ = conn.WriteJSON(*ack)
	}
}

func errorOut(event, message string) engine.Outbound {
	return engine.Outbound{Event: engine.EventError, Data: map[string]string{
		"event": event,
		"error": message,
	}}
}

// WSUpgradeMiddleware upgrades the connection to WebSocket
func WSUpgradeMiddleware(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		c.Locals("allowed", true)
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// AuthMiddleware verifies the JWT token before the request proceeds and
// binds the verified Identity. A missing or invalid credential is
// refused before any event is processed.
func AuthMiddleware(c *fiber.Ctx) error {
	// Get token from query param `access_token` or Authorization header
	token := c.Query("access_token")
	if token == "" {
		authHeader := c.Get("Authorization")
		if len(authHeader) > 7 && authHeader[:7] == "Bearer " {
			token = authHeader[7:]
		}
	}

	if token == "" {
		return fiber.NewError(fiber.StatusUnauthorized, "Missing token")
	}

	identity, err := services.ValidateToken(token)
	if err != nil {
		return fiber.NewError(fiber.StatusUnauthorized, "Invalid token")
	}

	c.Locals("identity", *identity)
	return c.Next()
}
