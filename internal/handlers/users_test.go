package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"chathub/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
)

type fakeUserLister struct {
	users []models.User
}

func (f *fakeUserLister) ListUsers(ctx context.Context) ([]models.User, error) {
	return f.users, nil
}

type fakeLiveStatus struct {
	online map[string]bool
}

func (f *fakeLiveStatus) Online(userID string) bool {
	return f.online[userID]
}

func newUsersApp(users UserLister, live LiveStatus) *fiber.App {
	app := fiber.New()
	app.Get("/users", func(c *fiber.Ctx) error {
		c.Locals("identity", models.Identity{UserID: "me", Name: "me"})
		return c.Next()
	}, ListUsersHandler(users, live))
	return app
}

func TestListUsersAloneIsAnEmptyArray(t *testing.T) {
	app := newUsersApp(
		&fakeUserLister{users: []models.User{{ID: "me", Name: "me"}}},
		&fakeLiveStatus{},
	)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/users", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.JSONEq(t, `[]`, string(body))
}

func TestListUsersReportsLiveStatusAndSkipsCaller(t *testing.T) {
	app := newUsersApp(
		&fakeUserLister{users: []models.User{
			{ID: "me", Name: "me"},
			{ID: "u1", Name: "alice"},
			{ID: "u2", Name: "bob"},
		}},
		&fakeLiveStatus{online: map[string]bool{"u1": true}},
	)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/users", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var got []map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &got))
	require.Len(t, got, 2)
	require.Equal(t, "u1", got[0]["id"])
	require.Equal(t, "online", got[0]["status"])
	require.Equal(t, "u2", got[1]["id"])
	require.Equal(t, "offline", got[1]["status"])
}
