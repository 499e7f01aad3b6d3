package middleware

import (
	"unimarket-backend/internal/domain"
	"unimarket-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const userLocal = "user"

// RequireAuth ensures a user is in the session. Returns 401 with standard error format if not.
func RequireAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user := c.Locals(userLocal)
		if user == nil {
			return response.Unauthorized(c, "Unauthorized")
		}
		c.Locals("auth", user)
		return c.Next()
	}
}

// GetUser returns the session user from Locals (nil if not logged in).
func GetUser(c *fiber.Ctx) interface{} {
	return c.Locals(userLocal)
}

// CurrentUserID returns the acting user's id from the session.
func CurrentUserID(c *fiber.Ctx) (uuid.UUID, error) {
	m, ok := GetUser(c).(map[string]interface{})
	if !ok {
		return uuid.Nil, domain.ErrNotAuthenticated
	}
	s, _ := m["user_id"].(string)
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, domain.ErrNotAuthenticated
	}
	return id, nil
}

// CurrentUserName is the display name stored in the session, falling back to the email.
func CurrentUserName(c *fiber.Ctx) string {
	m, _ := GetUser(c).(map[string]interface{})
	if name, _ := m["fullname"].(string); name != "" {
		return name
	}
	email, _ := m["email"].(string)
	return email
}

// ParamUUID parses a route parameter as a uuid.
func ParamUUID(c *fiber.Ctx, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params(name))
	if err != nil {
		return uuid.Nil, domain.Validation("Invalid " + name)
	}
	return id, nil
}
