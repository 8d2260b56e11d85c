package api

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/dmitrijs2005/shopkeeper/internal/common"
	"github.com/dmitrijs2005/shopkeeper/internal/session"
)

const localSession = "session"

// authMiddleware validates the bearer token and stores the session in the
// request locals and user context.
func authMiddleware(authenticate func(string) (*session.Session, error)) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(common.AuthorizationHeaderName)
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			return common.ErrUnauthorized
		}

		s, err := authenticate(strings.TrimSpace(token))
		if err != nil {
			return err
		}

		c.Locals(localSession, s)
		c.SetUserContext(session.WithSession(c.UserContext(), s))
		return c.Next()
	}
}

func requireRole(roles ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		s := sessionOf(c)
		for _, r := range roles {
			if s != nil && s.Role == r {
				return c.Next()
			}
		}
		return fiber.ErrForbidden
	}
}

func sessionOf(c *fiber.Ctx) *session.Session {
	s, _ := c.Locals(localSession).(*session.Session)
	return s
}
