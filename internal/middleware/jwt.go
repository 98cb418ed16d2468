package middleware

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/khidmahub/khidmahub/internal/identity"
)

// actorKey is the echo context key the authenticated Actor is stored under.
const actorKey = "actor"

// JWT verifies the Bearer token and stores the caller's identity on the echo
// context. Tokens are minted by the platform's identity service; this module
// only consumes them.
func JWT(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			if !strings.HasPrefix(header, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
			}
			raw := strings.TrimPrefix(header, "Bearer ")

			claims := jwt.MapClaims{}
			token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(secret), nil
			})
			if err != nil || !token.Valid {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}

			sub, _ := claims["sub"].(string)
			id, err := uuid.Parse(sub)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid subject"})
			}
			roleClaim, _ := claims["role"].(string)
			role := identity.Role(roleClaim)
			if !role.Valid() {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unknown role"})
			}

			c.Set(actorKey, identity.Actor{ID: id, Role: role})
			return next(c)
		}
	}
}

// Actor retrieves the authenticated caller stored by JWT. The zero Actor is
// returned on routes mounted without the middleware.
func Actor(c echo.Context) identity.Actor {
	a, _ := c.Get(actorKey).(identity.Actor)
	return a
}

// RequireRoles rejects callers whose role is not in the allowed set.
// Usage: g.POST("/invoices/:id/pay", h.Pay, middleware.RequireRoles(identity.RoleAdmin))
func RequireRoles(roles ...identity.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			actor := Actor(c)
			for _, r := range roles {
				if actor.Role == r {
					return next(c)
				}
			}
			return c.JSON(http.StatusForbidden, echo.Map{"error": "access denied"})
		}
	}
}
