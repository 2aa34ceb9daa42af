// Package auth guards the gateway routes with bearer-token verification.
// Audio is only accepted from authenticated users of the travel planner.
package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt"
	"github.com/pkg/errors"
)

// UserIDKey is the fiber locals key the verified subject is stored under.
const UserIDKey = "userID"

// ErrInvalidToken is returned for missing, malformed, or unverifiable
// tokens.
var ErrInvalidToken = errors.New("auth: invalid token")

// Middleware returns a fiber handler verifying the Authorization bearer
// token (HS256, shared secret with the auth provider). Websocket upgrades
// cannot set headers from the browser, so a token query parameter is
// accepted as fallback.
func Middleware(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := bearerToken(c.Get(fiber.HeaderAuthorization))
		if raw == "" {
			raw = c.Query("token")
		}

		userID, err := Verify(raw, secret)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
		}

		c.Locals(UserIDKey, userID)
		return c.Next()
	}
}

// Verify checks an HS256 token and returns its subject.
func Verify(raw, secret string) (string, error) {
	if raw == "" {
		return "", errors.Wrap(ErrInvalidToken, "missing token")
	}

	token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Wrapf(ErrInvalidToken, "unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return "", errors.Wrap(ErrInvalidToken, err.Error())
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", errors.Wrap(ErrInvalidToken, "invalid claims")
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return "", errors.Wrap(ErrInvalidToken, "missing subject")
	}
	return sub, nil
}

func bearerToken(header string) string {
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}
