package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"replyflow_server/pkg/apperr"
)

// ServiceAuth guards the internal API with an HS256 service token. The
// caller is another backend, not an end user, so the only claim that
// matters is a valid signature and an unexpired token.
func ServiceAuth(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get("Authorization")
		if header == "" {
			return apperr.Unauthorized("missing authorization header")
		}

		tokenString := strings.TrimPrefix(header, "Bearer ")
		if tokenString == header {
			return apperr.Unauthorized("authorization header must be a bearer token")
		}

		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(secret), nil
		}, jwt.WithValidMethods([]string{"HS256"}))
		if err != nil || !token.Valid {
			return apperr.Unauthorized("invalid service token")
		}

		if claims, ok := token.Claims.(jwt.MapClaims); ok {
			if sub, _ := claims.GetSubject(); sub != "" {
				c.Locals("service", sub)
			}
		}

		return c.Next()
	}
}
