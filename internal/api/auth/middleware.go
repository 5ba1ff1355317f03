package auth

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

// ContextKey represents keys for context values
type ContextKey string

const UserContextKey ContextKey = "user"

// RequireAuth rejects requests without a valid "Bearer" Authorization header.
func RequireAuth(tokenService *TokenService) echo.MiddlewareFunc {
	return requireAuth(tokenService, false)
}

// RequireAuthOrQuery also accepts the token in the "token" query parameter,
// for browser websocket clients that cannot set headers.
func RequireAuthOrQuery(tokenService *TokenService) echo.MiddlewareFunc {
	return requireAuth(tokenService, true)
}

func requireAuth(tokenService *TokenService, allowQuery bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tokenString, err := bearerToken(c.Request().Header.Get("Authorization"))
			if err != nil && allowQuery {
				if q := c.QueryParam("token"); q != "" {
					tokenString, err = q, nil
				}
			}
			if err != nil {
				return err
			}

			user, err := tokenService.ValidateAccessToken(tokenString)
			if err != nil {
				log.Debug().Err(err).Str("path", c.Path()).Msg("Rejected token")
				return echo.NewHTTPError(http.StatusUnauthorized, "Invalid or expired token")
			}

			c.Set(string(UserContextKey), user)
			return next(c)
		}
	}
}

func bearerToken(header string) (string, error) {
	if header == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "Authorization header required")
	}
	parts := strings.Split(header, " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "Invalid authorization header format")
	}
	return parts[1], nil
}

// GetUser extracts user from echo context
func GetUser(c echo.Context) *User {
	user, _ := c.Get(string(UserContextKey)).(*User)
	return user
}
