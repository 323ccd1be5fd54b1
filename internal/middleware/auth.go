package middleware

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

const buyerContextKey = "buyer_id"

// fallback identity when no JWT secret is configured (development only)
const devBuyerID = "dev-buyer-001"

// Auth extracts the authenticated buyer from the bearer token issued by the
// external auth system. Only token parsing lives here; issuing and session
// management stay outside this service.
func Auth(jwtSecret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if jwtSecret == "" {
				c.Set(buyerContextKey, devBuyerID)
				return next(c)
			}

			raw := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(raw, "Bearer ") {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer token")
			}

			token, err := jwt.Parse(
				strings.TrimPrefix(raw, "Bearer "),
				func(t *jwt.Token) (interface{}, error) {
					return []byte(jwtSecret), nil
				},
				jwt.WithValidMethods([]string{"HS256"}),
			)
			if err != nil || !token.Valid {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			subject, err := token.Claims.GetSubject()
			if err != nil || subject == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "token missing subject")
			}

			c.Set(buyerContextKey, subject)
			return next(c)
		}
	}
}

func BuyerIDFromContext(c echo.Context) (string, error) {
	buyerID, _ := c.Get(buyerContextKey).(string)
	if buyerID == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "no authenticated buyer")
	}
	return buyerID, nil
}
