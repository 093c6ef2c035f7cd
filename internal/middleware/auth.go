package middleware

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/rootwire/account-service/internal/apperror"
	"github.com/rootwire/account-service/pkg/tokens"
)

// ClaimsKey is the echo context key the verified claim set is stored
// under.
const ClaimsKey = "claims"

type BearerAuth struct {
	Issuer *tokens.Issuer
}

func NewBearerAuth(issuer *tokens.Issuer) *BearerAuth {
	return &BearerAuth{Issuer: issuer}
}

// Require validates the Authorization bearer token and, when roles are
// given, enforces the allow-list.
func (m *BearerAuth) Require(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			raw, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || raw == "" {
				return apperror.Unauthorized("Missing access token")
			}

			claims, err := m.Issuer.Parse(raw)
			if err != nil {
				return apperror.Unauthorized("Invalid or expired token")
			}

			if len(roles) > 0 && !contains(roles, claims.Role) {
				return apperror.Forbidden("You don't have enough rights")
			}

			c.Set(ClaimsKey, claims)
			return next(c)
		}
	}
}

// ClaimsFrom returns the claim set stored by Require, or nil when the
// route is unauthenticated.
func ClaimsFrom(c echo.Context) *tokens.Claims {
	if claims, ok := c.Get(ClaimsKey).(*tokens.Claims); ok {
		return claims
	}
	return nil
}

func contains(roles []string, role string) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
