package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/rootwire/account-service/internal/middleware"
	"github.com/rootwire/account-service/internal/models"
)

type Deps struct {
	Auth   *AuthHTTP
	User   *UserHTTP
	AuthMW *middleware.BearerAuth
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/health/ready", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	anyUser := d.AuthMW.Require(models.RoleAdmin, models.RoleUser)

	e.POST("/login", d.Auth.Login)
	e.POST("/forget-password", d.Auth.ForgetPassword)
	e.POST("/verify-email", d.Auth.VerifyEmail)
	e.POST("/reset-password", d.Auth.ResetPassword)
	e.POST("/refresh-token", d.Auth.RefreshToken)
	e.POST("/change-password", d.Auth.ChangePassword, anyUser)

	users := e.Group("/users")
	users.POST("", d.User.Create)
	users.GET("/profile", d.User.Profile, anyUser)
	users.PATCH("/profile", d.User.UpdateProfile, anyUser)
}
