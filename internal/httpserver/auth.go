package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/rootwire/account-service/internal/middleware"
	"github.com/rootwire/account-service/internal/service"
	"github.com/rootwire/account-service/pkg/logging"
)

type AuthHTTP struct {
	Svc     *service.AuthService
	Timeout time.Duration
}

func (h *AuthHTTP) deadline(c echo.Context) (context.Context, context.CancelFunc) {
	timeout := h.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return context.WithTimeout(c.Request().Context(), timeout)
}

func (h *AuthHTTP) Login(c echo.Context) error {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	ctx, cancel := h.deadline(c)
	defer cancel()

	result, err := h.Svc.Login(ctx, req.Email, req.Password)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, "User logged in successfully.", result)
}

func (h *AuthHTTP) ForgetPassword(c echo.Context) error {
	var req struct {
		Email string `json:"email"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	ctx, cancel := h.deadline(c)
	defer cancel()

	if err := h.Svc.ForgetPassword(ctx, req.Email); err != nil {
		return err
	}
	return respond(c, http.StatusOK,
		"Please check your email. We have sent you a one-time passcode (OTP).", nil)
}

func (h *AuthHTTP) VerifyEmail(c echo.Context) error {
	var req struct {
		Email       string `json:"email"`
		OneTimeCode string `json:"oneTimeCode"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	ctx, cancel := h.deadline(c)
	defer cancel()

	resetToken, err := h.Svc.VerifyEmail(ctx, req.Email, req.OneTimeCode)
	if err != nil {
		return err
	}

	var data interface{}
	if resetToken != "" {
		data = resetToken
	}
	return respond(c, http.StatusOK, "Verification Successful", data)
}

func (h *AuthHTTP) ResetPassword(c echo.Context) error {
	var req struct {
		Token           string `json:"token"`
		NewPassword     string `json:"newPassword"`
		ConfirmPassword string `json:"confirmPassword"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	ctx, cancel := h.deadline(c)
	defer cancel()

	if err := h.Svc.ResetPassword(ctx, req.Token, req.NewPassword, req.ConfirmPassword); err != nil {
		return err
	}
	return respond(c, http.StatusOK, "Your password has been successfully reset.", nil)
}

func (h *AuthHTTP) RefreshToken(c echo.Context) error {
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	ctx, cancel := h.deadline(c)
	defer cancel()

	accessToken, err := h.Svc.Refresh(ctx, req.RefreshToken)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, "Access token refreshed successfully.", echo.Map{
		"accessToken": accessToken,
	})
}

func (h *AuthHTTP) ChangePassword(c echo.Context) error {
	claims := middleware.ClaimsFrom(c)
	if claims == nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "Missing access token")
	}

	var req struct {
		CurrentPassword string `json:"currentPassword"`
		NewPassword     string `json:"newPassword"`
		ConfirmPassword string `json:"confirmPassword"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	ctx, cancel := h.deadline(c)
	defer cancel()

	l := logging.FromContext(ctx).With("handler", "change_password")
	if err := h.Svc.ChangePassword(ctx, claims, req.CurrentPassword, req.NewPassword, req.ConfirmPassword); err != nil {
		return err
	}
	l.Info("password_change_ok")
	return respond(c, http.StatusOK, "Your password has been successfully changed", nil)
}
