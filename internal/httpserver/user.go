package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/rootwire/account-service/internal/middleware"
	"github.com/rootwire/account-service/internal/service"
	"github.com/rootwire/account-service/internal/storage"
)

type UserHTTP struct {
	Svc     *service.UserService
	Files   storage.FileStore
	Timeout time.Duration
}

func (h *UserHTTP) deadline(c echo.Context) (context.Context, context.CancelFunc) {
	timeout := h.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return context.WithTimeout(c.Request().Context(), timeout)
}

func (h *UserHTTP) Create(c echo.Context) error {
	var req struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if req.Email == "" || req.Password == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "email and password are required")
	}

	ctx, cancel := h.deadline(c)
	defer cancel()

	result, err := h.Svc.Create(ctx, req.Name, req.Email, req.Password)
	if err != nil {
		return err
	}

	public := echo.Map{
		"name":  result.User.Name,
		"email": result.User.Email,
		"image": result.User.Image,
	}
	if result.Resent {
		return respond(c, http.StatusConflict, "OTP sent successfully!", public)
	}
	return respond(c, http.StatusCreated,
		"User created successfully. Please verify your email.", public)
}

func (h *UserHTTP) Profile(c echo.Context) error {
	userID, err := authedUserID(c)
	if err != nil {
		return err
	}

	ctx, cancel := h.deadline(c)
	defer cancel()

	user, err := h.Svc.Profile(ctx, userID)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, "User profile retrieved successfully", user)
}

// UpdateProfile accepts either a JSON body or a multipart form with an
// optional image file plus a "data" part carrying the JSON fields.
func (h *UserHTTP) UpdateProfile(c echo.Context) error {
	userID, err := authedUserID(c)
	if err != nil {
		return err
	}

	var update service.ProfileUpdate
	var fields struct {
		Name *string `json:"name"`
	}

	contentType := c.Request().Header.Get(echo.HeaderContentType)
	if strings.HasPrefix(contentType, echo.MIMEMultipartForm) {
		if data := c.FormValue("data"); data != "" {
			if err := json.Unmarshal([]byte(data), &fields); err != nil {
				return echo.NewHTTPError(http.StatusBadRequest, "invalid data field")
			}
		}
		if file, err := c.FormFile("image"); err == nil {
			src, err := file.Open()
			if err != nil {
				return echo.NewHTTPError(http.StatusBadRequest, "cannot read image")
			}
			defer src.Close()
			path, err := h.Files.Save(src, file.Filename)
			if err != nil {
				return err
			}
			update.Image = &path
		}
	} else {
		if err := c.Bind(&fields); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
		}
	}
	update.Name = fields.Name

	ctx, cancel := h.deadline(c)
	defer cancel()

	user, err := h.Svc.UpdateProfile(ctx, userID, update)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, "Profile updated successfully", user)
}

func authedUserID(c echo.Context) (uuid.UUID, error) {
	claims := middleware.ClaimsFrom(c)
	if claims == nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusUnauthorized, "Missing access token")
	}
	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusUnauthorized, "Invalid token")
	}
	return userID, nil
}
