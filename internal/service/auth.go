package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rootwire/account-service/internal/apperror"
	"github.com/rootwire/account-service/internal/audit"
	"github.com/rootwire/account-service/internal/models"
	"github.com/rootwire/account-service/internal/notify"
	"github.com/rootwire/account-service/internal/repo"
	"github.com/rootwire/account-service/pkg/hash"
	"github.com/rootwire/account-service/pkg/logging"
	"github.com/rootwire/account-service/pkg/otp"
	"github.com/rootwire/account-service/pkg/tokens"
)

// Notifier enqueues an email for background delivery. Implementations
// must not block.
type Notifier interface {
	Enqueue(m notify.Message)
}

// EventPublisher pushes an account event to the stream. Best-effort.
type EventPublisher interface {
	Publish(ctx context.Context, eventType, key string, payload map[string]interface{}) error
}

// AuditRecorder indexes a security audit entry. Best-effort.
type AuditRecorder interface {
	Record(ctx context.Context, e audit.Entry)
}

// AuthService drives the credential lifecycle: login, token refresh,
// the OTP / password-reset flow, and authenticated password change.
// All collaborators are injected at construction; Mail, Events and
// Audit may be nil, which disables the respective side channel.
type AuthService struct {
	Store  repo.CredentialStore
	Hasher *hash.Hasher
	Issuer *tokens.Issuer
	OTP    *otp.Generator
	Mail   Notifier
	Events EventPublisher
	Audit  AuditRecorder

	OTPTTL        time.Duration
	ResetTokenTTL time.Duration
}

type LoginResult struct {
	AccessToken  string      `json:"accessToken"`
	RefreshToken string      `json:"refreshToken"`
	User         models.User `json:"user"`
}

func (s *AuthService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	l := logging.FromContext(ctx).With("svc", "auth.login", "email", email)

	user, err := s.Store.FindUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repo.ErrUserNotFound) {
			s.record(ctx, audit.Entry{Event: "login_failed", Email: email, Reason: "unknown user"})
			return nil, apperror.NotFound("User doesn't exist")
		}
		return nil, err
	}

	if !user.Verified {
		s.record(ctx, audit.Entry{Event: "login_failed", Email: email, UserID: user.ID.String(), Reason: "unverified"})
		return nil, apperror.PreconditionFailed("Please verify your account first")
	}
	if user.Status == models.StatusBlocked || user.Status == models.StatusDeleted {
		s.record(ctx, audit.Entry{Event: "login_failed", Email: email, UserID: user.ID.String(), Reason: "status " + user.Status})
		return nil, apperror.Forbidden(fmt.Sprintf("Your account is %s", user.Status))
	}
	if !s.Hasher.Check(user.PasswordHash, password) {
		s.record(ctx, audit.Entry{Event: "login_failed", Email: email, UserID: user.ID.String(), Reason: "wrong password"})
		return nil, apperror.BadRequest("Password is incorrect")
	}

	accessToken, _, err := s.Issuer.IssueAccess(user.ID.String(), user.Role, user.Email)
	if err != nil {
		return nil, err
	}
	refreshToken, refreshExp, err := s.Issuer.IssueRefresh(user.ID.String(), user.Role, user.Email)
	if err != nil {
		return nil, err
	}

	if err := s.Store.CreateToken(ctx, &models.Token{
		Value:     refreshToken,
		Kind:      models.TokenKindRefresh,
		UserID:    user.ID,
		ExpiresAt: refreshExp,
	}); err != nil {
		return nil, err
	}

	l.Info("login_successful", "user_id", user.ID)
	s.record(ctx, audit.Entry{Event: "login_success", Email: user.Email, UserID: user.ID.String()})
	s.publish(ctx, "user_logged_in", user.ID, map[string]interface{}{"email": user.Email})

	return &LoginResult{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		User:         user.Scrubbed(),
	}, nil
}

// Refresh exchanges a valid refresh token for a new access token. The
// refresh token itself is neither rotated nor extended, so repeating
// the call with the same token keeps working until it expires.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (string, error) {
	l := logging.FromContext(ctx).With("svc", "auth.refresh")

	if _, err := s.Issuer.Parse(refreshToken); err != nil {
		return "", apperror.Unauthorized("Invalid or expired refresh token")
	}

	row, err := s.Store.FindToken(ctx, refreshToken, models.TokenKindRefresh)
	if err != nil {
		if errors.Is(err, repo.ErrTokenNotFound) {
			return "", apperror.Unauthorized("Invalid or expired refresh token")
		}
		return "", err
	}
	if row.Expired(time.Now()) {
		return "", apperror.Unauthorized("Invalid or expired refresh token")
	}

	user, err := s.Store.FindUserByID(ctx, row.UserID)
	if err != nil {
		if errors.Is(err, repo.ErrUserNotFound) {
			return "", apperror.Unauthorized("User not found")
		}
		return "", err
	}

	accessToken, _, err := s.Issuer.IssueAccess(user.ID.String(), user.Role, user.Email)
	if err != nil {
		return "", err
	}

	l.Info("access_token_refreshed", "user_id", user.ID)
	return accessToken, nil
}

// ForgetPassword issues a fresh OTP challenge and queues the reset
// email. Any prior challenge is replaced wholesale.
func (s *AuthService) ForgetPassword(ctx context.Context, email string) error {
	l := logging.FromContext(ctx).With("svc", "auth.forget_password", "email", email)

	user, err := s.Store.FindUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repo.ErrUserNotFound) {
			return apperror.NotFound("User doesn't exist")
		}
		return err
	}

	code, err := s.OTP.Generate()
	if err != nil {
		return err
	}
	expireAt := time.Now().Add(s.OTPTTL)

	if err := s.Store.UpdateAuthentication(ctx, user.ID, models.Authentication{
		OneTimeCode: code,
		ExpireAt:    &expireAt,
		IsExistUser: true,
	}); err != nil {
		return err
	}

	if s.Mail != nil {
		s.Mail.Enqueue(notify.ResetPasswordEmail(user.Email, code))
	}

	l.Info("otp_issued")
	s.record(ctx, audit.Entry{Event: "otp_issued", Email: user.Email, UserID: user.ID.String(), Reason: "forget password"})
	return nil
}

// VerifyEmail exchanges an OTP. The first successful exchange mints a
// single-use reset token and marks the reset flow as open; a second
// exchange while the flow is open instead marks the account verified
// and clears the challenge, which is how registration verification
// completes. The two meanings share one endpoint by design of the
// original flow.
func (s *AuthService) VerifyEmail(ctx context.Context, email, oneTimeCode string) (string, error) {
	l := logging.FromContext(ctx).With("svc", "auth.verify_email", "email", email)

	user, err := s.Store.FindUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repo.ErrUserNotFound) {
			return "", apperror.NotFound("User doesn't exist")
		}
		return "", err
	}

	if oneTimeCode == "" {
		return "", apperror.BadRequest("OTP is required")
	}
	if user.Authentication.OneTimeCode == "" || user.Authentication.OneTimeCode != oneTimeCode {
		s.record(ctx, audit.Entry{Event: "otp_rejected", Email: email, UserID: user.ID.String(), Reason: "wrong code"})
		return "", apperror.BadRequest("Wrong OTP")
	}
	if user.Authentication.ExpireAt == nil || time.Now().After(*user.Authentication.ExpireAt) {
		s.record(ctx, audit.Entry{Event: "otp_rejected", Email: email, UserID: user.ID.String(), Reason: "expired"})
		return "", apperror.BadRequest("OTP expired")
	}

	if user.Authentication.IsResetPassword {
		if err := s.Store.MarkVerified(ctx, user.ID); err != nil {
			return "", err
		}
		l.Info("account_verified")
		s.record(ctx, audit.Entry{Event: "account_verified", Email: email, UserID: user.ID.String()})
		return "", nil
	}

	resetToken, err := otp.NewResetToken()
	if err != nil {
		return "", err
	}
	if err := s.Store.CreateToken(ctx, &models.Token{
		Value:     resetToken,
		Kind:      models.TokenKindPasswordReset,
		UserID:    user.ID,
		ExpiresAt: time.Now().Add(s.ResetTokenTTL),
	}); err != nil {
		return "", err
	}
	if err := s.Store.UpdateAuthentication(ctx, user.ID, models.Authentication{
		IsResetPassword: true,
	}); err != nil {
		return "", err
	}

	l.Info("otp_verified")
	s.record(ctx, audit.Entry{Event: "otp_verified", Email: email, UserID: user.ID.String()})
	return resetToken, nil
}

// ResetPassword completes the flow opened by VerifyEmail. All checks
// run before any write, so a failed call leaves the flow state intact.
func (s *AuthService) ResetPassword(ctx context.Context, resetToken, newPassword, confirmPassword string) error {
	l := logging.FromContext(ctx).With("svc", "auth.reset_password")

	row, err := s.Store.FindToken(ctx, resetToken, models.TokenKindPasswordReset)
	if err != nil {
		if errors.Is(err, repo.ErrTokenNotFound) {
			return apperror.Unauthorized("Unauthorized")
		}
		return err
	}

	user, err := s.Store.FindUserByID(ctx, row.UserID)
	if err != nil {
		if errors.Is(err, repo.ErrUserNotFound) {
			return apperror.Unauthorized("No permission")
		}
		return err
	}
	if !user.Authentication.IsResetPassword {
		return apperror.Unauthorized("No permission")
	}

	if row.Expired(time.Now()) {
		return apperror.BadRequest("Token expired")
	}
	if newPassword != confirmPassword {
		return apperror.BadRequest("Passwords do not match")
	}

	passwordHash, err := s.Hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	if err := s.Store.UpdatePassword(ctx, user.ID, passwordHash); err != nil {
		return err
	}
	if err := s.Store.UpdateAuthentication(ctx, user.ID, models.Authentication{}); err != nil {
		return err
	}

	// The reset token is single-use, and a changed password invalidates
	// every outstanding session.
	if err := s.Store.DeleteUserTokens(ctx, user.ID, models.TokenKindPasswordReset); err != nil {
		l.Error("reset_token_cleanup_failed", "error", err)
	}
	if err := s.Store.DeleteUserTokens(ctx, user.ID, models.TokenKindRefresh); err != nil {
		l.Error("refresh_revoke_failed", "error", err)
	}

	l.Info("password_reset", "user_id", user.ID)
	s.record(ctx, audit.Entry{Event: "password_reset", Email: user.Email, UserID: user.ID.String()})
	s.publish(ctx, "password_reset", user.ID, map[string]interface{}{"email": user.Email})
	return nil
}

func (s *AuthService) ChangePassword(ctx context.Context, claims *tokens.Claims, currentPassword, newPassword, confirmPassword string) error {
	l := logging.FromContext(ctx).With("svc", "auth.change_password", "user_id", claims.UserID)

	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		return apperror.Unauthorized("Invalid token")
	}

	user, err := s.Store.FindUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repo.ErrUserNotFound) {
			return apperror.NotFound("User doesn't exist")
		}
		return err
	}

	if !s.Hasher.Check(user.PasswordHash, currentPassword) {
		return apperror.BadRequest("Current password is incorrect")
	}
	if currentPassword == newPassword {
		return apperror.BadRequest("New password must be different")
	}
	if newPassword != confirmPassword {
		return apperror.BadRequest("Passwords do not match")
	}

	passwordHash, err := s.Hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	if err := s.Store.UpdatePassword(ctx, user.ID, passwordHash); err != nil {
		return err
	}

	if err := s.Store.DeleteUserTokens(ctx, user.ID, models.TokenKindRefresh); err != nil {
		l.Error("refresh_revoke_failed", "error", err)
	}

	l.Info("password_changed")
	s.record(ctx, audit.Entry{Event: "password_changed", Email: user.Email, UserID: user.ID.String()})
	s.publish(ctx, "password_changed", user.ID, map[string]interface{}{"email": user.Email})
	return nil
}

func (s *AuthService) publish(ctx context.Context, eventType string, userID uuid.UUID, payload map[string]interface{}) {
	if s.Events == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.Events.Publish(pubCtx, eventType, userID.String(), payload); err != nil {
		logging.FromContext(ctx).Error("event_publish_failed", "type", eventType, "error", err)
	}
}

func (s *AuthService) record(ctx context.Context, e audit.Entry) {
	if s.Audit == nil {
		return
	}
	s.Audit.Record(ctx, e)
}
