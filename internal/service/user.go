package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/rootwire/account-service/internal/apperror"
	"github.com/rootwire/account-service/internal/audit"
	"github.com/rootwire/account-service/internal/models"
	"github.com/rootwire/account-service/internal/notify"
	"github.com/rootwire/account-service/internal/repo"
	"github.com/rootwire/account-service/internal/storage"
	"github.com/rootwire/account-service/pkg/hash"
	"github.com/rootwire/account-service/pkg/logging"
	"github.com/rootwire/account-service/pkg/otp"
)

// UserService handles registration and profile operations.
type UserService struct {
	Store  repo.CredentialStore
	Hasher *hash.Hasher
	OTP    *otp.Generator
	Mail   Notifier
	Events EventPublisher
	Audit  AuditRecorder
	Files  storage.FileStore

	OTPTTL time.Duration
}

type CreateResult struct {
	User models.User
	// Resent reports that the email already had an account and the OTP
	// challenge was reissued instead of creating a new record.
	Resent bool
}

// Create registers a USER-role account and opens an OTP challenge. If
// the email is already registered the submitted password replaces the
// stored one and a fresh OTP goes out, so an interrupted signup can be
// retried with the same address.
func (s *UserService) Create(ctx context.Context, name, email, password string) (*CreateResult, error) {
	l := logging.FromContext(ctx).With("svc", "user.create", "email", email)

	passwordHash, err := s.Hasher.Hash(password)
	if err != nil {
		return nil, err
	}

	existing, err := s.Store.FindUserByEmail(ctx, email)
	if err != nil && !errors.Is(err, repo.ErrUserNotFound) {
		return nil, err
	}

	if existing != nil {
		code, err := s.issueChallenge(ctx, existing.ID)
		if err != nil {
			return nil, err
		}
		if err := s.Store.UpdatePassword(ctx, existing.ID, passwordHash); err != nil {
			return nil, err
		}
		if s.Mail != nil {
			s.Mail.Enqueue(notify.CreateAccountEmail(existing.Name, existing.Email, code))
		}
		l.Info("signup_otp_resent", "user_id", existing.ID)
		s.record(ctx, audit.Entry{Event: "otp_issued", Email: existing.Email, UserID: existing.ID.String(), Reason: "duplicate signup"})
		return &CreateResult{User: existing.Scrubbed(), Resent: true}, nil
	}

	user := &models.User{
		Name:         name,
		Email:        email,
		PasswordHash: passwordHash,
		Role:         models.RoleUser,
		Status:       models.StatusActive,
	}
	if err := s.Store.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	code, err := s.issueChallenge(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if s.Mail != nil {
		s.Mail.Enqueue(notify.CreateAccountEmail(user.Name, user.Email, code))
	}

	l.Info("user_registered", "user_id", user.ID)
	s.record(ctx, audit.Entry{Event: "user_registered", Email: user.Email, UserID: user.ID.String()})
	s.publish(ctx, "user_registered", user.ID, map[string]interface{}{"email": user.Email})

	return &CreateResult{User: user.Scrubbed()}, nil
}

func (s *UserService) issueChallenge(ctx context.Context, userID uuid.UUID) (string, error) {
	code, err := s.OTP.Generate()
	if err != nil {
		return "", err
	}
	expireAt := time.Now().Add(s.OTPTTL)
	if err := s.Store.UpdateAuthentication(ctx, userID, models.Authentication{
		OneTimeCode: code,
		ExpireAt:    &expireAt,
	}); err != nil {
		return "", err
	}
	return code, nil
}

func (s *UserService) Profile(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	user, err := s.Store.FindUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repo.ErrUserNotFound) {
			return nil, apperror.NotFound("User not found!")
		}
		return nil, err
	}
	scrubbed := user.Scrubbed()
	return &scrubbed, nil
}

type ProfileUpdate struct {
	Name  *string
	Image *string
}

// UpdateProfile applies a partial profile update. A new image replaces
// the previous file on disk.
func (s *UserService) UpdateProfile(ctx context.Context, userID uuid.UUID, update ProfileUpdate) (*models.User, error) {
	l := logging.FromContext(ctx).With("svc", "user.update_profile", "user_id", userID)

	user, err := s.Store.FindUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repo.ErrUserNotFound) {
			return nil, apperror.NotFound("User not found!")
		}
		return nil, err
	}

	if update.Name != nil {
		user.Name = *update.Name
	}
	if update.Image != nil {
		if user.Image != "" && s.Files != nil {
			if err := s.Files.Remove(user.Image); err != nil {
				l.Warn("old_image_remove_failed", "path", user.Image, "error", err)
			}
		}
		user.Image = *update.Image
	}

	if err := s.Store.SaveUser(ctx, user); err != nil {
		return nil, err
	}

	l.Info("profile_updated")
	scrubbed := user.Scrubbed()
	return &scrubbed, nil
}

func (s *UserService) publish(ctx context.Context, eventType string, userID uuid.UUID, payload map[string]interface{}) {
	if s.Events == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.Events.Publish(pubCtx, eventType, userID.String(), payload); err != nil {
		logging.FromContext(ctx).Error("event_publish_failed", "type", eventType, "error", err)
	}
}

func (s *UserService) record(ctx context.Context, e audit.Entry) {
	if s.Audit == nil {
		return
	}
	s.Audit.Record(ctx, e)
}
