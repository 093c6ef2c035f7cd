package service

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/rootwire/account-service/internal/apperror"
	"github.com/rootwire/account-service/internal/models"
	"github.com/rootwire/account-service/internal/repo"
	"github.com/rootwire/account-service/pkg/hash"
	"github.com/rootwire/account-service/pkg/otp"
	"github.com/rootwire/account-service/pkg/tokens"
)

func newTestStore(t *testing.T) *repo.GormRepo {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}, &models.Token{}))
	return repo.New(db)
}

func newTestAuth(t *testing.T) (*AuthService, *repo.GormRepo) {
	t.Helper()
	store := newTestStore(t)
	svc := &AuthService{
		Store:  store,
		Hasher: hash.New(4),
		Issuer: &tokens.Issuer{
			Secret:     []byte("test-jwt-secret"),
			AccessTTL:  15 * time.Minute,
			RefreshTTL: 24 * time.Hour,
		},
		OTP:           otp.New(6),
		OTPTTL:        5 * time.Minute,
		ResetTokenTTL: 5 * time.Minute,
	}
	return svc, store
}

type seedOpts struct {
	email    string
	password string
	status   string
	verified bool
}

func seedUser(t *testing.T, store *repo.GormRepo, opts seedOpts) *models.User {
	t.Helper()
	if opts.email == "" {
		opts.email = "a@x.com"
	}
	if opts.password == "" {
		opts.password = "right"
	}
	if opts.status == "" {
		opts.status = models.StatusActive
	}
	passwordHash, err := hash.New(4).Hash(opts.password)
	require.NoError(t, err)

	user := &models.User{
		Name:         "Test User",
		Email:        opts.email,
		PasswordHash: passwordHash,
		Role:         models.RoleUser,
		Status:       opts.status,
		Verified:     opts.verified,
	}
	require.NoError(t, store.CreateUser(context.Background(), user))
	return user
}

func requireAppError(t *testing.T, err error, code int, message string) {
	t.Helper()
	require.Error(t, err)
	appErr, ok := apperror.From(err)
	require.True(t, ok, "expected apperror, got %v", err)
	assert.Equal(t, code, appErr.Code)
	assert.Equal(t, message, appErr.Message)
}

func TestLogin_UnknownUser(t *testing.T) {
	t.Parallel()

	svc, _ := newTestAuth(t)
	res, err := svc.Login(context.Background(), "nobody@x.com", "whatever")
	assert.Nil(t, res)
	requireAppError(t, err, 404, "User doesn't exist")
}

func TestLogin_Unverified(t *testing.T) {
	t.Parallel()

	svc, store := newTestAuth(t)
	seedUser(t, store, seedOpts{verified: false})

	res, err := svc.Login(context.Background(), "a@x.com", "right")
	assert.Nil(t, res)
	requireAppError(t, err, 412, "Please verify your account first")
}

func TestLogin_BlockedOrDeleted(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status  string
		message string
	}{
		{status: models.StatusBlocked, message: "Your account is BLOCKED"},
		{status: models.StatusDeleted, message: "Your account is DELETED"},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			t.Parallel()

			svc, store := newTestAuth(t)
			seedUser(t, store, seedOpts{status: tt.status, verified: true})

			// Correct password must not matter.
			res, err := svc.Login(context.Background(), "a@x.com", "right")
			assert.Nil(t, res)
			requireAppError(t, err, 403, tt.message)
		})
	}
}

func TestLogin_WrongPassword(t *testing.T) {
	t.Parallel()

	svc, store := newTestAuth(t)
	seedUser(t, store, seedOpts{verified: true})

	res, err := svc.Login(context.Background(), "a@x.com", "wrong")
	assert.Nil(t, res)
	requireAppError(t, err, 400, "Password is incorrect")
}

func TestLogin_Success(t *testing.T) {
	t.Parallel()

	svc, store := newTestAuth(t)
	user := seedUser(t, store, seedOpts{verified: true})

	res, err := svc.Login(context.Background(), "a@x.com", "right")
	require.NoError(t, err)
	require.NotEmpty(t, res.AccessToken)
	require.NotEmpty(t, res.RefreshToken)

	claims, err := svc.Issuer.Parse(res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID.String(), claims.UserID)
	assert.Equal(t, models.RoleUser, claims.Role)
	assert.Equal(t, "a@x.com", claims.Email)

	// Scrubbed before crossing the trust boundary.
	assert.Empty(t, res.User.PasswordHash)
	assert.Equal(t, models.Authentication{}, res.User.Authentication)

	row, err := store.FindToken(context.Background(), res.RefreshToken, models.TokenKindRefresh)
	require.NoError(t, err)
	assert.Equal(t, user.ID, row.UserID)
	assert.False(t, row.Expired(time.Now()))
}

func TestLogin_MultipleRefreshTokensCoexist(t *testing.T) {
	t.Parallel()

	svc, store := newTestAuth(t)
	seedUser(t, store, seedOpts{verified: true})
	ctx := context.Background()

	first, err := svc.Login(ctx, "a@x.com", "right")
	require.NoError(t, err)
	second, err := svc.Login(ctx, "a@x.com", "right")
	require.NoError(t, err)

	_, err = store.FindToken(ctx, first.RefreshToken, models.TokenKindRefresh)
	require.NoError(t, err)
	_, err = store.FindToken(ctx, second.RefreshToken, models.TokenKindRefresh)
	require.NoError(t, err)
}

func TestRefresh_Idempotent(t *testing.T) {
	t.Parallel()

	svc, store := newTestAuth(t)
	ctx := context.Background()
	seedUser(t, store, seedOpts{verified: true})

	res, err := svc.Login(ctx, "a@x.com", "right")
	require.NoError(t, err)

	first, err := svc.Refresh(ctx, res.RefreshToken)
	require.NoError(t, err)
	second, err := svc.Refresh(ctx, res.RefreshToken)
	require.NoError(t, err)

	for _, token := range []string{first, second} {
		claims, err := svc.Issuer.Parse(token)
		require.NoError(t, err)
		assert.Equal(t, "a@x.com", claims.Email)
	}
}

func TestRefresh_InvalidToken(t *testing.T) {
	t.Parallel()

	svc, _ := newTestAuth(t)
	_, err := svc.Refresh(context.Background(), "not-a-valid-jwt")
	requireAppError(t, err, 401, "Invalid or expired refresh token")
}

func TestRefresh_SignedButUnknown(t *testing.T) {
	t.Parallel()

	svc, _ := newTestAuth(t)

	// Valid signature, but no persisted row behind it.
	stray, _, err := svc.Issuer.IssueRefresh(uuid.NewString(), models.RoleUser, "a@x.com")
	require.NoError(t, err)

	_, err = svc.Refresh(context.Background(), stray)
	requireAppError(t, err, 401, "Invalid or expired refresh token")
}

func TestForgetVerifyReset_RoundTrip(t *testing.T) {
	t.Parallel()

	svc, store := newTestAuth(t)
	user := seedUser(t, store, seedOpts{verified: true})
	ctx := context.Background()

	// An active session that the reset must revoke.
	session, err := svc.Login(ctx, "a@x.com", "right")
	require.NoError(t, err)

	require.NoError(t, svc.ForgetPassword(ctx, "a@x.com"))

	reloaded, err := store.FindUserByID(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, reloaded.Authentication.OneTimeCode, 6)
	require.NotNil(t, reloaded.Authentication.ExpireAt)
	assert.True(t, reloaded.Authentication.IsExistUser)
	assert.False(t, reloaded.Authentication.IsResetPassword)

	resetToken, err := svc.VerifyEmail(ctx, "a@x.com", reloaded.Authentication.OneTimeCode)
	require.NoError(t, err)
	require.NotEmpty(t, resetToken)

	reloaded, err = store.FindUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, reloaded.Authentication.OneTimeCode)
	assert.True(t, reloaded.Authentication.IsResetPassword)

	require.NoError(t, svc.ResetPassword(ctx, resetToken, "new-password", "new-password"))

	reloaded, err = store.FindUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, reloaded.Authentication.IsResetPassword)
	assert.True(t, svc.Hasher.Check(reloaded.PasswordHash, "new-password"))

	// Reset token is single-use and the old session is gone.
	err = svc.ResetPassword(ctx, resetToken, "another", "another")
	requireAppError(t, err, 401, "Unauthorized")
	_, err = svc.Refresh(ctx, session.RefreshToken)
	requireAppError(t, err, 401, "Invalid or expired refresh token")
}

func TestVerifyEmail_WrongOTP(t *testing.T) {
	t.Parallel()

	svc, store := newTestAuth(t)
	seedUser(t, store, seedOpts{verified: true})
	ctx := context.Background()

	require.NoError(t, svc.ForgetPassword(ctx, "a@x.com"))

	_, err := svc.VerifyEmail(ctx, "a@x.com", "000000x")
	requireAppError(t, err, 400, "Wrong OTP")
}

func TestVerifyEmail_MissingOTP(t *testing.T) {
	t.Parallel()

	svc, store := newTestAuth(t)
	seedUser(t, store, seedOpts{verified: true})

	_, err := svc.VerifyEmail(context.Background(), "a@x.com", "")
	requireAppError(t, err, 400, "OTP is required")
}

func TestVerifyEmail_NoOutstandingChallenge(t *testing.T) {
	t.Parallel()

	svc, store := newTestAuth(t)
	seedUser(t, store, seedOpts{verified: true})

	_, err := svc.VerifyEmail(context.Background(), "a@x.com", "123456")
	requireAppError(t, err, 400, "Wrong OTP")
}

func TestVerifyEmail_Expired(t *testing.T) {
	t.Parallel()

	svc, store := newTestAuth(t)
	user := seedUser(t, store, seedOpts{verified: true})
	ctx := context.Background()

	past := time.Now().Add(-time.Minute)
	require.NoError(t, store.UpdateAuthentication(ctx, user.ID, models.Authentication{
		OneTimeCode: "123456",
		ExpireAt:    &past,
	}))

	_, err := svc.VerifyEmail(ctx, "a@x.com", "123456")
	requireAppError(t, err, 400, "OTP expired")
}

func TestVerifyEmail_SecondExchangeMarksVerified(t *testing.T) {
	t.Parallel()

	svc, store := newTestAuth(t)
	user := seedUser(t, store, seedOpts{verified: false})
	ctx := context.Background()

	future := time.Now().Add(5 * time.Minute)
	require.NoError(t, store.UpdateAuthentication(ctx, user.ID, models.Authentication{
		OneTimeCode:     "654321",
		ExpireAt:        &future,
		IsResetPassword: true,
	}))

	resetToken, err := svc.VerifyEmail(ctx, "a@x.com", "654321")
	require.NoError(t, err)
	assert.Empty(t, resetToken)

	reloaded, err := store.FindUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, reloaded.Verified)
	assert.Empty(t, reloaded.Authentication.OneTimeCode)
	assert.False(t, reloaded.Authentication.IsResetPassword)
}

func TestResetPassword_UnknownToken(t *testing.T) {
	t.Parallel()

	svc, _ := newTestAuth(t)
	err := svc.ResetPassword(context.Background(), "no-such-token", "a", "a")
	requireAppError(t, err, 401, "Unauthorized")
}

func TestResetPassword_FlagNotSet(t *testing.T) {
	t.Parallel()

	svc, store := newTestAuth(t)
	user := seedUser(t, store, seedOpts{verified: true})
	ctx := context.Background()

	// Unexpired token row, but the owning user never opened the flow.
	require.NoError(t, store.CreateToken(ctx, &models.Token{
		Value:     "orphan-reset-token",
		Kind:      models.TokenKindPasswordReset,
		UserID:    user.ID,
		ExpiresAt: time.Now().Add(5 * time.Minute),
	}))

	err := svc.ResetPassword(ctx, "orphan-reset-token", "a", "a")
	requireAppError(t, err, 401, "No permission")
}

func TestResetPassword_ExpiredToken(t *testing.T) {
	t.Parallel()

	svc, store := newTestAuth(t)
	user := seedUser(t, store, seedOpts{verified: true})
	ctx := context.Background()

	require.NoError(t, store.UpdateAuthentication(ctx, user.ID, models.Authentication{
		IsResetPassword: true,
	}))
	require.NoError(t, store.CreateToken(ctx, &models.Token{
		Value:     "stale-reset-token",
		Kind:      models.TokenKindPasswordReset,
		UserID:    user.ID,
		ExpiresAt: time.Now().Add(-time.Minute),
	}))

	err := svc.ResetPassword(ctx, "stale-reset-token", "a", "a")
	requireAppError(t, err, 400, "Token expired")
}

func TestResetPassword_ConfirmationMismatch(t *testing.T) {
	t.Parallel()

	svc, store := newTestAuth(t)
	user := seedUser(t, store, seedOpts{verified: true})
	ctx := context.Background()

	require.NoError(t, store.UpdateAuthentication(ctx, user.ID, models.Authentication{
		IsResetPassword: true,
	}))
	require.NoError(t, store.CreateToken(ctx, &models.Token{
		Value:     "live-reset-token",
		Kind:      models.TokenKindPasswordReset,
		UserID:    user.ID,
		ExpiresAt: time.Now().Add(5 * time.Minute),
	}))

	err := svc.ResetPassword(ctx, "live-reset-token", "abc", "xyz")
	requireAppError(t, err, 400, "Passwords do not match")

	// Password hash untouched, flow still open.
	reloaded, err := store.FindUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, svc.Hasher.Check(reloaded.PasswordHash, "right"))
	assert.True(t, reloaded.Authentication.IsResetPassword)
}

func TestChangePassword_UnknownUser(t *testing.T) {
	t.Parallel()

	svc, _ := newTestAuth(t)
	claims := &tokens.Claims{UserID: uuid.NewString(), Role: models.RoleUser, Email: "a@x.com"}

	err := svc.ChangePassword(context.Background(), claims, "right", "new", "new")
	requireAppError(t, err, 404, "User doesn't exist")
}

func TestChangePassword_WrongCurrent(t *testing.T) {
	t.Parallel()

	svc, store := newTestAuth(t)
	user := seedUser(t, store, seedOpts{verified: true})
	claims := &tokens.Claims{UserID: user.ID.String(), Role: user.Role, Email: user.Email}

	err := svc.ChangePassword(context.Background(), claims, "wrong", "new", "new")
	requireAppError(t, err, 400, "Current password is incorrect")
}

func TestChangePassword_SameAsCurrent(t *testing.T) {
	t.Parallel()

	svc, store := newTestAuth(t)
	user := seedUser(t, store, seedOpts{verified: true})
	claims := &tokens.Claims{UserID: user.ID.String(), Role: user.Role, Email: user.Email}
	ctx := context.Background()

	err := svc.ChangePassword(ctx, claims, "right", "right", "right")
	requireAppError(t, err, 400, "New password must be different")

	reloaded, err := store.FindUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, svc.Hasher.Check(reloaded.PasswordHash, "right"))
}

func TestChangePassword_ConfirmationMismatch(t *testing.T) {
	t.Parallel()

	svc, store := newTestAuth(t)
	user := seedUser(t, store, seedOpts{verified: true})
	claims := &tokens.Claims{UserID: user.ID.String(), Role: user.Role, Email: user.Email}

	err := svc.ChangePassword(context.Background(), claims, "right", "new", "other")
	requireAppError(t, err, 400, "Passwords do not match")
}

func TestChangePassword_SuccessRevokesSessions(t *testing.T) {
	t.Parallel()

	svc, store := newTestAuth(t)
	user := seedUser(t, store, seedOpts{verified: true})
	ctx := context.Background()

	session, err := svc.Login(ctx, "a@x.com", "right")
	require.NoError(t, err)

	claims := &tokens.Claims{UserID: user.ID.String(), Role: user.Role, Email: user.Email}
	require.NoError(t, svc.ChangePassword(ctx, claims, "right", "new-secret", "new-secret"))

	reloaded, err := store.FindUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, svc.Hasher.Check(reloaded.PasswordHash, "new-secret"))

	_, err = svc.Refresh(ctx, session.RefreshToken)
	requireAppError(t, err, 401, "Invalid or expired refresh token")
}
