package httpapi

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"icepos/backend/internal/domain"
	"icepos/backend/internal/store"
	"icepos/backend/internal/store/memory"
)

func newTestAuth(t *testing.T) (*AuthManager, *memory.Store) {
	t.Helper()
	repo := memory.New()
	auth := NewAuthManager("0123456789abcdef0123456789abcdef", time.Hour, repo)
	return auth, repo
}

func seedUser(t *testing.T, repo *memory.Store, username, password string, role domain.Role, active bool) {
	t.Helper()
	hash, err := hashPassword(password)
	require.NoError(t, err)
	require.NoError(t, repo.CreateUser(context.Background(), domain.UserAccount{
		Username:  username,
		Password:  hash,
		Role:      role,
		Active:    active,
		CreatedAt: time.Now().UTC(),
	}))
}

func TestLoginAndParseTokenRoundtrip(t *testing.T) {
	auth, repo := newTestAuth(t)
	seedUser(t, repo, "asha", "secret123", domain.RoleManager, true)

	resp, err := auth.Login(context.Background(), domain.LoginRequest{Username: "Asha", Password: "secret123"})
	require.NoError(t, err)
	require.Equal(t, "MANAGER", resp.Role)
	require.NotEmpty(t, resp.AccessToken)

	actor, err := auth.ParseToken(resp.AccessToken)
	require.NoError(t, err)
	require.Equal(t, "asha", actor.Username)
	require.Equal(t, domain.RoleManager, actor.Role)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	auth, repo := newTestAuth(t)
	seedUser(t, repo, "asha", "secret123", domain.RoleStaff, true)

	var authErr *AuthorizationError

	_, err := auth.Login(context.Background(), domain.LoginRequest{Username: "asha", Password: "wrong"})
	require.ErrorAs(t, err, &authErr)
	require.False(t, authErr.Denied)

	_, err = auth.Login(context.Background(), domain.LoginRequest{Username: "nobody", Password: "secret123"})
	require.ErrorAs(t, err, &authErr)
	require.False(t, authErr.Denied)
}

func TestLoginRejectsInactiveAccount(t *testing.T) {
	auth, repo := newTestAuth(t)
	seedUser(t, repo, "gone", "secret123", domain.RoleStaff, false)

	var authErr *AuthorizationError
	_, err := auth.Login(context.Background(), domain.LoginRequest{Username: "gone", Password: "secret123"})
	require.ErrorAs(t, err, &authErr)
	require.True(t, authErr.Denied, "inactive account is a denial, not a bad credential")
}

func TestParseTokenRejectsGarbageAndWrongKey(t *testing.T) {
	auth, _ := newTestAuth(t)

	_, err := auth.ParseToken("not-a-token")
	require.Error(t, err)

	other := NewAuthManager("ffffffffffffffffffffffffffffffff", time.Hour, memory.New())
	token, err := other.sign("asha", domain.RoleStaff, time.Now().Add(time.Hour))
	require.NoError(t, err)
	_, err = auth.ParseToken(token)
	require.Error(t, err)
}

func TestCreateUserValidation(t *testing.T) {
	auth, _ := newTestAuth(t)
	ctx := context.Background()

	_, err := auth.CreateUser(ctx, domain.UserCreateRequest{Username: "ab", Password: "secret123", Role: "STAFF"})
	require.ErrorIs(t, err, store.ErrValidation)

	_, err = auth.CreateUser(ctx, domain.UserCreateRequest{Username: "asha", Password: "tiny", Role: "STAFF"})
	require.ErrorIs(t, err, store.ErrValidation)

	_, err = auth.CreateUser(ctx, domain.UserCreateRequest{Username: "asha", Password: "secret123", Role: "OVERLORD"})
	require.ErrorIs(t, err, store.ErrValidation)

	user, err := auth.CreateUser(ctx, domain.UserCreateRequest{Username: "Asha", Password: "secret123", Role: "staff"})
	require.NoError(t, err)
	require.Equal(t, "asha", user.Username)
	require.Equal(t, domain.RoleStaff, user.Role)
	require.Empty(t, user.Password, "hash must not leak out")

	_, err = auth.CreateUser(ctx, domain.UserCreateRequest{Username: "asha", Password: "secret123", Role: "staff"})
	require.ErrorIs(t, err, store.ErrDuplicate)
}

func TestResetPasswordTakesEffect(t *testing.T) {
	auth, repo := newTestAuth(t)
	seedUser(t, repo, "asha", "oldpass99", domain.RoleStaff, true)

	require.NoError(t, auth.ResetPassword(context.Background(), domain.ResetPasswordRequest{
		Username: "asha", Password: "newpass99",
	}))

	_, err := auth.Login(context.Background(), domain.LoginRequest{Username: "asha", Password: "oldpass99"})
	require.Error(t, err)
	_, err = auth.Login(context.Background(), domain.LoginRequest{Username: "asha", Password: "newpass99"})
	require.NoError(t, err)
}

func TestRoleLadder(t *testing.T) {
	require.True(t, domain.RoleStaff.MeetsMinimum(domain.RoleStaff))
	require.True(t, domain.RoleManager.MeetsMinimum(domain.RoleStaff))
	require.True(t, domain.RoleSuperadmin.MeetsMinimum(domain.RoleManager))
	require.False(t, domain.RoleStaff.MeetsMinimum(domain.RoleManager))
	require.False(t, domain.RoleUnknown.MeetsMinimum(domain.RoleStaff))
	require.False(t, domain.RoleSuperadmin.MeetsMinimum(domain.RoleUnknown))
}
