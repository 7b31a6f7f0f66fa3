package service

import (
	"errors"
	"testing"
	"time"

	"restaurant-backend/internal/permission"
	"restaurant-backend/pkg/apperror"
	"restaurant-backend/pkg/pagination"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenManager(t *testing.T) {
	tokens := NewTokenManager([]byte("secret"), time.Hour)
	id := uuid.New()

	raw, expiresAt, err := tokens.Issue(id)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, time.Minute)

	got, err := tokens.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = NewTokenManager([]byte("other"), time.Hour).Parse(raw)
	assert.Error(t, err)
	_, err = tokens.Parse("not-a-token")
	assert.Error(t, err)
}

func TestLoginAndAuthenticate(t *testing.T) {
	f := newFixture(t)
	created, err := f.userSvc.CreateUser(f.ctx, f.root, CreateUserRequest{
		Email:        "Chef@Example.com",
		FullName:     "Head Chef",
		Password:     "s3cret!",
		RestaurantID: &f.restaurant.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, "chef@example.com", created.Email)
	require.NotNil(t, created.CompanyID)
	assert.Equal(t, f.company.ID, *created.CompanyID)

	_, err = f.userSvc.Login(f.ctx, LoginUserRequest{Email: "chef@example.com", Password: "wrong"})
	assert.True(t, errors.Is(err, apperror.ErrUnauthorized))
	_, err = f.userSvc.Login(f.ctx, LoginUserRequest{Email: "nobody@example.com", Password: "s3cret!"})
	assert.True(t, errors.Is(err, apperror.ErrUnauthorized))

	resp, err := f.userSvc.Login(f.ctx, LoginUserRequest{Email: "CHEF@example.com", Password: "s3cret!"})
	require.NoError(t, err)
	assert.Equal(t, created.ID, resp.User.ID)

	user, err := f.userSvc.Authenticate(f.ctx, resp.Token)
	require.NoError(t, err)
	assert.Equal(t, created.ID, user.ID)

	inactive := false
	_, err = f.userSvc.UpdateUser(f.ctx, f.root, created.ID, UpdateUserRequest{IsActive: &inactive})
	require.NoError(t, err)
	_, err = f.userSvc.Authenticate(f.ctx, resp.Token)
	assert.True(t, errors.Is(err, apperror.ErrUnauthorized))
	_, err = f.userSvc.Login(f.ctx, LoginUserRequest{Email: "chef@example.com", Password: "s3cret!"})
	assert.True(t, errors.Is(err, apperror.ErrUnauthorized))
}

func TestCreateUserRules(t *testing.T) {
	f := newFixture(t)
	manager := f.staff(f.restaurant, permission.UserWrite)

	_, err := f.userSvc.CreateUser(f.ctx, manager, CreateUserRequest{Email: "boss@example.com", Password: "secret1", IsSuperuser: true})
	assert.True(t, errors.Is(err, apperror.ErrForbidden))

	_, err = f.userSvc.CreateUser(f.ctx, manager, CreateUserRequest{Email: "loose@example.com", Password: "secret1"})
	assert.True(t, errors.Is(err, apperror.ErrUnauthorized))

	other := f.newRestaurant(f.company.ID, "Marina")
	_, err = f.userSvc.CreateUser(f.ctx, manager, CreateUserRequest{Email: "spy@example.com", Password: "secret1", RestaurantID: &other.ID})
	assert.True(t, errors.Is(err, apperror.ErrUnauthorized))

	rival := uuid.New()
	_, err = f.userSvc.CreateUser(f.ctx, f.root, CreateUserRequest{Email: "x@example.com", Password: "secret1", CompanyID: &rival, RestaurantID: &f.restaurant.ID})
	assert.True(t, errors.Is(err, apperror.ErrInvalid))

	_, err = f.userSvc.CreateUser(f.ctx, manager, CreateUserRequest{Email: "waiter@example.com", Password: "secret1", RestaurantID: &f.restaurant.ID})
	require.NoError(t, err)
	_, err = f.userSvc.CreateUser(f.ctx, manager, CreateUserRequest{Email: "WAITER@example.com", Password: "secret1", RestaurantID: &f.restaurant.ID})
	assert.True(t, errors.Is(err, apperror.ErrConflict))

	_, err = f.userSvc.CreateUser(f.ctx, manager, CreateUserRequest{Email: "short@example.com", Password: "123", RestaurantID: &f.restaurant.ID})
	assert.True(t, errors.Is(err, apperror.ErrInvalid))
}

func TestUserSelfProtection(t *testing.T) {
	f := newFixture(t)
	admin := f.staff(f.restaurant, permission.UserWrite, permission.UserDelete, permission.UserRead)

	err := f.userSvc.DeleteUser(f.ctx, admin, admin.ID)
	assert.True(t, errors.Is(err, apperror.ErrInvalidState))

	off := false
	_, err = f.userSvc.UpdateUser(f.ctx, admin, admin.ID, UpdateUserRequest{IsActive: &off})
	assert.True(t, errors.Is(err, apperror.ErrInvalidState))

	_, err = f.userSvc.UpdateUser(f.ctx, admin, f.root.ID, UpdateUserRequest{IsActive: &off})
	assert.True(t, errors.Is(err, apperror.ErrUnauthorized))

	me, err := f.userSvc.Me(f.ctx, admin)
	require.NoError(t, err)
	assert.Equal(t, admin.ID, me.ID)
}

func TestListUsersIsTenantScoped(t *testing.T) {
	f := newFixture(t)
	reader := f.staff(f.restaurant, permission.UserRead)
	other := f.newRestaurant(f.company.ID, "Beach")
	f.staff(other)

	page, err := f.userSvc.ListUsers(f.ctx, reader, UserQuery{}, pagination.New(1, 50))
	require.NoError(t, err)
	for _, u := range page.Items {
		require.NotNil(t, u.RestaurantID)
		assert.Equal(t, f.restaurant.ID, *u.RestaurantID)
	}
	assert.Equal(t, int64(1), page.Total)

	all, err := f.userSvc.ListUsers(f.ctx, f.root, UserQuery{}, pagination.New(1, 50))
	require.NoError(t, err)
	assert.Equal(t, int64(4), all.Total)
}

func TestEnsureSuperuser(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.userSvc.EnsureSuperuser(f.ctx, "Admin@Example.com", "changeme"))
	require.NoError(t, f.userSvc.EnsureSuperuser(f.ctx, "admin@example.com", "ignored"))

	resp, err := f.userSvc.Login(f.ctx, LoginUserRequest{Email: "admin@example.com", Password: "changeme"})
	require.NoError(t, err)
	assert.True(t, resp.User.IsSuperuser)

	require.NoError(t, f.userSvc.EnsureSuperuser(f.ctx, "", ""))
}
