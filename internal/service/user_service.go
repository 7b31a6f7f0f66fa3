package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"restaurant-backend/internal/model"
	"restaurant-backend/internal/permission"
	"restaurant-backend/internal/repository"
	"restaurant-backend/pkg/apperror"
	"restaurant-backend/pkg/pagination"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// DTOs for Request validation
type CreateUserRequest struct {
	Email        string     `json:"email" validate:"required,email"`
	FullName     string     `json:"full_name" validate:"max=255"`
	Password     string     `json:"password" validate:"required,min=6"`
	IsSuperuser  bool       `json:"is_superuser"`
	CompanyID    *uuid.UUID `json:"company_id"`
	RestaurantID *uuid.UUID `json:"restaurant_id"`
}

type UpdateUserRequest struct {
	Email    *string `json:"email" validate:"omitempty,email"`
	FullName *string `json:"full_name" validate:"omitempty,max=255"`
	Password *string `json:"password" validate:"omitempty,min=6"`
	IsActive *bool   `json:"is_active"`
}

type LoginUserRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type TokenResponse struct {
	Token     string        `json:"token"`
	ExpiresAt time.Time     `json:"expires_at"`
	User      *UserResponse `json:"user"`
}

// UserResponse is a User without the password hash.
type UserResponse struct {
	ID           uuid.UUID  `json:"id"`
	Email        string     `json:"email"`
	FullName     string     `json:"full_name"`
	IsActive     bool       `json:"is_active"`
	IsSuperuser  bool       `json:"is_superuser"`
	CompanyID    *uuid.UUID `json:"company_id"`
	RestaurantID *uuid.UUID `json:"restaurant_id"`
	CreatedAt    string     `json:"created_at"`
	UpdatedAt    string     `json:"updated_at"`
}

type UserQuery struct {
	CompanyID    *uuid.UUID
	RestaurantID *uuid.UUID
	Search       string
}

// TokenManager issues and verifies HS256 access tokens carrying the user id in "sub".
type TokenManager struct {
	secret []byte
	ttl    time.Duration
}

func NewTokenManager(secret []byte, ttl time.Duration) *TokenManager {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TokenManager{secret: secret, ttl: ttl}
}

func (m *TokenManager) Issue(userID uuid.UUID) (string, time.Time, error) {
	expiresAt := time.Now().Add(m.ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   userID.String(),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	})
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Parse validates the signature and expiry and returns the subject.
func (m *TokenManager) Parse(raw string) (uuid.UUID, error) {
	token, err := jwt.ParseWithClaims(raw, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil || !token.Valid {
		return uuid.Nil, errors.New("invalid or expired token")
	}
	subject, err := token.Claims.GetSubject()
	if err != nil {
		return uuid.Nil, errors.New("token has no subject")
	}
	id, err := uuid.Parse(subject)
	if err != nil {
		return uuid.Nil, errors.New("token subject is not a user id")
	}
	return id, nil
}

// UserService defines the interface for business logic related to User
type UserService interface {
	Login(ctx context.Context, req LoginUserRequest) (*TokenResponse, error)
	// Authenticate resolves a bearer token into an active user.
	Authenticate(ctx context.Context, token string) (*model.User, error)
	Me(ctx context.Context, actor Actor) (*UserResponse, error)

	CreateUser(ctx context.Context, actor Actor, req CreateUserRequest) (*UserResponse, error)
	GetUser(ctx context.Context, actor Actor, id uuid.UUID) (*UserResponse, error)
	ListUsers(ctx context.Context, actor Actor, q UserQuery, p pagination.Params) (pagination.Page[UserResponse], error)
	UpdateUser(ctx context.Context, actor Actor, id uuid.UUID, req UpdateUserRequest) (*UserResponse, error)
	DeleteUser(ctx context.Context, actor Actor, id uuid.UUID) error

	EnsureSuperuser(ctx context.Context, email, password string) error
}

type userService struct {
	users       repository.UserRepository
	companies   repository.CompanyRepository
	restaurants repository.RestaurantRepository
	tokens      *TokenManager
	guard       *Guard
	logger      *zap.Logger
}

// NewUserService returns a new instance of UserService
func NewUserService(
	users repository.UserRepository,
	companies repository.CompanyRepository,
	restaurants repository.RestaurantRepository,
	tokens *TokenManager,
	guard *Guard,
	logger *zap.Logger,
) UserService {
	return &userService{
		users:       users,
		companies:   companies,
		restaurants: restaurants,
		tokens:      tokens,
		guard:       guard,
		logger:      loggerOrNop(logger),
	}
}

// Helper: parse model to standard json API response
func mapToResponse(user *model.User) *UserResponse {
	return &UserResponse{
		ID:           user.ID,
		Email:        user.Email,
		FullName:     user.FullName,
		IsActive:     user.IsActive,
		IsSuperuser:  user.IsSuperuser,
		CompanyID:    user.CompanyID,
		RestaurantID: user.RestaurantID,
		CreatedAt:    user.CreatedAt.Format(time.RFC3339),
		UpdatedAt:    user.UpdatedAt.Format(time.RFC3339),
	}
}

func (s *userService) Login(ctx context.Context, req LoginUserRequest) (*TokenResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	user, err := s.users.GetByEmail(ctx, normalizeEmail(req.Email))
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, apperror.Unauthorized("invalid email or password")
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return nil, apperror.Unauthorized("invalid email or password")
	}
	if !user.IsActive {
		return nil, apperror.Unauthorized("account is disabled")
	}

	token, expiresAt, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, err
	}
	s.logger.Info("user logged in", zap.String("user", user.ID.String()))
	return &TokenResponse{Token: token, ExpiresAt: expiresAt, User: mapToResponse(user)}, nil
}

func (s *userService) Authenticate(ctx context.Context, token string) (*model.User, error) {
	id, err := s.tokens.Parse(token)
	if err != nil {
		return nil, apperror.Unauthorized("%s", err.Error())
	}
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, apperror.Unauthorized("user no longer exists")
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if !user.IsActive {
		return nil, apperror.Unauthorized("account is disabled")
	}
	return user, nil
}

func (s *userService) Me(ctx context.Context, actor Actor) (*UserResponse, error) {
	user, err := s.users.GetByID(ctx, actor.ID)
	if err != nil {
		return nil, lookupErr(err, "user", actor.ID)
	}
	return mapToResponse(user), nil
}

// CreateUser places the new user inside the caller's tenant. Only
// superusers create other superusers or tenantless users.
func (s *userService) CreateUser(ctx context.Context, actor Actor, req CreateUserRequest) (*UserResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	if req.IsSuperuser && !actor.IsSuperuser {
		return nil, apperror.Forbidden("only superusers can create superusers")
	}

	companyID, restaurantID := req.CompanyID, req.RestaurantID
	if restaurantID != nil {
		restaurant, err := s.restaurants.FindByID(ctx, *restaurantID)
		if err != nil {
			return nil, lookupErr(err, "restaurant", *restaurantID)
		}
		if companyID != nil && *companyID != restaurant.CompanyID {
			return nil, apperror.Invalid("restaurant %s does not belong to company %s", restaurant.ID, *companyID)
		}
		companyID = &restaurant.CompanyID
	} else if companyID != nil {
		if _, err := s.companies.FindByID(ctx, *companyID); err != nil {
			return nil, lookupErr(err, "company", *companyID)
		}
	}

	target := &model.User{CompanyID: companyID, RestaurantID: restaurantID}
	if err := authorizeUser(ctx, s.guard, actor, target, permission.UserWrite); err != nil {
		return nil, err
	}

	email := normalizeEmail(req.Email)
	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, apperror.Conflict("email %s already exists", email)
	} else if !repository.IsNotFound(err) {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}

	// Hash password automatically
	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &model.User{
		Email:        email,
		FullName:     req.FullName,
		Password:     string(hashed),
		IsActive:     true,
		IsSuperuser:  req.IsSuperuser,
		CompanyID:    companyID,
		RestaurantID: restaurantID,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if repository.IsDuplicate(err) {
			return nil, apperror.Conflict("email %s already exists", email)
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return mapToResponse(user), nil
}

func (s *userService) GetUser(ctx context.Context, actor Actor, id uuid.UUID) (*UserResponse, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, lookupErr(err, "user", id)
	}
	if actor.ID != user.ID {
		if err := authorizeUser(ctx, s.guard, actor, user, permission.UserRead); err != nil {
			return nil, err
		}
	}
	return mapToResponse(user), nil
}

func (s *userService) ListUsers(ctx context.Context, actor Actor, q UserQuery, p pagination.Params) (pagination.Page[UserResponse], error) {
	if err := s.guard.Require(ctx, actor, permission.UserRead); err != nil {
		return pagination.Page[UserResponse]{}, err
	}
	restaurantID, companyID, err := s.guard.TenantFilter(actor, q.RestaurantID, q.CompanyID)
	if err != nil {
		return pagination.Page[UserResponse]{}, err
	}

	users, total, err := s.users.List(ctx, repository.UserFilter{
		CompanyID:    companyID,
		RestaurantID: restaurantID,
		Search:       q.Search,
	}, p.Offset, p.Limit)
	if err != nil {
		return pagination.Page[UserResponse]{}, fmt.Errorf("failed to fetch users: %w", err)
	}

	responses := make([]UserResponse, 0, len(users))
	for i := range users {
		responses = append(responses, *mapToResponse(&users[i]))
	}
	return pagination.NewPage(responses, total, p), nil
}

func (s *userService) UpdateUser(ctx context.Context, actor Actor, id uuid.UUID, req UpdateUserRequest) (*UserResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, lookupErr(err, "user", id)
	}
	if err := authorizeUser(ctx, s.guard, actor, user, permission.UserWrite); err != nil {
		return nil, err
	}
	if user.IsSuperuser && !actor.IsSuperuser {
		return nil, apperror.Forbidden("only superusers can modify superusers")
	}

	if req.Email != nil {
		email := normalizeEmail(*req.Email)
		if email != user.Email {
			if _, err := s.users.GetByEmail(ctx, email); err == nil {
				return nil, apperror.Conflict("email %s already exists", email)
			} else if !repository.IsNotFound(err) {
				return nil, fmt.Errorf("failed to check email: %w", err)
			}
			user.Email = email
		}
	}
	if req.FullName != nil {
		user.FullName = *req.FullName
	}
	if req.Password != nil {
		hashed, err := bcrypt.GenerateFromPassword([]byte(*req.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("failed to hash password: %w", err)
		}
		user.Password = string(hashed)
	}
	if req.IsActive != nil {
		if user.ID == actor.ID && !*req.IsActive {
			return nil, apperror.InvalidState("you cannot deactivate your own account")
		}
		user.IsActive = *req.IsActive
	}

	if err := s.users.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	return mapToResponse(user), nil
}

func (s *userService) DeleteUser(ctx context.Context, actor Actor, id uuid.UUID) error {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return lookupErr(err, "user", id)
	}
	if err := authorizeUser(ctx, s.guard, actor, user, permission.UserDelete); err != nil {
		return err
	}
	if user.ID == actor.ID {
		return apperror.InvalidState("you cannot delete your own account")
	}
	if user.IsSuperuser && !actor.IsSuperuser {
		return apperror.Forbidden("only superusers can delete superusers")
	}
	if err := s.users.Delete(ctx, user.ID); err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return nil
}

// EnsureSuperuser creates the bootstrap superuser when no account uses email.
func (s *userService) EnsureSuperuser(ctx context.Context, email, password string) error {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil
	}
	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil
	} else if !repository.IsNotFound(err) {
		return fmt.Errorf("failed to check superuser: %w", err)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	user := &model.User{
		Email:       email,
		FullName:    "Administrator",
		Password:    string(hashed),
		IsActive:    true,
		IsSuperuser: true,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return fmt.Errorf("failed to create superuser: %w", err)
	}
	s.logger.Info("superuser created", zap.String("email", email))
	return nil
}

// authorizeUser applies the guard to a user row. A user without a tenant
// is only reachable by superusers.
func authorizeUser(ctx context.Context, guard *Guard, actor Actor, user *model.User, required ...permission.Name) error {
	scope := Scope{CompanyID: user.CompanyID, RestaurantID: user.RestaurantID}
	if scope.Global() && !actor.IsSuperuser {
		return apperror.Unauthorized("user is outside of your scope")
	}
	return guard.Authorize(ctx, actor, scope, required...)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
