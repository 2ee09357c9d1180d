package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joshua-takyi/tourbook/internal/cache"
	"github.com/joshua-takyi/tourbook/internal/helpers"
	"github.com/joshua-takyi/tourbook/internal/models"
)

type SignupRequest struct {
	Name            string `json:"name" validate:"required,max=80"`
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required,min=8"`
	PasswordConfirm string `json:"passwordConfirm" validate:"required,eqfield=Password"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type PasswordUpdate struct {
	CurrentPassword string `json:"passwordCurrent" validate:"required"`
	Password        string `json:"password" validate:"required,min=8"`
	PasswordConfirm string `json:"passwordConfirm" validate:"required,eqfield=Password"`
}

type AuthResult struct {
	User   *models.User       `json:"user"`
	Tokens *helpers.TokenPair `json:"tokens"`
}

type AuthService struct {
	users     models.UserRepo
	roles     models.RoleRepo
	tokens    *helpers.TokenManager
	blacklist cache.TokenBlacklist
	logger    *slog.Logger
	now       func() time.Time
}

func NewAuthService(users models.UserRepo, roles models.RoleRepo, tokens *helpers.TokenManager, blacklist cache.TokenBlacklist, logger *slog.Logger) *AuthService {
	if blacklist == nil {
		blacklist = cache.NewInMemoryTokenBlacklist()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthService{
		users:     users,
		roles:     roles,
		tokens:    tokens,
		blacklist: blacklist,
		logger:    logger,
		now:       time.Now,
	}
}

func (as *AuthService) Signup(ctx context.Context, req SignupRequest) (*AuthResult, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := models.Validate.Struct(req); err != nil {
		return nil, validationError(err)
	}
	if !helpers.IsPasswordStrong(req.Password) {
		return nil, fmt.Errorf("password is not strong enough: %w", models.ErrBadRequest)
	}
	hash, err := helpers.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}
	user, err := as.users.CreateUser(ctx, &models.User{
		Name:     strings.TrimSpace(req.Name),
		Email:    req.Email,
		Password: hash,
		Role:     models.RoleUser,
	})
	if err != nil {
		if errors.Is(err, models.ErrDuplicate) {
			return nil, fmt.Errorf("email already registered: %w", models.ErrConflict)
		}
		return nil, err
	}
	return as.issue(user)
}

// Login checks credentials. Repeated failures lock the account for
// models.LoginLockTime.
func (as *AuthService) Login(ctx context.Context, req LoginRequest) (*AuthResult, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := models.Validate.Struct(req); err != nil {
		return nil, validationError(err)
	}
	user, err := as.users.GetUserByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, fmt.Errorf("incorrect email or password: %w", models.ErrUnauthorized)
		}
		return nil, err
	}
	now := as.now()
	if user.IsLocked(now) {
		return nil, fmt.Errorf("account locked until %s: %w", user.LockUntil.Format(time.RFC3339), models.ErrForbidden)
	}
	if !user.Active {
		return nil, fmt.Errorf("account is deactivated: %w", models.ErrUnauthorized)
	}
	if !helpers.CheckPassword(user.Password, req.Password) {
		updated, err := as.users.RecordFailedLogin(ctx, user.ID, now)
		if err != nil {
			return nil, err
		}
		if updated.IsLocked(now) {
			as.logger.Warn("Account locked after failed logins", "user_id", user.ID.Hex())
			return nil, fmt.Errorf("too many failed attempts, account locked: %w", models.ErrForbidden)
		}
		return nil, fmt.Errorf("incorrect email or password: %w", models.ErrUnauthorized)
	}
	if user.FailedAttempts > 0 || user.LockUntil != nil {
		if err := as.users.ResetLoginAttempts(ctx, user.ID); err != nil {
			return nil, err
		}
	}
	return as.issue(user)
}

// Refresh rotates a refresh token. The old token is claimed on the
// blacklist in one step, so concurrent refreshes with it yield one new pair.
func (as *AuthService) Refresh(ctx context.Context, refreshToken string) (*AuthResult, error) {
	claims, err := as.tokens.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, models.ErrUnauthorized)
	}
	claimed, err := as.blacklist.Claim(ctx, claims.ID, claims.Remaining(as.now()))
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, fmt.Errorf("token revoked: %w", models.ErrUnauthorized)
	}
	user, err := as.activeUser(ctx, claims)
	if err != nil {
		return nil, err
	}
	return as.issue(user)
}

// Logout revokes both tokens. Either may be missing or already expired.
func (as *AuthService) Logout(ctx context.Context, accessToken, refreshToken string) error {
	if accessToken != "" {
		if claims, err := as.tokens.ValidateAccessToken(accessToken); err == nil {
			if err := as.blacklist.Add(ctx, claims.ID, claims.Remaining(as.now())); err != nil {
				return err
			}
		}
	}
	if refreshToken != "" {
		if claims, err := as.tokens.ValidateRefreshToken(refreshToken); err == nil {
			if err := as.blacklist.Add(ctx, claims.ID, claims.Remaining(as.now())); err != nil {
				return err
			}
		}
	}
	return nil
}

// Authenticate resolves an access token to the caller and their role.
func (as *AuthService) Authenticate(ctx context.Context, accessToken string) (*helpers.EnhancedClaims, error) {
	claims, err := as.tokens.ValidateAccessToken(accessToken)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, models.ErrUnauthorized)
	}
	revoked, err := as.blacklist.IsBlacklisted(ctx, claims.ID)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, fmt.Errorf("token revoked: %w", models.ErrUnauthorized)
	}
	user, err := as.activeUser(ctx, claims)
	if err != nil {
		return nil, err
	}
	role, err := as.roles.GetRoleByName(ctx, user.Role)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}
	return &helpers.EnhancedClaims{
		CustomClaims: claims,
		UserID:       user.ID.Hex(),
		Email:        user.Email,
		Name:         user.Name,
		RoleName:     user.Role,
		Role:         role,
	}, nil
}

func (as *AuthService) activeUser(ctx context.Context, claims *helpers.CustomClaims) (*models.User, error) {
	id, err := ParseID("user", claims.UserID)
	if err != nil {
		return nil, fmt.Errorf("malformed subject: %w", models.ErrUnauthorized)
	}
	user, err := as.users.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, fmt.Errorf("user no longer exists: %w", models.ErrUnauthorized)
		}
		return nil, err
	}
	if !user.Active {
		return nil, fmt.Errorf("account is deactivated: %w", models.ErrUnauthorized)
	}
	if claims.IssuedAt != nil && user.ChangedPasswordAfter(claims.IssuedAt.Time) {
		return nil, fmt.Errorf("password changed, please log in again: %w", models.ErrUnauthorized)
	}
	return user, nil
}

// UpdatePassword changes the caller's password and returns a fresh token
// pair; tokens issued before the change stop working.
func (as *AuthService) UpdatePassword(ctx context.Context, userID string, req PasswordUpdate) (*AuthResult, error) {
	if err := models.Validate.Struct(req); err != nil {
		return nil, validationError(err)
	}
	if !helpers.IsPasswordStrong(req.Password) {
		return nil, fmt.Errorf("password is not strong enough: %w", models.ErrBadRequest)
	}
	id, err := ParseID("user", userID)
	if err != nil {
		return nil, err
	}
	user, err := as.users.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !helpers.CheckPassword(user.Password, req.CurrentPassword) {
		return nil, fmt.Errorf("current password is wrong: %w", models.ErrUnauthorized)
	}
	hash, err := helpers.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}
	// Back-dated so a token minted in the same second still validates.
	changedAt := as.now().Add(-time.Second).UTC()
	user, err = as.users.UpdateUser(ctx, id, map[string]interface{}{
		"password":          hash,
		"passwordChangedAt": changedAt,
	})
	if err != nil {
		return nil, err
	}
	return as.issue(user)
}

func (as *AuthService) issue(user *models.User) (*AuthResult, error) {
	pair, err := as.tokens.GenerateTokenPair(user.ID.Hex(), user.Role)
	if err != nil {
		return nil, err
	}
	return &AuthResult{User: user, Tokens: pair}, nil
}
