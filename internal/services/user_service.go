package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joshua-takyi/tourbook/internal/helpers"
	"github.com/joshua-takyi/tourbook/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ImageUploader stores images given as URLs or data URIs and returns their
// public URLs in the same order.
type ImageUploader func(ctx context.Context, images []string, folder string) ([]string, error)

const uploadTimeout = 30 * time.Second

type UserService struct {
	users  models.UserRepo
	roles  models.RoleRepo
	upload ImageUploader
	now    func() time.Time
}

func NewUserService(users models.UserRepo, roles models.RoleRepo, upload ImageUploader) *UserService {
	return &UserService{
		users:  users,
		roles:  roles,
		upload: upload,
		now:    time.Now,
	}
}

func (us *UserService) GetUser(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	return us.users.GetUserByID(ctx, id)
}

func (us *UserService) ListUsers(ctx context.Context, page Page) ([]*models.User, int64, error) {
	page = page.Normalize()
	return us.users.ListUsers(ctx, page.Offset(), page.Limit)
}

// UpdateMe lets a user change their own profile. Password and role go
// through their dedicated routes.
func (us *UserService) UpdateMe(ctx context.Context, id primitive.ObjectID, body map[string]interface{}) (*models.User, error) {
	if _, ok := body["password"]; ok {
		return nil, fmt.Errorf("this route is not for password updates, use /users/update-password: %w", models.ErrBadRequest)
	}
	updates := pick(body, "name", "email")
	if err := us.checkProfile(updates); err != nil {
		return nil, err
	}
	if len(updates) == 0 {
		return nil, fmt.Errorf("no updatable fields supplied: %w", models.ErrBadRequest)
	}
	return us.update(ctx, id, updates)
}

// UpdateUser is the admin edit; it may also change the role and the active
// flag.
func (us *UserService) UpdateUser(ctx context.Context, id primitive.ObjectID, body map[string]interface{}) (*models.User, error) {
	updates := pick(body, "name", "email", "role", "active")
	if err := us.checkProfile(updates); err != nil {
		return nil, err
	}
	if raw, ok := updates["role"]; ok {
		name, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("role must be a string: %w", models.ErrBadRequest)
		}
		if _, err := us.roles.GetRoleByName(ctx, name); err != nil {
			if errors.Is(err, models.ErrNotFound) {
				return nil, fmt.Errorf("role %q does not exist: %w", name, models.ErrBadRequest)
			}
			return nil, err
		}
	}
	if raw, ok := updates["active"]; ok {
		if _, ok := raw.(bool); !ok {
			return nil, fmt.Errorf("active must be a boolean: %w", models.ErrBadRequest)
		}
	}
	if len(updates) == 0 {
		return nil, fmt.Errorf("no updatable fields supplied: %w", models.ErrBadRequest)
	}
	return us.update(ctx, id, updates)
}

func (us *UserService) checkProfile(updates map[string]interface{}) error {
	if raw, ok := updates["name"]; ok {
		name, ok := raw.(string)
		if !ok || models.Validate.Var(strings.TrimSpace(name), "required,max=80") != nil {
			return fmt.Errorf("invalid name: %w", models.ErrBadRequest)
		}
		updates["name"] = strings.TrimSpace(name)
	}
	if raw, ok := updates["email"]; ok {
		email, ok := raw.(string)
		email = strings.ToLower(strings.TrimSpace(email))
		if !ok || models.Validate.Var(email, "required,email") != nil {
			return fmt.Errorf("invalid email: %w", models.ErrBadRequest)
		}
		updates["email"] = email
	}
	return nil
}

func (us *UserService) update(ctx context.Context, id primitive.ObjectID, updates map[string]interface{}) (*models.User, error) {
	user, err := us.users.UpdateUser(ctx, id, updates)
	if err != nil {
		if errors.Is(err, models.ErrDuplicate) {
			return nil, fmt.Errorf("email already in use: %w", models.ErrConflict)
		}
		return nil, err
	}
	return user, nil
}

// DeleteMe deactivates the account; the document is kept.
func (us *UserService) DeleteMe(ctx context.Context, id primitive.ObjectID) error {
	_, err := us.users.UpdateUser(ctx, id, map[string]interface{}{"active": false})
	return err
}

func (us *UserService) DeleteUser(ctx context.Context, id primitive.ObjectID) error {
	return us.users.DeleteUser(ctx, id)
}

func (us *UserService) UploadPhoto(ctx context.Context, id primitive.ObjectID, image string) (*models.User, error) {
	if strings.TrimSpace(image) == "" {
		return nil, fmt.Errorf("photo is required: %w", models.ErrBadRequest)
	}
	if us.upload == nil {
		return nil, fmt.Errorf("image uploads are not configured: %w", models.ErrTransientUpstream)
	}
	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()
	urls, err := us.upload(ctx, []string{image}, helpers.AvatarFolder)
	if err != nil {
		return nil, fmt.Errorf("failed to upload photo: %v: %w", err, models.ErrTransientUpstream)
	}
	if len(urls) == 0 {
		return nil, fmt.Errorf("photo upload returned nothing: %w", models.ErrTransientUpstream)
	}
	return us.users.UpdateUser(ctx, id, map[string]interface{}{"photo": urls[0]})
}

// SetOnline records realtime presence. userID is the hex id the hub keys
// connections by.
func (us *UserService) SetOnline(ctx context.Context, userID string, online bool) error {
	id, err := ParseID("user", userID)
	if err != nil {
		return err
	}
	return us.users.SetOnline(ctx, id, online, us.now().UTC())
}
