package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/joshua-takyi/tourbook/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type RoleRequest struct {
	Name        string   `json:"name" validate:"required,min=2,max=40"`
	Description string   `json:"description" validate:"max=200"`
	Permissions []string `json:"permissions"`
}

type PermissionInfo struct {
	Name        models.Permission `json:"name"`
	Description string            `json:"description"`
}

type RoleService struct {
	roles  models.RoleRepo
	logger *slog.Logger
}

func NewRoleService(roles models.RoleRepo, logger *slog.Logger) *RoleService {
	if logger == nil {
		logger = slog.Default()
	}
	return &RoleService{roles: roles, logger: logger}
}

// SeedDefaults inserts the built-in roles that are missing. Existing roles
// keep whatever permissions an admin gave them.
func (rs *RoleService) SeedDefaults(ctx context.Context) error {
	for _, role := range models.DefaultRoles() {
		if err := rs.roles.SeedRole(ctx, role); err != nil {
			return err
		}
	}
	rs.logger.Info("Default roles ensured", "count", len(models.DefaultRoles()))
	return nil
}

func (rs *RoleService) ListRoles(ctx context.Context) ([]*models.Role, error) {
	return rs.roles.ListRoles(ctx)
}

func (rs *RoleService) CreateRole(ctx context.Context, req RoleRequest) (*models.Role, error) {
	req.Name = strings.ToLower(strings.TrimSpace(req.Name))
	if err := models.Validate.Struct(req); err != nil {
		return nil, validationError(err)
	}
	perms := make([]models.Permission, 0, len(req.Permissions))
	for _, raw := range req.Permissions {
		p, err := models.ParsePermission(raw)
		if err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	role, err := rs.roles.CreateRole(ctx, &models.Role{
		Name:        req.Name,
		Description: strings.TrimSpace(req.Description),
		Permissions: perms,
	})
	if err != nil {
		if errors.Is(err, models.ErrDuplicate) {
			return nil, fmt.Errorf("role %q already exists: %w", req.Name, models.ErrConflict)
		}
		return nil, err
	}
	return role, nil
}

// DeleteRole refuses to remove the built-in roles.
func (rs *RoleService) DeleteRole(ctx context.Context, id primitive.ObjectID) error {
	role, err := rs.roles.GetRoleByID(ctx, id)
	if err != nil {
		return err
	}
	for _, builtin := range models.DefaultRoles() {
		if builtin.Name == role.Name {
			return fmt.Errorf("built-in role %q cannot be deleted: %w", role.Name, models.ErrForbidden)
		}
	}
	return rs.roles.DeleteRole(ctx, id)
}

func (rs *RoleService) AddPermission(ctx context.Context, id primitive.ObjectID, raw string) (*models.Role, error) {
	p, err := models.ParsePermission(strings.TrimSpace(raw))
	if err != nil {
		return nil, err
	}
	return rs.roles.AddPermission(ctx, id, p)
}

func (rs *RoleService) RemovePermission(ctx context.Context, id primitive.ObjectID, raw string) (*models.Role, error) {
	p, err := models.ParsePermission(strings.TrimSpace(raw))
	if err != nil {
		return nil, err
	}
	role, err := rs.roles.GetRoleByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if role.Name == models.RoleAdmin && p == models.PermManageRoles {
		return nil, fmt.Errorf("admin must keep %s: %w", p, models.ErrForbidden)
	}
	return rs.roles.RemovePermission(ctx, id, p)
}

func (rs *RoleService) Permissions() []PermissionInfo {
	out := make([]PermissionInfo, 0, len(models.AllPermissions))
	for _, p := range models.AllPermissions {
		out = append(out, PermissionInfo{Name: p, Description: p.Description()})
	}
	return out
}
