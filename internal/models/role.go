package models

import (
	"context"
	"fmt"
	"slices"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Permission string

const (
	PermManageUsers       Permission = "manage_users"
	PermManageTours       Permission = "manage_tours"
	PermManageBookings    Permission = "manage_bookings"
	PermManageReviews     Permission = "manage_reviews"
	PermManageRoles       Permission = "manage_roles"
	PermSendNotifications Permission = "send_notifications"
	PermViewStats         Permission = "view_stats"
	PermDeleteMe          Permission = "delete_me"
)

const (
	RoleAdmin     = "admin"
	RoleLeadGuide = "lead-guide"
	RoleGuide     = "guide"
	RoleUser      = "user"
)

// AllPermissions is the closed permission catalog.
var AllPermissions = []Permission{
	PermManageUsers,
	PermManageTours,
	PermManageBookings,
	PermManageReviews,
	PermManageRoles,
	PermSendNotifications,
	PermViewStats,
	PermDeleteMe,
}

var permissionDescriptions = map[Permission]string{
	PermManageUsers:       "List, edit and delete any user",
	PermManageTours:       "Create, edit and delete tours",
	PermManageBookings:    "View and administer every booking",
	PermManageReviews:     "Edit or delete any review",
	PermManageRoles:       "Manage roles and their permissions",
	PermSendNotifications: "Send and broadcast notifications",
	PermViewStats:         "Read booking and tour statistics",
	PermDeleteMe:          "Deactivate own account",
}

func (p Permission) Valid() bool {
	_, ok := permissionDescriptions[p]
	return ok
}

func (p Permission) Description() string {
	return permissionDescriptions[p]
}

func ParsePermission(s string) (Permission, error) {
	p := Permission(s)
	if !p.Valid() {
		return "", fmt.Errorf("unknown permission %q: %w", s, ErrBadRequest)
	}
	return p, nil
}

type Role struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name        string             `bson:"name" json:"name" validate:"required,min=2,max=40"`
	Description string             `bson:"description,omitempty" json:"description,omitempty"`
	Permissions []Permission       `bson:"permissions" json:"permissions"`
	CreatedAt   time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt   time.Time          `bson:"updatedAt" json:"updatedAt"`
}

func (r *Role) BeforeCreate() error {
	if r.ID.IsZero() {
		r.ID = primitive.NewObjectID()
	}
	now := time.Now().UTC()
	r.CreatedAt = now
	r.UpdatedAt = now
	if r.Permissions == nil {
		r.Permissions = []Permission{}
	}
	for _, p := range r.Permissions {
		if !p.Valid() {
			return fmt.Errorf("unknown permission %q: %w", p, ErrBadRequest)
		}
	}
	return nil
}

// HasPermission reports whether role grants perm. A nil role grants nothing.
func HasPermission(role *Role, perm Permission) bool {
	if role == nil {
		return false
	}
	return slices.Contains(role.Permissions, perm)
}

// DefaultRoles is seeded on startup when the roles are missing.
func DefaultRoles() []*Role {
	return []*Role{
		{Name: RoleAdmin, Description: "Full access", Permissions: slices.Clone(AllPermissions)},
		{Name: RoleLeadGuide, Description: "Runs tours and their bookings", Permissions: []Permission{
			PermManageTours, PermManageBookings, PermSendNotifications, PermViewStats, PermDeleteMe,
		}},
		{Name: RoleGuide, Description: "Guides tours", Permissions: []Permission{PermDeleteMe}},
		{Name: RoleUser, Description: "Customer", Permissions: []Permission{PermDeleteMe}},
	}
}

type RoleRepo interface {
	CreateRole(ctx context.Context, role *Role) (*Role, error)
	GetRoleByName(ctx context.Context, name string) (*Role, error)
	GetRoleByID(ctx context.Context, id primitive.ObjectID) (*Role, error)
	ListRoles(ctx context.Context) ([]*Role, error)
	DeleteRole(ctx context.Context, id primitive.ObjectID) error
	AddPermission(ctx context.Context, id primitive.ObjectID, perm Permission) (*Role, error)
	RemovePermission(ctx context.Context, id primitive.ObjectID, perm Permission) (*Role, error)
	// SeedRole inserts role unless one with the same name exists.
	SeedRole(ctx context.Context, role *Role) error
}
