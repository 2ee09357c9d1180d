package models

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	MaxLoginAttempts = 3
	LoginLockTime    = 10 * time.Minute
	DefaultPhoto     = "default.jpg"
)

type User struct {
	ID                primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name              string             `bson:"name" json:"name" validate:"required,max=80"`
	Email             string             `bson:"email" json:"email" validate:"required,email"`
	Photo             string             `bson:"photo" json:"photo"`
	Password          string             `bson:"password" json:"-"`
	Role              string             `bson:"role" json:"role"`
	PasswordChangedAt *time.Time         `bson:"passwordChangedAt,omitempty" json:"-"`
	Active            bool               `bson:"active" json:"active"`
	FailedAttempts    int                `bson:"failedAttempts" json:"-"`
	LockUntil         *time.Time         `bson:"lockUntil,omitempty" json:"-"`
	Online            bool               `bson:"online" json:"online"`
	LastSeen          *time.Time         `bson:"lastSeen,omitempty" json:"lastSeen,omitempty"`
	CreatedAt         time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt         time.Time          `bson:"updatedAt" json:"updatedAt"`
}

func (u *User) BeforeCreate() error {
	if u.ID.IsZero() {
		u.ID = primitive.NewObjectID()
	}
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now
	u.Active = true
	if u.Photo == "" {
		u.Photo = DefaultPhoto
	}
	if u.Role == "" {
		u.Role = RoleUser
	}
	return nil
}

func (u *User) IsLocked(now time.Time) bool {
	return u.LockUntil != nil && u.LockUntil.After(now)
}

// ChangedPasswordAfter reports whether the password changed after a token
// issued at iat, compared at second precision like JWT timestamps.
func (u *User) ChangedPasswordAfter(iat time.Time) bool {
	if u.PasswordChangedAt == nil {
		return false
	}
	return u.PasswordChangedAt.Unix() > iat.Unix()
}

type UserRepo interface {
	CreateUser(ctx context.Context, user *User) (*User, error)
	GetUserByID(ctx context.Context, id primitive.ObjectID) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	ListUsers(ctx context.Context, offset, limit int) ([]*User, int64, error)
	UpdateUser(ctx context.Context, id primitive.ObjectID, updates map[string]interface{}) (*User, error)
	DeleteUser(ctx context.Context, id primitive.ObjectID) error
	// RecordFailedLogin increments the failure counter and locks the account
	// once it reaches MaxLoginAttempts.
	RecordFailedLogin(ctx context.Context, id primitive.ObjectID, now time.Time) (*User, error)
	ResetLoginAttempts(ctx context.Context, id primitive.ObjectID) error
	SetOnline(ctx context.Context, id primitive.ObjectID, online bool, at time.Time) error
}
