package helpers

import (
	"github.com/joshua-takyi/tourbook/internal/models"
)

// EnhancedClaims is what the auth middleware stores under "user": the
// verified token plus the caller's role document.
type EnhancedClaims struct {
	*CustomClaims
	UserID   string       `json:"id"`
	Email    string       `json:"email,omitempty"`
	Name     string       `json:"name,omitempty"`
	RoleName string       `json:"role"`
	Role     *models.Role `json:"-"`
}

func (ec *EnhancedClaims) HasRole(role string) bool {
	return ec.RoleName == role
}

func (ec *EnhancedClaims) HasPermission(perm models.Permission) bool {
	return models.HasPermission(ec.Role, perm)
}
