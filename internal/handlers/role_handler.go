package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/joshua-takyi/tourbook/internal/models"
	"github.com/joshua-takyi/tourbook/internal/services"
)

func ListRoles(r *services.RoleService) gin.HandlerFunc {
	return func(c *gin.Context) {
		roles, err := r.ListRoles(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(roles, ""))
	}
}

func CreateRole(r *services.RoleService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req services.RoleRequest
		if !bindJSON(c, &req) {
			return
		}
		role, err := r.CreateRole(c.Request.Context(), req)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, models.SuccessResponse(role, "Role created"))
	}
}

func DeleteRole(r *services.RoleService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramID(c, "id", "role")
		if !ok {
			return
		}
		if err := r.DeleteRole(c.Request.Context(), id); err != nil {
			respondError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func AddPermission(r *services.RoleService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramID(c, "id", "role")
		if !ok {
			return
		}
		var req struct {
			Permission string `json:"permission" binding:"required"`
		}
		if !bindJSON(c, &req) {
			return
		}
		role, err := r.AddPermission(c.Request.Context(), id, req.Permission)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(role, "Permission added"))
	}
}

func RemovePermission(r *services.RoleService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramID(c, "id", "role")
		if !ok {
			return
		}
		role, err := r.RemovePermission(c.Request.Context(), id, c.Param("perm"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(role, "Permission removed"))
	}
}

func ListPermissions(r *services.RoleService) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, models.SuccessResponse(r.Permissions(), ""))
	}
}
