package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/joshua-takyi/tourbook/internal/models"
	"github.com/joshua-takyi/tourbook/internal/services"
)

func GetMe(u *services.UserService) gin.HandlerFunc {
	return func(c *gin.Context) {
		_, id, ok := caller(c)
		if !ok {
			return
		}
		user, err := u.GetUser(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(user, ""))
	}
}

func UpdateMe(u *services.UserService) gin.HandlerFunc {
	return func(c *gin.Context) {
		_, id, ok := caller(c)
		if !ok {
			return
		}
		var body map[string]interface{}
		if !bindJSON(c, &body) {
			return
		}
		user, err := u.UpdateMe(c.Request.Context(), id, body)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(user, "Profile updated"))
	}
}

func DeleteMe(u *services.UserService) gin.HandlerFunc {
	return func(c *gin.Context) {
		_, id, ok := caller(c)
		if !ok {
			return
		}
		if err := u.DeleteMe(c.Request.Context(), id); err != nil {
			respondError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// UploadMyPhoto takes {"photo": "<url or data URI>"}.
func UploadMyPhoto(u *services.UserService) gin.HandlerFunc {
	return func(c *gin.Context) {
		_, id, ok := caller(c)
		if !ok {
			return
		}
		var req struct {
			Photo string `json:"photo" binding:"required"`
		}
		if !bindJSON(c, &req) {
			return
		}
		user, err := u.UploadPhoto(c.Request.Context(), id, req.Photo)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(user, "Photo updated"))
	}
}

func ListUsers(u *services.UserService) gin.HandlerFunc {
	return func(c *gin.Context) {
		page := pageFromQuery(c)
		users, total, err := u.ListUsers(c.Request.Context(), page)
		if err != nil {
			respondError(c, err)
			return
		}
		paginated(c, users, page, total)
	}
}

func GetUser(u *services.UserService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramID(c, "id", "user")
		if !ok {
			return
		}
		user, err := u.GetUser(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(user, ""))
	}
}

func UpdateUser(u *services.UserService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramID(c, "id", "user")
		if !ok {
			return
		}
		var body map[string]interface{}
		if !bindJSON(c, &body) {
			return
		}
		user, err := u.UpdateUser(c.Request.Context(), id, body)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(user, "User updated"))
	}
}

func DeleteUser(u *services.UserService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramID(c, "id", "user")
		if !ok {
			return
		}
		if err := u.DeleteUser(c.Request.Context(), id); err != nil {
			respondError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}
