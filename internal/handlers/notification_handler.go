package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/joshua-takyi/tourbook/internal/models"
	"github.com/joshua-takyi/tourbook/internal/services"
)

// ListNotifications returns the caller's notifications; ?unread=true keeps
// only unread ones.
func ListNotifications(n *services.NotificationService) gin.HandlerFunc {
	return func(c *gin.Context) {
		_, userID, ok := caller(c)
		if !ok {
			return
		}
		page := pageFromQuery(c)
		list, total, err := n.List(c.Request.Context(), userID, c.Query("unread") == "true", page)
		if err != nil {
			respondError(c, err)
			return
		}
		paginated(c, list, page, total)
	}
}

func CreateNotification(n *services.NotificationService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req services.NotificationRequest
		if !bindJSON(c, &req) {
			return
		}
		created, err := n.Create(c.Request.Context(), req)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, models.SuccessResponse(created, "Notification sent"))
	}
}

func BroadcastNotification(n *services.NotificationService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req services.BroadcastRequest
		if !bindJSON(c, &req) {
			return
		}
		sent, err := n.Broadcast(c.Request.Context(), req)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, models.SuccessResponse(gin.H{"recipients": sent}, "Notification broadcast"))
	}
}

func MarkNotificationRead(n *services.NotificationService) gin.HandlerFunc {
	return func(c *gin.Context) {
		_, userID, ok := caller(c)
		if !ok {
			return
		}
		id, ok := paramID(c, "id", "notification")
		if !ok {
			return
		}
		updated, err := n.MarkRead(c.Request.Context(), id, userID)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(updated, ""))
	}
}

func MarkAllNotificationsRead(n *services.NotificationService) gin.HandlerFunc {
	return func(c *gin.Context) {
		_, userID, ok := caller(c)
		if !ok {
			return
		}
		count, err := n.MarkAllRead(c.Request.Context(), userID)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(gin.H{"updated": count}, "All notifications marked as read"))
	}
}

func DeleteNotification(n *services.NotificationService) gin.HandlerFunc {
	return func(c *gin.Context) {
		_, userID, ok := caller(c)
		if !ok {
			return
		}
		id, ok := paramID(c, "id", "notification")
		if !ok {
			return
		}
		if err := n.Delete(c.Request.Context(), id, userID); err != nil {
			respondError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func DeleteAllNotifications(n *services.NotificationService) gin.HandlerFunc {
	return func(c *gin.Context) {
		_, userID, ok := caller(c)
		if !ok {
			return
		}
		count, err := n.DeleteAll(c.Request.Context(), userID)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(gin.H{"deleted": count}, ""))
	}
}
