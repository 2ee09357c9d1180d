package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/joshua-takyi/tourbook/internal/models"
	"github.com/joshua-takyi/tourbook/internal/services"
)

func ListConversations(ch *services.ChatService) gin.HandlerFunc {
	return func(c *gin.Context) {
		_, userID, ok := caller(c)
		if !ok {
			return
		}
		convs, err := ch.ListConversations(c.Request.Context(), userID)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(convs, ""))
	}
}

func ListMessages(ch *services.ChatService) gin.HandlerFunc {
	return func(c *gin.Context) {
		_, userID, ok := caller(c)
		if !ok {
			return
		}
		msgs, err := ch.ListMessages(c.Request.Context(), userID, c.Param("otherUserId"), pageFromQuery(c))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(msgs, ""))
	}
}

func SendMessage(ch *services.ChatService) gin.HandlerFunc {
	return func(c *gin.Context) {
		_, userID, ok := caller(c)
		if !ok {
			return
		}
		var req services.SendMessageRequest
		if !bindJSON(c, &req) {
			return
		}
		msg, err := ch.SendMessage(c.Request.Context(), userID, req)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, models.SuccessResponse(msg, ""))
	}
}

func MarkMessagesSeen(ch *services.ChatService) gin.HandlerFunc {
	return func(c *gin.Context) {
		_, userID, ok := caller(c)
		if !ok {
			return
		}
		receipt, err := ch.MarkSeen(c.Request.Context(), userID, c.Param("otherUserId"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(receipt, ""))
	}
}
