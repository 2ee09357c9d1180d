package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/joshua-takyi/tourbook/internal/middleware"
	"github.com/joshua-takyi/tourbook/internal/models"
	"github.com/joshua-takyi/tourbook/internal/realtime"
	"github.com/joshua-takyi/tourbook/internal/services"
)

// ServeWS upgrades an authenticated request to a websocket. Browsers cannot
// set headers on the handshake, so the token may also come as ?token=.
// An empty origins list accepts any origin.
func ServeWS(hub *realtime.Hub, auth middleware.Authenticator, chat *services.ChatService, origins []string, logger *slog.Logger) gin.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return len(origins) == 0 || origin == "" || slices.Contains(origins, origin)
		},
	}

	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			token = middleware.BearerToken(c)
		}
		if token == "" {
			c.JSON(http.StatusUnauthorized, models.ErrorResponse("You are not logged in"))
			return
		}
		claims, err := auth.Authenticate(c.Request.Context(), token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, models.ErrorResponse(err.Error()))
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("Websocket upgrade failed", "user_id", claims.UserID, "error", err)
			return
		}
		client := realtime.NewClient(hub, conn, claims.UserID)
		client.Serve(c.Request.Context(), func(ctx context.Context, cl *realtime.Client, in realtime.Inbound) {
			chat.HandleEvent(ctx, cl, in)
		})
	}
}
