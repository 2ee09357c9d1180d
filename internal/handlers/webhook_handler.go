package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/joshua-takyi/tourbook/internal/models"
	"github.com/joshua-takyi/tourbook/internal/payment"
	"github.com/joshua-takyi/tourbook/internal/services"
)

const maxWebhookBody = 64 << 10

// Settler reconciles one verified gateway notification.
type Settler interface {
	HandleWebhook(ctx context.Context, p *payment.WebhookPayload) (*services.SettlementResult, error)
}

// PaymentWebhook receives notifications from one gateway. Every outcome the
// reconciler reaches is acknowledged with 200 so the gateway stops
// retrying; only a persistence failure answers 500 and asks for a
// redelivery.
func PaymentWebhook(g payment.Gateway, s Settler, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
		if err != nil {
			c.JSON(http.StatusBadRequest, models.ErrorResponse("unreadable body"))
			return
		}
		if err := g.VerifyWebhook(c.Request, body); err != nil {
			logger.Warn("Rejected webhook", "gateway", g.Name(), "client_ip", c.ClientIP(), "error", err)
			c.JSON(http.StatusUnauthorized, models.ErrorResponse("invalid webhook credentials"))
			return
		}
		p, err := g.ParseWebhook(body)
		if err != nil {
			logger.Warn("Malformed webhook", "gateway", g.Name(), "error", err)
			c.JSON(http.StatusBadRequest, models.ErrorResponse(err.Error()))
			return
		}

		res, err := s.HandleWebhook(c.Request.Context(), p)
		if err != nil {
			logger.Error("Webhook settlement failed",
				"gateway", g.Name(),
				"external_id", p.ExternalID,
				"retryable", errors.Is(err, models.ErrFatal),
				"error", err,
			)
			c.JSON(http.StatusInternalServerError, models.ErrorResponse("failed to process payment, please retry"))
			return
		}
		c.JSON(http.StatusOK, models.WebhookAck{
			Status:  "success",
			Outcome: res.Outcome,
			Message: res.Message,
			Data:    models.WebhookData{Transaction: res.Transaction},
		})
	}
}
