package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/joshua-takyi/tourbook/internal/models"
	"github.com/joshua-takyi/tourbook/internal/services"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func Checkout(b *services.BookingService) gin.HandlerFunc {
	return func(c *gin.Context) {
		_, userID, ok := caller(c)
		if !ok {
			return
		}
		var req services.CheckoutRequest
		if !bindJSON(c, &req) {
			return
		}
		checkout, err := b.CreateCheckout(c.Request.Context(), userID, req)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, models.SuccessResponse(checkout, "Checkout created, complete the payment to confirm"))
	}
}

func MyBookings(b *services.BookingService) gin.HandlerFunc {
	return func(c *gin.Context) {
		_, userID, ok := caller(c)
		if !ok {
			return
		}
		page := pageFromQuery(c)
		bookings, total, err := b.ListUserBookings(c.Request.Context(), userID, page)
		if err != nil {
			respondError(c, err)
			return
		}
		paginated(c, bookings, page, total)
	}
}

// ListBookings filters on ?status=, ?tour= and ?user=.
func ListBookings(b *services.BookingService) gin.HandlerFunc {
	return func(c *gin.Context) {
		filter := models.BookingFilter{PaymentStatus: c.Query("status")}
		for key, dst := range map[string]*primitive.ObjectID{"tour": &filter.Tour, "user": &filter.User} {
			raw := c.Query(key)
			if raw == "" {
				continue
			}
			id, err := services.ParseID(key, raw)
			if err != nil {
				respondError(c, err)
				return
			}
			*dst = id
		}
		page := pageFromQuery(c)
		bookings, total, err := b.ListBookings(c.Request.Context(), filter, page)
		if err != nil {
			respondError(c, err)
			return
		}
		paginated(c, bookings, page, total)
	}
}

func GetBooking(b *services.BookingService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramID(c, "id", "booking")
		if !ok {
			return
		}
		booking, err := b.GetBooking(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(booking, ""))
	}
}

func UpdateBooking(b *services.BookingService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramID(c, "id", "booking")
		if !ok {
			return
		}
		var upd services.BookingUpdate
		if !bindJSON(c, &upd) {
			return
		}
		booking, err := b.UpdateBooking(c.Request.Context(), id, upd)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(booking, "Booking updated"))
	}
}

func CancelBooking(b *services.BookingService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramID(c, "id", "booking")
		if !ok {
			return
		}
		booking, err := b.CancelBooking(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(booking, "Booking cancelled"))
	}
}

func RefundBooking(b *services.BookingService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramID(c, "id", "booking")
		if !ok {
			return
		}
		var req services.RefundRequest
		if !bindJSON(c, &req) {
			return
		}
		booking, err := b.RefundBooking(c.Request.Context(), id, req)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(booking, "Booking refunded"))
	}
}

func DeleteBooking(b *services.BookingService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramID(c, "id", "booking")
		if !ok {
			return
		}
		if err := b.DeleteBooking(c.Request.Context(), id); err != nil {
			respondError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// BookingStats serves /bookings/stats/:kind; "top" honours ?limit=.
func BookingStats(b *services.BookingService) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, err := strconv.Atoi(c.DefaultQuery("limit", "5"))
		if err != nil || limit <= 0 {
			c.JSON(http.StatusBadRequest, models.ErrorResponse("invalid limit parameter"))
			return
		}
		stats, err := b.Stats(c.Request.Context(), c.Param("kind"), limit)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(stats, ""))
	}
}

func ListTransactions(b *services.BookingService) gin.HandlerFunc {
	return func(c *gin.Context) {
		page := pageFromQuery(c)
		txs, total, err := b.ListTransactions(c.Request.Context(), page)
		if err != nil {
			respondError(c, err)
			return
		}
		paginated(c, txs, page, total)
	}
}

// TransactionStatus asks the gateway about a booking's payment. Owners may
// query their own bookings; manage_bookings may query any.
func TransactionStatus(b *services.BookingService) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, userID, ok := caller(c)
		if !ok {
			return
		}
		var req struct {
			OrderCode string `json:"orderCode" binding:"required"`
		}
		if !bindJSON(c, &req) {
			return
		}
		status, err := b.TransactionStatus(c.Request.Context(), req.OrderCode, userID, claims.HasPermission(models.PermManageBookings))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(status, ""))
	}
}
