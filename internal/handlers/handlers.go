package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/joshua-takyi/tourbook/internal/helpers"
	"github.com/joshua-takyi/tourbook/internal/middleware"
	"github.com/joshua-takyi/tourbook/internal/models"
	"github.com/joshua-takyi/tourbook/internal/payment"
	"github.com/joshua-takyi/tourbook/internal/services"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// StatusFor maps a service error to its HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrBadRequest),
		errors.Is(err, payment.ErrUnknownGateway),
		errors.Is(err, payment.ErrInvalidPayload):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrConflict),
		errors.Is(err, models.ErrCapacityUnderflow),
		errors.Is(err, models.ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, models.ErrUnauthorized),
		errors.Is(err, payment.ErrInvalidSignature):
		return http.StatusUnauthorized
	case errors.Is(err, models.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, models.ErrTransientUpstream):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err with its mapped status. Internal errors are
// attached to the context for ErrorHandler to log and their text is hidden.
func respondError(c *gin.Context, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
		c.AbortWithStatusJSON(status, models.ErrorResponse("Internal server error"))
		return
	}
	c.AbortWithStatusJSON(status, models.ErrorResponse(err.Error()))
}

// caller returns the authenticated user and their id.
func caller(c *gin.Context) (*helpers.EnhancedClaims, primitive.ObjectID, bool) {
	claims, ok := middleware.CurrentUser(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse("unauthorized"))
		return nil, primitive.NilObjectID, false
	}
	id, err := primitive.ObjectIDFromHex(claims.UserID)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse("invalid user ID in token"))
		return nil, primitive.NilObjectID, false
	}
	return claims, id, true
}

// paramID parses the named path parameter as an ObjectID.
func paramID(c *gin.Context, name, kind string) (primitive.ObjectID, bool) {
	// Clients sometimes send ids wrapped in quotes.
	raw := strings.Trim(strings.TrimSpace(c.Param(name)), "\"'")
	id, err := services.ParseID(kind, raw)
	if err != nil {
		respondError(c, err)
		return primitive.NilObjectID, false
	}
	return id, true
}

func pageFromQuery(c *gin.Context) services.Page {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(services.DefaultPageSize)))
	return services.Page{Page: page, Limit: limit}.Normalize()
}

func bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, models.ErrorResponse("invalid request body: "+err.Error()))
		return false
	}
	return true
}

func paginated(c *gin.Context, data interface{}, page services.Page, total int64) {
	c.JSON(http.StatusOK, models.PaginatedResponse(data, page.Page, page.Limit, total))
}
