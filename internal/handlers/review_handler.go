package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/joshua-takyi/tourbook/internal/models"
	"github.com/joshua-takyi/tourbook/internal/services"
)

func ListReviews(r *services.ReviewService) gin.HandlerFunc {
	return func(c *gin.Context) {
		tourID, ok := paramID(c, "id", "tour")
		if !ok {
			return
		}
		page := pageFromQuery(c)
		reviews, total, err := r.ListReviews(c.Request.Context(), tourID, page)
		if err != nil {
			respondError(c, err)
			return
		}
		paginated(c, reviews, page, total)
	}
}

func CreateReview(r *services.ReviewService) gin.HandlerFunc {
	return func(c *gin.Context) {
		_, userID, ok := caller(c)
		if !ok {
			return
		}
		tourID, ok := paramID(c, "id", "tour")
		if !ok {
			return
		}
		var req services.ReviewRequest
		if !bindJSON(c, &req) {
			return
		}
		review, err := r.CreateReview(c.Request.Context(), tourID, userID, req)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, models.SuccessResponse(review, "Review created"))
	}
}

func UpdateReview(r *services.ReviewService) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, userID, ok := caller(c)
		if !ok {
			return
		}
		id, ok := paramID(c, "id", "review")
		if !ok {
			return
		}
		var upd services.ReviewUpdate
		if !bindJSON(c, &upd) {
			return
		}
		review, err := r.UpdateReview(c.Request.Context(), id, userID, claims.HasPermission(models.PermManageReviews), upd)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(review, "Review updated"))
	}
}

func DeleteReview(r *services.ReviewService) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, userID, ok := caller(c)
		if !ok {
			return
		}
		id, ok := paramID(c, "id", "review")
		if !ok {
			return
		}
		if err := r.DeleteReview(c.Request.Context(), id, userID, claims.HasPermission(models.PermManageReviews)); err != nil {
			respondError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}
