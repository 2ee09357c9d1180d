package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/joshua-takyi/tourbook/internal/models"
	"github.com/joshua-takyi/tourbook/internal/services"
)

func AddToFavourites(f *services.FavouriteService) gin.HandlerFunc {
	return func(c *gin.Context) {
		_, userID, ok := caller(c)
		if !ok {
			return
		}
		var reqBody struct {
			TourID string `json:"tourId" binding:"required"`
		}
		if !bindJSON(c, &reqBody) {
			return
		}
		res, err := f.AddToFavourites(c.Request.Context(), userID, reqBody.TourID)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(res, "Tour saved"))
	}
}

func RemoveFromFavourite(f *services.FavouriteService) gin.HandlerFunc {
	return func(c *gin.Context) {
		_, userID, ok := caller(c)
		if !ok {
			return
		}
		if err := f.RemoveFromFavourites(c.Request.Context(), userID, c.Param("tourId")); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(nil, "Tour removed from favourites"))
	}
}

func GetUserFavourites(f *services.FavouriteService) gin.HandlerFunc {
	return func(c *gin.Context) {
		_, userID, ok := caller(c)
		if !ok {
			return
		}
		res, err := f.GetFavouritesByUserID(c.Request.Context(), userID)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(res, ""))
	}
}
