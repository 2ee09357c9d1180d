package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/joshua-takyi/tourbook/internal/models"
	"github.com/joshua-takyi/tourbook/internal/services"
)

// ListTours supports ?difficulty=, ?maxPrice=, ?sort= (comma separated,
// "-" for descending) and ?name= for a text search.
func ListTours(t *services.TourService) gin.HandlerFunc {
	return func(c *gin.Context) {
		filter := models.TourFilter{
			Search:     c.Query("name"),
			Difficulty: c.Query("difficulty"),
			Sort:       c.Query("sort"),
		}
		if raw := c.Query("maxPrice"); raw != "" {
			maxPrice, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || maxPrice <= 0 {
				c.JSON(http.StatusBadRequest, models.ErrorResponse("invalid maxPrice parameter"))
				return
			}
			filter.MaxPrice = maxPrice
		}
		page := pageFromQuery(c)
		tours, total, err := t.ListTours(c.Request.Context(), filter, page)
		if err != nil {
			respondError(c, err)
			return
		}
		paginated(c, tours, page, total)
	}
}

func TopCheapTours(t *services.TourService) gin.HandlerFunc {
	return func(c *gin.Context) {
		tours, err := t.TopCheap(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(tours, ""))
	}
}

func SearchTours(t *services.TourService) gin.HandlerFunc {
	return func(c *gin.Context) {
		page := pageFromQuery(c)
		tours, total, err := t.Search(c.Request.Context(), c.Param("key"), page)
		if err != nil {
			respondError(c, err)
			return
		}
		paginated(c, tours, page, total)
	}
}

func TourStats(t *services.TourService) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats, err := t.Stats(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(stats, ""))
	}
}

func MonthlyPlan(t *services.TourService) gin.HandlerFunc {
	return func(c *gin.Context) {
		plan, err := t.MonthlyPlan(c.Request.Context(), c.Param("year"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(plan, ""))
	}
}

// ToursWithin serves /tours/within/:distance/center/:latlng/unit/:unit.
func ToursWithin(t *services.TourService) gin.HandlerFunc {
	return func(c *gin.Context) {
		tours, err := t.ToursWithin(c.Request.Context(), c.Param("distance"), c.Param("latlng"), c.Param("unit"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(tours, ""))
	}
}

func TourDistances(t *services.TourService) gin.HandlerFunc {
	return func(c *gin.Context) {
		distances, err := t.Distances(c.Request.Context(), c.Param("latlng"), c.Param("unit"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(distances, ""))
	}
}

func GetTour(t *services.TourService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramID(c, "id", "tour")
		if !ok {
			return
		}
		tour, err := t.GetTour(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(tour, ""))
	}
}

func CreateTour(t *services.TourService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var tour models.Tour
		if !bindJSON(c, &tour) {
			return
		}
		created, err := t.CreateTour(c.Request.Context(), &tour)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, models.SuccessResponse(created, "Tour created successfully"))
	}
}

func UpdateTour(t *services.TourService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramID(c, "id", "tour")
		if !ok {
			return
		}
		var upd services.TourUpdate
		if !bindJSON(c, &upd) {
			return
		}
		tour, err := t.UpdateTour(c.Request.Context(), id, upd)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(tour, "Tour updated successfully"))
	}
}

func DeleteTour(t *services.TourService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramID(c, "id", "tour")
		if !ok {
			return
		}
		if err := t.DeleteTour(c.Request.Context(), id); err != nil {
			respondError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}
