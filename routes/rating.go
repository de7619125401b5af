package routes

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"home-service-server/database"
	"home-service-server/repository"
)

// RegisterRatingRoutes registers rating read endpoints. Submission goes
// through the live connection; this API serves history and summaries.
func RegisterRatingRoutes(router *gin.RouterGroup) {
	ratings := repository.NewRatingRepo(database.DB)
	users := repository.NewUserRepo(database.DB)

	// Ratings for one provider, with the aggregate summary
	router.GET("/provider/:providerId", func(c *gin.Context) {
		providerID, err := parseID(c.Param("providerId"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid provider ID"})
			return
		}

		provider, err := users.ByID(c.Request.Context(), providerID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "Provider not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch provider"})
			return
		}
		if !provider.IsProvider() {
			c.JSON(http.StatusNotFound, gin.H{"error": "Provider not found"})
			return
		}

		list, err := ratings.ByProvider(c.Request.Context(), providerID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch ratings"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"ratings":        list,
			"average_rating": provider.AverageRating,
			"total_ratings":  provider.TotalRatings,
		})
	})
}
