package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"home-service-server/database"
	"home-service-server/models"
	"home-service-server/repository"
)

// RegisterProviderRoutes registers provider discovery endpoints
func RegisterProviderRoutes(router *gin.RouterGroup) {
	users := repository.NewUserRepo(database.DB)

	// List providers, optionally filtered by category and availability
	router.GET("", func(c *gin.Context) {
		service := models.ServiceCategory(c.Query("service"))
		if service != "" && !service.IsValid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown service category: " + string(service)})
			return
		}
		availableOnly := c.DefaultQuery("available", "false") == "true"

		providers, err := users.Providers(c.Request.Context(), service, availableOnly)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch providers"})
			return
		}

		profiles := make([]models.PublicProfile, 0, len(providers))
		for i := range providers {
			profiles = append(profiles, providers[i].Public())
		}

		c.JSON(http.StatusOK, gin.H{"providers": profiles})
	})

	// List service categories
	router.GET("/services", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"services": models.AllServiceCategories})
	})
}
