package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"home-service-server/database"
	"home-service-server/models"
	"home-service-server/services"
)

// AuthMiddleware validates JWT bearer tokens and sets the user in context
func AuthMiddleware() gin.HandlerFunc {
	jwtService := services.NewJWTService()

	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "Authorization header required",
				"message": "Please provide a valid token",
			})
			c.Abort()
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "Invalid token format",
				"message": "Token must be in format: Bearer <token>",
			})
			c.Abort()
			return
		}

		resolveUser(c, jwtService, tokenString)
	}
}

// WebSocketAuthMiddleware validates JWT tokens from query parameters for
// WebSocket connections. Rejection happens here, before the upgrade, so a
// failed credential never produces a presence entry.
func WebSocketAuthMiddleware() gin.HandlerFunc {
	jwtService := services.NewJWTService()

	return func(c *gin.Context) {
		tokenString := c.Query("token")
		if tokenString == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "Token required",
				"message": "Please provide a valid token in query parameters",
			})
			c.Abort()
			return
		}

		resolveUser(c, jwtService, tokenString)
	}
}

// resolveUser turns a verified token into a live user in context, or
// aborts with 401
func resolveUser(c *gin.Context, jwtService *services.JWTService, tokenString string) {
	claims, err := jwtService.ValidateAccessToken(tokenString)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":   "Invalid token",
			"message": "Token is invalid or expired",
		})
		c.Abort()
		return
	}

	var user models.User
	if err := database.DB.First(&user, claims.UserID).Error; err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":   "User not found",
			"message": "User associated with token not found",
		})
		c.Abort()
		return
	}

	if !user.IsActive {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":   "User inactive",
			"message": "User account is deactivated",
		})
		c.Abort()
		return
	}

	c.Set("user", user)
	c.Set("user_id", user.ID)

	c.Next()
}
