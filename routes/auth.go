package routes

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"home-service-server/database"
	"home-service-server/models"
	"home-service-server/repository"
	"home-service-server/services"
)

type registerRequest struct {
	Name     string                   `json:"name" binding:"required"`
	Email    string                   `json:"email" binding:"required,email"`
	Phone    string                   `json:"phone" binding:"required"`
	Password string                   `json:"password" binding:"required,min=8"`
	Role     models.UserRole          `json:"role" binding:"required"`
	Services []models.ServiceCategory `json:"services"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// RegisterAuthRoutes registers registration, login and token endpoints
func RegisterAuthRoutes(router *gin.RouterGroup) {
	users := repository.NewUserRepo(database.DB)
	jwtService := services.NewJWTService()

	router.POST("/register", func(c *gin.Context) {
		var req registerRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid registration data", "details": err.Error()})
			return
		}

		user := models.User{
			Name:  req.Name,
			Email: req.Email,
			Phone: req.Phone,
			Role:  req.Role,
		}
		if !user.IsValidRole() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Role must be client or provider"})
			return
		}

		if user.IsProvider() {
			if len(req.Services) == 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Providers must offer at least one service"})
				return
			}
			for _, s := range req.Services {
				if !s.IsValid() {
					c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown service category: " + string(s)})
					return
				}
			}
			user.Services = models.ServiceList(req.Services)
		}

		hash, err := jwtService.HashPassword(req.Password)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process password"})
			return
		}
		user.PasswordHash = hash
		user.IsActive = true

		if err := users.Create(c.Request.Context(), &user); err != nil {
			if errors.Is(err, repository.ErrEmailTaken) {
				c.JSON(http.StatusConflict, gin.H{"error": "Email already registered"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create user"})
			return
		}

		tokens, err := jwtService.GenerateTokenPair(&user)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to issue tokens"})
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"message": "Registration successful",
			"user":    user,
			"tokens":  tokens,
		})
	})

	router.POST("/login", func(c *gin.Context) {
		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid login data", "details": err.Error()})
			return
		}

		user, err := users.ByEmail(c.Request.Context(), req.Email)
		if err != nil || !jwtService.CheckPasswordHash(req.Password, user.PasswordHash) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password"})
			return
		}

		if !user.IsActive {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "User account is deactivated"})
			return
		}

		tokens, err := jwtService.GenerateTokenPair(user)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to issue tokens"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"message": "Login successful",
			"user":    user,
			"tokens":  tokens,
		})
	})

	router.POST("/refresh", func(c *gin.Context) {
		var req refreshRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Refresh token required"})
			return
		}

		tokens, err := jwtService.RefreshAccessToken(req.RefreshToken)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid refresh token"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"tokens": tokens})
	})

	router.POST("/logout", func(c *gin.Context) {
		var req refreshRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Refresh token required"})
			return
		}

		if err := jwtService.RevokeRefreshToken(req.RefreshToken); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid refresh token"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
	})
}

// RegisterProfileRoutes registers the authenticated profile endpoint
func RegisterProfileRoutes(router *gin.RouterGroup) {
	router.GET("/me", func(c *gin.Context) {
		user, exists := c.Get("user")
		if !exists {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"user": user})
	})
}
