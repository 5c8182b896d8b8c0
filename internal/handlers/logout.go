package handlers

import (
	"errors"
	"net/http"

	"taskify/backend/internal/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type LogoutHandler struct {
	db          *gorm.DB
	authService services.AuthService
	logger      *zap.Logger
}

type LogoutRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

func NewLogoutHandler(db *gorm.DB, authService services.AuthService, logger *zap.Logger) *LogoutHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogoutHandler{db: db, authService: authService, logger: logger}
}

// Logout revokes the refresh token. Unknown tokens still get a success
// response so clients can always clear their session.
func (h *LogoutHandler) Logout(c *gin.Context) {
	var req LogoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request format",
			"details": err.Error(),
		})
		return
	}

	err := h.authService.RevokeToken(h.db.WithContext(c.Request.Context()), req.RefreshToken)
	if err != nil && !errors.Is(err, services.ErrInvalidToken) {
		h.logger.Error("token revocation failed", zap.Error(err))
	}

	c.JSON(http.StatusOK, gin.H{"message": "Successfully logged out"})
}
