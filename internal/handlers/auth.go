package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/masteryloop-backend/internal/middleware"
	"github.com/yungbote/masteryloop-backend/internal/services"
)

type AuthHandler struct {
	authService services.AuthService
}

func NewAuthHandler(authService services.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

func (ah *AuthHandler) Register(c *gin.Context) {
	var req struct {
		Email       string `json:"email"`
		Password    string `json:"password"`
		DisplayName string `json:"display_name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	learner, aerr := ah.authService.Register(c.Request.Context(), req.Email, req.Password, req.DisplayName)
	if aerr != nil {
		RespondAPIError(c, aerr)
		return
	}
	c.JSON(http.StatusCreated, learner)
}

func (ah *AuthHandler) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	pair, aerr := ah.authService.Login(c.Request.Context(), req.Email, req.Password)
	if aerr != nil {
		RespondAPIError(c, aerr)
		return
	}
	RespondOK(c, pair)
}

func (ah *AuthHandler) Refresh(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	pair, aerr := ah.authService.Refresh(c.Request.Context(), req.RefreshToken)
	if aerr != nil {
		RespondAPIError(c, aerr)
		return
	}
	RespondOK(c, pair)
}

func (ah *AuthHandler) Logout(c *gin.Context) {
	learnerID, ok := middleware.LearnerID(c)
	if !ok {
		RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	if aerr := ah.authService.Logout(c.Request.Context(), learnerID); aerr != nil {
		RespondAPIError(c, aerr)
		return
	}
	RespondOK(c, gin.H{"message": "logged out"})
}
