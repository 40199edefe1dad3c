package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/masteryloop-backend/internal/middleware"
	"github.com/yungbote/masteryloop-backend/internal/services"
)

type PolicyHandler struct {
	tutorService services.TutorService
}

func NewPolicyHandler(tutorService services.TutorService) *PolicyHandler {
	return &PolicyHandler{tutorService: tutorService}
}

func (ph *PolicyHandler) Stats(c *gin.Context) {
	learnerID, ok := middleware.LearnerID(c)
	if !ok {
		RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	stats, aerr := ph.tutorService.PolicyStats(c.Request.Context(), learnerID)
	if aerr != nil {
		RespondAPIError(c, aerr)
		return
	}
	RespondOK(c, stats)
}
