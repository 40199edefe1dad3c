package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/masteryloop-backend/internal/middleware"
	"github.com/yungbote/masteryloop-backend/internal/services"
)

type GraphHandler struct {
	tutorService services.TutorService
}

func NewGraphHandler(tutorService services.TutorService) *GraphHandler {
	return &GraphHandler{tutorService: tutorService}
}

func (gh *GraphHandler) Concepts(c *gin.Context) {
	RespondOK(c, gin.H{"concepts": gh.tutorService.Concepts()})
}

func (gh *GraphHandler) PathPlan(c *gin.Context) {
	learnerID, ok := middleware.LearnerID(c)
	if !ok {
		RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	plan, aerr := gh.tutorService.PathPlan(c.Request.Context(), learnerID)
	if aerr != nil {
		RespondAPIError(c, aerr)
		return
	}
	RespondOK(c, gin.H{"path": plan})
}
