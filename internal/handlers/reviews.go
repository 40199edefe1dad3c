package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/masteryloop-backend/internal/middleware"
	"github.com/yungbote/masteryloop-backend/internal/services"
)

type ReviewHandler struct {
	tutorService services.TutorService
}

func NewReviewHandler(tutorService services.TutorService) *ReviewHandler {
	return &ReviewHandler{tutorService: tutorService}
}

func (rh *ReviewHandler) Due(c *gin.Context) {
	learnerID, ok := middleware.LearnerID(c)
	if !ok {
		RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	limit := 10
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	due, aerr := rh.tutorService.DueReviews(c.Request.Context(), learnerID, limit)
	if aerr != nil {
		RespondAPIError(c, aerr)
		return
	}
	RespondOK(c, gin.H{"due": due})
}
