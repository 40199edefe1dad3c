package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/masteryloop-backend/internal/middleware"
	"github.com/yungbote/masteryloop-backend/internal/services"
)

type SessionHandler struct {
	tutorService services.TutorService
}

func NewSessionHandler(tutorService services.TutorService) *SessionHandler {
	return &SessionHandler{tutorService: tutorService}
}

func (sh *SessionHandler) Start(c *gin.Context) {
	learnerID, ok := middleware.LearnerID(c)
	if !ok {
		RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	res, aerr := sh.tutorService.StartSession(c.Request.Context(), learnerID)
	if aerr != nil {
		RespondAPIError(c, aerr)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (sh *SessionHandler) StartDiagnostic(c *gin.Context) {
	learnerID, ok := middleware.LearnerID(c)
	if !ok {
		RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	res, aerr := sh.tutorService.StartDiagnostic(c.Request.Context(), learnerID)
	if aerr != nil {
		RespondAPIError(c, aerr)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (sh *SessionHandler) Respond(c *gin.Context) {
	learnerID, ok := middleware.LearnerID(c)
	if !ok {
		RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_session_id", err)
		return
	}
	var req struct {
		Response   string   `json:"response"`
		Confidence *float64 `json:"confidence,omitempty"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	res, aerr := sh.tutorService.HandleResponse(c.Request.Context(), learnerID, sessionID, req.Response, req.Confidence)
	if aerr != nil {
		RespondAPIError(c, aerr)
		return
	}
	RespondOK(c, res)
}

func (sh *SessionHandler) Resume(c *gin.Context) {
	learnerID, ok := middleware.LearnerID(c)
	if !ok {
		RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_session_id", err)
		return
	}
	res, aerr := sh.tutorService.Resume(c.Request.Context(), learnerID, sessionID)
	if aerr != nil {
		RespondAPIError(c, aerr)
		return
	}
	RespondOK(c, res)
}
