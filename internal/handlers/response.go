package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/masteryloop-backend/internal/apierr"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

func RespondAPIError(c *gin.Context, aerr *apierr.Error) {
	status := aerr.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}
	RespondError(c, status, aerr.Code, aerr.Err)
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}
