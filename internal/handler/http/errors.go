package handler

import (
	"errors"
	"net/http"

	"github.com/aniladanir/hospital-messenger-service/internal/domain"
	"github.com/gin-gonic/gin"
)

type errorResponse struct {
	Error string `json:"error"`
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrBusy), errors.Is(err, domain.ErrBatchNotActive):
		return http.StatusConflict
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidRequest), errors.Is(err, domain.ErrUnknownJobKind):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNothingToSend):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrDisabled):
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}

func (h *Handler) abortWithError(c *gin.Context, err error) {
	status := statusFor(err)
	msg := err.Error()
	switch {
	case errors.Is(err, domain.ErrBusy):
		msg = domain.ErrBusy.Error()
	case status == http.StatusInternalServerError:
		h.logger.Error("request failed", "path", c.FullPath(), "error", err)
		msg = "internal error"
	}
	c.AbortWithStatusJSON(status, errorResponse{Error: msg})
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Error: msg})
}
