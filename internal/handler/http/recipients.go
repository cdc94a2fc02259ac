package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// RunReminders godoc
// @Summary Run reminders now
// @Tags Reminders
// @Produce json
// @Param days query int false "days ahead, defaults to the manual setting"
// @Success 202 {object} StartBatchResponse
// @Failure 409 {object} errorResponse
// @Failure 422 {object} StartBatchResponse
// @Security ApiKeyAuth
// @Router /reminders/run [post]
func (h *Handler) runReminders(c *gin.Context) {
	days, ok := intQuery(c, "days", 0)
	if !ok {
		return
	}
	res, err := h.reminders.RunNow(c.Request.Context(), days)
	h.respondStart(c, res, err)
}

// PreviewReminders godoc
// @Summary Preview reminders
// @Description Lists the recipients a manual run would send to, without sending or writing anything.
// @Tags Reminders
// @Produce json
// @Param days query int false "days ahead, defaults to the manual setting"
// @Success 200 {object} resolver.Result
// @Security ApiKeyAuth
// @Router /reminders/preview [get]
func (h *Handler) previewReminders(c *gin.Context) {
	days, ok := intQuery(c, "days", 0)
	if !ok {
		return
	}
	res, err := h.reminders.Preview(c.Request.Context(), days)
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// ListFailed godoc
// @Summary Failed recipients
// @Tags Recipients
// @Produce json
// @Param domain query string false "reminders or bulk_send"
// @Param limit query int false "max rows"
// @Param offset query int false "rows to skip"
// @Success 200 {array} domain.Recipient
// @Security ApiKeyAuth
// @Router /recipients/failed [get]
func (h *Handler) listFailed(c *gin.Context) {
	d, ok := optionalDomain(c)
	if !ok {
		return
	}
	limit, ok := intQuery(c, "limit", defaultListLimit)
	if !ok {
		return
	}
	offset, ok := intQuery(c, "offset", 0)
	if !ok {
		return
	}

	recipients, err := h.controller.ListFailed(c.Request.Context(), d, min(limit, maxListLimit), offset)
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, recipients)
}

// ResetRecipient godoc
// @Summary Clear a failed recipient
// @Description Returns the recipient to pending so the next run includes it.
// @Tags Recipients
// @Param id path int true "recipient id"
// @Success 204
// @Failure 404 {object} errorResponse
// @Security ApiKeyAuth
// @Router /recipients/{id}/reset [post]
func (h *Handler) resetRecipient(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		badRequest(c, "invalid recipient id")
		return
	}
	if err := h.controller.ResetRecipient(c.Request.Context(), id); err != nil {
		h.abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
