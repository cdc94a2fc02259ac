package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetStatus godoc
// @Summary Progress of a domain
// @Description Polled by the admin UI while a batch runs.
// @Tags Status
// @Produce json
// @Param domain path string true "reminders or bulk_send"
// @Success 200 {object} domain.ProgressSnapshot
// @Security ApiKeyAuth
// @Router /status/{domain} [get]
func (h *Handler) getStatus(c *gin.Context) {
	d, ok := parseDomain(c, c.Param("domain"))
	if !ok {
		return
	}
	snap, err := h.controller.Status(c.Request.Context(), d)
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// Pause godoc
// @Summary Pause the running batch
// @Tags Status
// @Param domain path string true "reminders or bulk_send"
// @Success 204
// @Failure 409 {object} errorResponse
// @Security ApiKeyAuth
// @Router /status/{domain}/pause [post]
func (h *Handler) pause(c *gin.Context) {
	d, ok := parseDomain(c, c.Param("domain"))
	if !ok {
		return
	}
	if err := h.controller.Pause(c.Request.Context(), d); err != nil {
		h.abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Resume godoc
// @Summary Resume a paused domain
// @Description Resubmits the recipients of the running batch that are still pending.
// @Tags Status
// @Produce json
// @Param domain path string true "reminders or bulk_send"
// @Success 200 {object} map[string]int
// @Security ApiKeyAuth
// @Router /status/{domain}/resume [post]
func (h *Handler) resume(c *gin.Context) {
	d, ok := parseDomain(c, c.Param("domain"))
	if !ok {
		return
	}
	n, err := h.controller.Resume(c.Request.Context(), d)
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"resubmitted": n})
}

// ClearStuck godoc
// @Summary Clear stuck state
// @Description Fails every unfinished batch of the domain and releases its lock. Requires confirm=true.
// @Tags Status
// @Produce json
// @Param domain path string true "reminders or bulk_send"
// @Param confirm query bool true "must be true"
// @Success 200 {object} service.ClearResult
// @Failure 400 {object} errorResponse
// @Security ApiKeyAuth
// @Router /status/{domain}/clear [post]
func (h *Handler) clearStuck(c *gin.Context) {
	d, ok := parseDomain(c, c.Param("domain"))
	if !ok {
		return
	}
	if c.Query("confirm") != "true" {
		badRequest(c, "confirm=true is required to clear the domain")
		return
	}

	res, err := h.controller.ClearStuck(c.Request.Context(), d)
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	h.logger.Warn("stuck state cleared by operator", "domain", d, "clientIp", c.ClientIP())
	c.JSON(http.StatusOK, res)
}
