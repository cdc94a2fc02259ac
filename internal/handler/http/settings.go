package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type SettingRequest struct {
	Value string `json:"value"`
}

// ListSettings godoc
// @Summary List settings
// @Tags Settings
// @Produce json
// @Success 200 {array} domain.Setting
// @Security ApiKeyAuth
// @Router /settings [get]
func (h *Handler) listSettings(c *gin.Context) {
	all, err := h.settings.All(c.Request.Context())
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, all)
}

// PutSetting godoc
// @Summary Update a setting
// @Tags Settings
// @Accept json
// @Param key path string true "setting key"
// @Param request body SettingRequest true "new value"
// @Success 204
// @Security ApiKeyAuth
// @Router /settings/{key} [put]
func (h *Handler) putSetting(c *gin.Context) {
	var body SettingRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err.Error())
		return
	}
	key := c.Param("key")
	if err := h.settings.Set(c.Request.Context(), key, body.Value); err != nil {
		h.abortWithError(c, err)
		return
	}
	h.logger.Info("setting updated", "key", key)
	c.Status(http.StatusNoContent)
}
