// README: Operator settings handlers.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"towline/internal/modules/settings"
)

type SettingsHandler struct {
	settings *settings.Service
}

func NewSettingsHandler(svc *settings.Service) *SettingsHandler {
	return &SettingsHandler{settings: svc}
}

func (h *SettingsHandler) List(c *gin.Context) {
	out, err := h.settings.List(c.Request.Context())
	if err != nil {
		writeError(c, http.StatusInternalServerError, "internal error")
		return
	}
	if out == nil {
		out = []settings.Setting{}
	}
	writeJSON(c, http.StatusOK, gin.H{"settings": out})
}

type upsertSettingReq struct {
	Value json.RawMessage `json:"value"`
}

func (h *SettingsHandler) Upsert(c *gin.Context) {
	key := c.Param("key")
	var req upsertSettingReq
	if err := c.ShouldBindJSON(&req); err != nil || len(req.Value) == 0 {
		writeError(c, http.StatusBadRequest, "value is required")
		return
	}
	st, err := h.settings.Upsert(c.Request.Context(), key, req.Value)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(c, http.StatusOK, st)
}
