// README: Webhook for inbound chat updates; drives the order wizard.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"towline/internal/modules/session"
	"towline/internal/types"
)

type ChatHandler struct {
	sessions *session.Service
}

func NewChatHandler(svc *session.Service) *ChatHandler {
	return &ChatHandler{sessions: svc}
}

type chatUpdateReq struct {
	UserID string   `json:"user_id"`
	Text   string   `json:"text"`
	Lat    *float64 `json:"lat"`
	Lng    *float64 `json:"lng"`
}

func (h *ChatHandler) Update(c *gin.Context) {
	var req chatUpdateReq
	if err := c.ShouldBindJSON(&req); err != nil || req.UserID == "" {
		writeError(c, http.StatusBadRequest, "user_id is required")
		return
	}
	u := session.Update{UserID: types.ID(req.UserID), Text: req.Text}
	if req.Lat != nil && req.Lng != nil {
		loc := types.CoordWaypoint(*req.Lat, *req.Lng)
		u.Location = &loc
	}
	reply, err := h.sessions.Handle(c.Request.Context(), u)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"reply": reply})
}
