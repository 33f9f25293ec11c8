// README: Driver roster handlers.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"towline/internal/modules/driver"
	"towline/internal/types"
)

type DriverHandler struct {
	drivers *driver.Service
}

func NewDriverHandler(svc *driver.Service) *DriverHandler {
	return &DriverHandler{drivers: svc}
}

type driverResponse struct {
	ID        types.ID  `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	Rating    float64   `json:"rating"`
	Approved  bool      `json:"approved"`
	Online    bool      `json:"online"`
	CreatedAt time.Time `json:"created_at"`
}

func (h *DriverHandler) ListApproved(c *gin.Context) {
	drivers, err := h.drivers.ListApproved(c.Request.Context())
	if err != nil {
		writeError(c, http.StatusInternalServerError, "internal error")
		return
	}
	out := make([]driverResponse, 0, len(drivers))
	for _, d := range drivers {
		out = append(out, driverResponse{
			ID:        d.ID,
			Name:      d.Name,
			Phone:     d.Phone,
			Rating:    d.Rating,
			Approved:  d.Approved,
			Online:    d.Online,
			CreatedAt: d.CreatedAt,
		})
	}
	writeJSON(c, http.StatusOK, gin.H{"drivers": out})
}
