// README: Base handler utilities (JSON helpers, error mapping).
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"towline/internal/modules/order"
	"towline/internal/types"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

func writeOrderError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, order.ErrValidation):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, order.ErrNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, order.ErrInvalidTransition), errors.Is(err, order.ErrConflict):
		writeError(c, http.StatusConflict, err.Error())
	case errors.Is(err, order.ErrUpstream):
		writeError(c, http.StatusBadGateway, err.Error())
	default:
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}

type waypointDTO struct {
	Lat     *float64 `json:"lat,omitempty"`
	Lng     *float64 `json:"lng,omitempty"`
	Address string   `json:"address,omitempty"`
}

func (w waypointDTO) toWaypoint() types.Waypoint {
	if w.Lat != nil && w.Lng != nil {
		return types.CoordWaypoint(*w.Lat, *w.Lng)
	}
	return types.AddressWaypoint(w.Address)
}

func fromWaypoint(w types.Waypoint) waypointDTO {
	return waypointDTO{Lat: w.Lat, Lng: w.Lng, Address: w.Address}
}
