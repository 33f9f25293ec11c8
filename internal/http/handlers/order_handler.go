// README: Order handlers for the dispatch lifecycle.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"towline/internal/modules/order"
	"towline/internal/types"
)

type OrderHandler struct {
	order *order.Service
}

func NewOrderHandler(svc *order.Service) *OrderHandler {
	return &OrderHandler{order: svc}
}

type orderResponse struct {
	ID          types.ID    `json:"id"`
	RequesterID types.ID    `json:"requester_id"`
	DriverID    *types.ID   `json:"driver_id,omitempty"`
	Status      string      `json:"status"`
	Version     int         `json:"version"`
	Pickup      waypointDTO `json:"pickup"`
	Dropoff     waypointDTO `json:"dropoff"`
	DistanceKm  *float64    `json:"distance_km,omitempty"`
	Fare        *float64    `json:"fare,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
	CancelledAt *time.Time  `json:"cancelled_at,omitempty"`
}

type paymentResponse struct {
	ID        types.ID  `json:"id"`
	OrderID   types.ID  `json:"order_id"`
	Amount    float64   `json:"amount"`
	Status    string    `json:"status"`
	Method    string    `json:"method"`
	Reference string    `json:"reference,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toOrderResponse(o *order.Order) orderResponse {
	return orderResponse{
		ID:          o.ID,
		RequesterID: o.RequesterID,
		DriverID:    o.DriverID,
		Status:      string(o.Status),
		Version:     o.Version,
		Pickup:      fromWaypoint(o.Pickup),
		Dropoff:     fromWaypoint(o.Dropoff),
		DistanceKm:  o.DistanceKm,
		Fare:        o.Fare,
		CreatedAt:   o.CreatedAt,
		CompletedAt: o.CompletedAt,
		CancelledAt: o.CancelledAt,
	}
}

func toPaymentResponse(p *order.Payment) paymentResponse {
	return paymentResponse{
		ID:        p.ID,
		OrderID:   p.OrderID,
		Amount:    p.Amount,
		Status:    string(p.Status),
		Method:    p.Method,
		Reference: p.Reference,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

type createOrderReq struct {
	RequesterID string      `json:"requester_id"`
	Pickup      waypointDTO `json:"pickup"`
	Dropoff     waypointDTO `json:"dropoff"`
	DriverID    *string     `json:"driver_id"`
}

func (h *OrderHandler) Create(c *gin.Context) {
	var req createOrderReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	cmd := order.CreateCommand{
		RequesterID: types.ID(req.RequesterID),
		Pickup:      req.Pickup.toWaypoint(),
		Dropoff:     req.Dropoff.toWaypoint(),
	}
	if req.DriverID != nil {
		id := types.ID(*req.DriverID)
		cmd.DriverID = &id
	}
	o, err := h.order.Create(c.Request.Context(), cmd)
	if err != nil {
		writeOrderError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, toOrderResponse(o))
}

func (h *OrderHandler) Get(c *gin.Context) {
	o, p, err := h.order.GetWithPayment(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		writeOrderError(c, err)
		return
	}
	resp := gin.H{"order": toOrderResponse(o)}
	if p != nil {
		resp["payment"] = toPaymentResponse(p)
	}
	writeJSON(c, http.StatusOK, resp)
}

func (h *OrderHandler) List(c *gin.Context) {
	var f order.Filter
	if v := c.Query("status"); v != "" {
		st := order.Status(v)
		f.Status = &st
	}
	if v := c.Query("driver_id"); v != "" {
		id := types.ID(v)
		f.DriverID = &id
	}
	orders, err := h.order.List(c.Request.Context(), f)
	if err != nil {
		writeOrderError(c, err)
		return
	}
	out := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, toOrderResponse(o))
	}
	writeJSON(c, http.StatusOK, gin.H{"orders": out})
}

type assignReq struct {
	DriverID string `json:"driver_id"`
}

func (h *OrderHandler) Assign(c *gin.Context) {
	var req assignReq
	if err := c.ShouldBindJSON(&req); err != nil || req.DriverID == "" {
		writeError(c, http.StatusBadRequest, "driver_id is required")
		return
	}
	o, err := h.order.Assign(c.Request.Context(), types.ID(c.Param("id")), types.ID(req.DriverID))
	if err != nil {
		writeOrderError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, toOrderResponse(o))
}

func (h *OrderHandler) Accept(c *gin.Context) {
	var req assignReq
	if err := c.ShouldBindJSON(&req); err != nil || req.DriverID == "" {
		writeError(c, http.StatusBadRequest, "driver_id is required")
		return
	}
	o, err := h.order.Accept(c.Request.Context(), types.ID(c.Param("id")), types.ID(req.DriverID))
	if err != nil {
		writeOrderError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, toOrderResponse(o))
}

func (h *OrderHandler) Reject(c *gin.Context) {
	o, err := h.order.Reject(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		writeOrderError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, toOrderResponse(o))
}

func (h *OrderHandler) Complete(c *gin.Context) {
	o, err := h.order.Complete(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		writeOrderError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, toOrderResponse(o))
}

type payReq struct {
	Method string `json:"method"`
}

func (h *OrderHandler) Pay(c *gin.Context) {
	var req payReq
	if err := c.ShouldBindJSON(&req); err != nil || req.Method == "" {
		writeError(c, http.StatusBadRequest, "method is required")
		return
	}
	o, p, err := h.order.Pay(c.Request.Context(), types.ID(c.Param("id")), req.Method)
	if err != nil {
		writeOrderError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{
		"order":   toOrderResponse(o),
		"payment": toPaymentResponse(p),
	})
}

func (h *OrderHandler) Cancel(c *gin.Context) {
	o, err := h.order.Cancel(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		writeOrderError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, toOrderResponse(o))
}
