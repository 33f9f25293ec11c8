// README: Payment listing and CSV export for the operator back office.
package handlers

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"towline/internal/modules/order"
)

type PaymentHandler struct {
	order *order.Service
}

func NewPaymentHandler(svc *order.Service) *PaymentHandler {
	return &PaymentHandler{order: svc}
}

func (h *PaymentHandler) List(c *gin.Context) {
	payments, err := h.order.ListPayments(c.Request.Context())
	if err != nil {
		writeOrderError(c, err)
		return
	}
	out := make([]paymentResponse, 0, len(payments))
	for _, p := range payments {
		out = append(out, toPaymentResponse(p))
	}
	writeJSON(c, http.StatusOK, gin.H{"payments": out})
}

func (h *PaymentHandler) ExportCSV(c *gin.Context) {
	payments, err := h.order.ListPayments(c.Request.Context())
	if err != nil {
		writeOrderError(c, err)
		return
	}

	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", `attachment; filename="payments.csv"`)
	c.Status(http.StatusOK)

	w := csv.NewWriter(c.Writer)
	_ = w.Write([]string{"id", "order_id", "amount", "status", "method", "reference", "created_at"})
	for _, p := range payments {
		_ = w.Write([]string{
			string(p.ID),
			string(p.OrderID),
			fmt.Sprintf("%.2f", p.Amount),
			string(p.Status),
			p.Method,
			p.Reference,
			p.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	w.Flush()
}
