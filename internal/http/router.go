// README: HTTP router registration.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"towline/internal/fanout"
	"towline/internal/http/handlers"
	"towline/internal/http/middleware"
	"towline/internal/modules/driver"
	"towline/internal/modules/order"
	"towline/internal/modules/session"
	"towline/internal/modules/settings"
)

type RouterDeps struct {
	Order    *order.Service
	Drivers  *driver.Service
	Sessions *session.Service
	Settings *settings.Service
	Bus      fanout.Bus
	Log      *zap.Logger
}

func NewRouter(deps RouterDeps) http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(middleware.Recovery(deps.Log), middleware.Logging(deps.Log))

	orderHandler := handlers.NewOrderHandler(deps.Order)
	r.POST("/api/orders", orderHandler.Create)
	r.GET("/api/orders", orderHandler.List)
	r.GET("/api/orders/:id", orderHandler.Get)
	r.POST("/api/orders/:id/assign", orderHandler.Assign)
	r.POST("/api/orders/:id/accept", orderHandler.Accept)
	r.POST("/api/orders/:id/reject", orderHandler.Reject)
	r.POST("/api/orders/:id/complete", orderHandler.Complete)
	r.POST("/api/orders/:id/pay", orderHandler.Pay)
	r.POST("/api/orders/:id/cancel", orderHandler.Cancel)

	driverHandler := handlers.NewDriverHandler(deps.Drivers)
	r.GET("/api/drivers", driverHandler.ListApproved)

	paymentHandler := handlers.NewPaymentHandler(deps.Order)
	r.GET("/api/payments", paymentHandler.List)
	r.GET("/api/payments/export", paymentHandler.ExportCSV)

	if deps.Settings != nil {
		settingsHandler := handlers.NewSettingsHandler(deps.Settings)
		r.GET("/api/settings", settingsHandler.List)
		r.PUT("/api/settings/:key", settingsHandler.Upsert)
	}

	chatHandler := handlers.NewChatHandler(deps.Sessions)
	r.POST("/api/chat/update", chatHandler.Update)

	eventsHandler := handlers.NewEventsHandler(deps.Bus)
	r.GET("/api/events", eventsHandler.Stream)

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	return r
}
